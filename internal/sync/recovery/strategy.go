// Package recovery selects and executes recovery strategies for failed
// sync operations, and derives resume checkpoints from sync history.
package recovery

import (
	"context"
	"math"
	"time"

	"github.com/vietddude/pipesync/internal/sync/classify"
)

// Strategy is how a failed operation should be recovered.
type Strategy string

const (
	StrategyRetryWithBackoff      Strategy = "RETRY_WITH_BACKOFF"
	StrategyResumeFromLastSuccess Strategy = "RESUME_FROM_LAST_SUCCESS"
	StrategyFullRetry             Strategy = "FULL_RETRY"
	StrategyNoRecovery            Strategy = "NO_RECOVERY"
)

// SelectStrategy maps an error's classification onto a strategy.
func SelectStrategy(err error) Strategy {
	switch classify.Classify(err).Kind {
	case classify.KindRateLimit:
		return StrategyRetryWithBackoff
	case classify.KindNetwork:
		return StrategyResumeFromLastSuccess
	case classify.KindDatabase:
		return StrategyFullRetry
	case classify.KindAuthentication, classify.KindValidation:
		return StrategyNoRecovery
	default:
		return StrategyRetryWithBackoff
	}
}

// Options bounds one Execute call.
type Options struct {
	MaxRetries int           // retries beyond the first attempt
	BaseDelay  time.Duration // backoff base
	Timeout    time.Duration // per-attempt deadline
}

// DefaultOptions returns the standard execution budget.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Timeout:    30 * time.Second,
	}
}

// Result reports how an Execute call ended.
type Result struct {
	Success  bool
	Err      error
	Attempts int // tries actually made, 1-indexed
	Strategy Strategy
}

// Operation is one retryable unit of work.
type Operation func(ctx context.Context) error

// Execute runs op under the given strategy. Each attempt is guarded by
// opts.Timeout. NO_RECOVERY aborts after the first failure regardless of
// the remaining budget; RETRY_WITH_BACKOFF sleeps BaseDelay * 2^(attempt-1)
// between attempts; every other strategy sleeps a flat BaseDelay.
func Execute(ctx context.Context, op Operation, strategy Strategy, opts Options) Result {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= opts.MaxRetries+1; attempt++ {
		attempts = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		err := op(attemptCtx)
		cancel()

		if err == nil {
			return Result{Success: true, Attempts: attempts, Strategy: strategy}
		}
		lastErr = err

		if strategy == StrategyNoRecovery || attempt > opts.MaxRetries {
			break
		}

		delay := opts.BaseDelay
		if strategy == StrategyRetryWithBackoff {
			delay = time.Duration(float64(opts.BaseDelay) * math.Pow(2, float64(attempt-1)))
		}

		select {
		case <-ctx.Done():
			return Result{Err: ctx.Err(), Attempts: attempts, Strategy: strategy}
		case <-time.After(delay):
		}
	}

	return Result{Err: lastErr, Attempts: attempts, Strategy: strategy}
}
