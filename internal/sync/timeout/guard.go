package timeout

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/infra/storage"
	"github.com/vietddude/pipesync/internal/sync/classify"
	"github.com/vietddude/pipesync/internal/sync/metrics"
)

// Operation is one deadline-guarded unit of work.
type Operation func(ctx context.Context) error

// Outcome reports how a guarded operation ended. Duration is wall-clock
// regardless of outcome.
type Outcome struct {
	Success  bool
	Err      error
	Duration time.Duration
	TimedOut bool
}

// SyncScope identifies the run a sync-level deadline protects. Zero
// values skip the bookkeeping side effects.
type SyncScope struct {
	SyncID string
	UserID string
}

// BatchScope identifies the batch a batch-level deadline protects.
type BatchScope struct {
	SyncID   string
	BatchNum int
}

// Guard wraps operations in deadlines and records their timing. The
// operation receives a context cancelled at the deadline, so a losing
// call is torn down rather than left to mutate state late; the guard
// still drains the result channel to tolerate stragglers.
type Guard struct {
	cfg     Config
	store   *Store
	history storage.SyncHistoryRepository
	users   storage.UserRepository
}

// NewGuard creates a guard. history and users may be nil when the caller
// wants pure deadline enforcement without audit side effects.
func NewGuard(
	cfg Config,
	store *Store,
	history storage.SyncHistoryRepository,
	users storage.UserRepository,
) *Guard {
	if store == nil {
		store = NewStore()
	}
	return &Guard{cfg: cfg, store: store, history: history, users: users}
}

// Store exposes the guard's sample store.
func (g *Guard) Store() *Store { return g.store }

// ExecuteSync races op against the sync-level deadline. On timeout the
// run's history row is marked FAILED and the user's last-sync marker is
// cleared so the next run starts FULL; both best-effort.
func (g *Guard) ExecuteSync(ctx context.Context, op Operation, scope SyncScope) Outcome {
	outcome := g.race(ctx, op, g.cfg.SyncTimeout)

	if outcome.TimedOut {
		slog.Warn("sync deadline exceeded",
			"sync_id", scope.SyncID, "timeout", g.cfg.SyncTimeout)
		if g.history != nil && scope.SyncID != "" {
			g.markSyncTimedOut(ctx, scope.SyncID)
		}
		if g.users != nil && scope.UserID != "" {
			if err := g.users.ClearLastSync(ctx, scope.UserID); err != nil {
				slog.Error("failed to clear last sync after timeout",
					"user_id", scope.UserID, "error", err)
			}
		}
	}
	return outcome
}

// ExecuteBatch races op against the configured batch-level deadline,
// recording a timing sample whether the batch finished or timed out.
func (g *Guard) ExecuteBatch(ctx context.Context, op Operation, scope BatchScope) Outcome {
	return g.executeBatch(ctx, op, scope, g.cfg.BatchTimeout)
}

// ExecuteBatchWithTimeout is ExecuteBatch with an explicit (usually
// progressive) deadline instead of the configured base one.
func (g *Guard) ExecuteBatchWithTimeout(
	ctx context.Context,
	op Operation,
	scope BatchScope,
	deadline time.Duration,
) Outcome {
	return g.executeBatch(ctx, op, scope, deadline)
}

func (g *Guard) executeBatch(
	ctx context.Context,
	op Operation,
	scope BatchScope,
	deadline time.Duration,
) Outcome {
	outcome := g.race(ctx, op, deadline)

	if scope.SyncID != "" {
		g.store.Record(Sample{
			SyncID:     scope.SyncID,
			BatchNum:   scope.BatchNum,
			Configured: deadline,
			Actual:     outcome.Duration,
			TimedOut:   outcome.TimedOut,
		})
	}
	metrics.BatchDuration.Observe(outcome.Duration.Seconds())

	if outcome.TimedOut {
		metrics.BatchTimeouts.Inc()
		slog.Warn("batch deadline exceeded",
			"sync_id", scope.SyncID, "batch", scope.BatchNum, "timeout", deadline)
		if g.history != nil && scope.SyncID != "" {
			g.markBatchTimedOut(ctx, scope.SyncID, scope.BatchNum)
		}
	}
	return outcome
}

func (g *Guard) race(ctx context.Context, op Operation, deadline time.Duration) Outcome {
	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	select {
	case err := <-done:
		return Outcome{
			Success:  err == nil,
			Err:      err,
			Duration: time.Since(start),
		}
	case <-opCtx.Done():
		// Drain the straggler so its goroutine can exit.
		go func() { <-done }()
		return Outcome{
			Err: classify.Errorf(classify.KindNetwork,
				"operation timed out after %v", deadline),
			Duration: time.Since(start),
			TimedOut: true,
		}
	}
}

func (g *Guard) markSyncTimedOut(ctx context.Context, syncID string) {
	row, err := g.history.GetByID(ctx, syncID)
	if err != nil || row == nil {
		slog.Error("failed to load sync row after timeout", "sync_id", syncID, "error", err)
		return
	}
	now := time.Now().UTC()
	msg := "NETWORK: sync timed out"
	row.Status = domain.SyncStatusFailed
	row.Error = &msg
	row.EndedAt = &now
	if err := g.history.Update(ctx, row); err != nil {
		slog.Error("failed to mark sync timed out", "sync_id", syncID, "error", err)
	}
}

func (g *Guard) markBatchTimedOut(ctx context.Context, syncID string, batchNum int) {
	row, err := g.history.GetByID(ctx, syncID)
	if err != nil || row == nil {
		slog.Error("failed to load sync row after batch timeout", "sync_id", syncID, "error", err)
		return
	}
	msg := classify.Errorf(classify.KindNetwork, "batch %d timed out", batchNum).Error()
	row.Error = &msg
	if err := g.history.Update(ctx, row); err != nil {
		slog.Error("failed to note batch timeout", "sync_id", syncID, "error", err)
	}
}
