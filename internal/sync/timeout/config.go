// Package timeout enforces deadlines on sync and batch operations and
// tracks per-batch timing samples so oversized timeouts can be tuned.
package timeout

import (
	"fmt"
	"math"
	"time"
)

// Config holds the deadline budget for one sync run.
type Config struct {
	SyncTimeout     time.Duration `yaml:"sync_timeout"`
	BatchTimeout    time.Duration `yaml:"batch_timeout"`
	MaxBatchTimeout time.Duration `yaml:"max_batch_timeout"`
	Progressive     bool          `yaml:"progressive"`
}

// DefaultConfig returns the standard deadline budget.
func DefaultConfig() Config {
	return Config{
		SyncTimeout:     5 * time.Minute,
		BatchTimeout:    30 * time.Second,
		MaxBatchTimeout: 120 * time.Second,
		Progressive:     true,
	}
}

// Validate accumulates configuration errors; a valid config has none.
func (c Config) Validate() []string {
	var errs []string
	if c.SyncTimeout <= 0 {
		errs = append(errs, "sync timeout must be positive")
	}
	if c.BatchTimeout <= 0 {
		errs = append(errs, "batch timeout must be positive")
	}
	if c.MaxBatchTimeout <= 0 {
		errs = append(errs, "max batch timeout must be positive")
	}
	if c.BatchTimeout > c.SyncTimeout {
		errs = append(errs, fmt.Sprintf(
			"batch timeout (%v) must not exceed sync timeout (%v)",
			c.BatchTimeout, c.SyncTimeout))
	}
	if c.MaxBatchTimeout > c.SyncTimeout {
		errs = append(errs, fmt.Sprintf(
			"max batch timeout (%v) must not exceed sync timeout (%v)",
			c.MaxBatchTimeout, c.SyncTimeout))
	}
	return errs
}

// ProgressiveBatchTimeout scales the per-batch deadline with batch size.
//
// Rules:
//   - progressive disabled: the configured batch timeout, unchanged
//   - batch covers everything or is huge (>= 1000): max batch timeout
//   - tiny batch (<= 10 or <= 5% of total): base batch timeout
//   - otherwise: linear interpolation between base and max by
//     batchSize/totalContacts, clamped to [base, max]
func (c Config) ProgressiveBatchTimeout(totalContacts, batchSize int) time.Duration {
	if !c.Progressive {
		return c.BatchTimeout
	}
	if batchSize >= totalContacts || batchSize >= 1000 {
		return c.MaxBatchTimeout
	}
	if batchSize <= 10 || float64(batchSize) <= 0.05*float64(totalContacts) {
		return c.BatchTimeout
	}

	ratio := float64(batchSize) / float64(totalContacts)
	scaled := float64(c.BatchTimeout) + (float64(c.MaxBatchTimeout)-float64(c.BatchTimeout))*ratio
	scaled = math.Max(scaled, float64(c.BatchTimeout))
	scaled = math.Min(scaled, float64(c.MaxBatchTimeout))

	return time.Duration(math.Round(scaled/float64(time.Millisecond))) * time.Millisecond
}
