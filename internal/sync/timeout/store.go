package timeout

import (
	"fmt"
	"sync"
	"time"
)

// Sample is one recorded batch timing observation.
type Sample struct {
	SyncID     string
	BatchNum   int
	Configured time.Duration
	Actual     time.Duration
	TimedOut   bool
	RecordedAt time.Time
}

// Analysis aggregates a sync's samples.
type Analysis struct {
	SyncID       string
	Batches      int
	Timeouts     int
	TimeoutRate  float64 // Timeouts / Batches, 0 when no samples
	MeanDuration time.Duration
	MaxDuration  time.Duration
}

// Store keeps batch timing samples in memory, grouped by sync id.
// Samples have no implicit expiry; the orchestrator clears a sync's
// samples once the run is finalized.
type Store struct {
	mu      sync.Mutex
	samples map[string][]Sample
}

// NewStore creates an empty sample store.
func NewStore() *Store {
	return &Store{samples: make(map[string][]Sample)}
}

// Record appends one sample.
func (s *Store) Record(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now().UTC()
	}
	s.samples[sample.SyncID] = append(s.samples[sample.SyncID], sample)
}

// Analyze aggregates all samples recorded for one sync id.
func (s *Store) Analyze(syncID string) Analysis {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := Analysis{SyncID: syncID}
	samples := s.samples[syncID]
	a.Batches = len(samples)
	if a.Batches == 0 {
		return a
	}

	var total time.Duration
	for _, sm := range samples {
		if sm.TimedOut {
			a.Timeouts++
		}
		total += sm.Actual
		if sm.Actual > a.MaxDuration {
			a.MaxDuration = sm.Actual
		}
	}
	a.TimeoutRate = float64(a.Timeouts) / float64(a.Batches)
	a.MeanDuration = total / time.Duration(a.Batches)
	return a
}

// Clear drops all samples for one sync id.
func (s *Store) Clear(syncID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.samples, syncID)
}

// Suggestion is the result of evaluating whether a batch timeout should grow.
type Suggestion struct {
	Increase    bool
	Recommended time.Duration
	Reason      string
}

// SuggestAdjustment recommends a new batch timeout from observed behavior.
// Mean duration creeping past 80% of the deadline suggests headroom is
// nearly gone; a timeout rate above 20% on a meaningful sample count
// suggests the deadline is simply too tight.
func SuggestAdjustment(
	current time.Duration,
	meanDuration time.Duration,
	timeoutRate float64,
	sampleCount int,
	maxBatchTimeout time.Duration,
) Suggestion {
	if meanDuration > time.Duration(0.8*float64(current)) {
		recommended := time.Duration(1.5 * float64(meanDuration))
		if recommended > maxBatchTimeout {
			recommended = maxBatchTimeout
		}
		return Suggestion{
			Increase:    true,
			Recommended: recommended,
			Reason: fmt.Sprintf(
				"mean batch duration %v exceeds 80%% of the %v timeout", meanDuration, current),
		}
	}
	if timeoutRate > 0.2 && sampleCount > 5 {
		recommended := time.Duration(1.5 * float64(current))
		if recommended > maxBatchTimeout {
			recommended = maxBatchTimeout
		}
		return Suggestion{
			Increase:    true,
			Recommended: recommended,
			Reason: fmt.Sprintf(
				"timeout rate %.0f%% over %d batches", timeoutRate*100, sampleCount),
		}
	}
	return Suggestion{
		Recommended: current,
		Reason:      "batch timings are within budget",
	}
}
