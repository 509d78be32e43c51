package timeout

import (
	"context"
	"errors"
	"testing"
	"time"
)

// =============================================================================
// Config Tests
// =============================================================================

func TestValidate(t *testing.T) {
	if errs := DefaultConfig().Validate(); len(errs) != 0 {
		t.Fatalf("default config must be valid, got %v", errs)
	}

	bad := Config{SyncTimeout: 10 * time.Second, BatchTimeout: 30 * time.Second, MaxBatchTimeout: 5 * time.Second}
	errs := bad.Validate()
	if len(errs) == 0 {
		t.Fatal("expected validation errors")
	}
	found := false
	for _, e := range errs {
		if e == "batch timeout (30s) must not exceed sync timeout (10s)" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing batch>sync error, got %v", errs)
	}

	zero := Config{}
	if errs := zero.Validate(); len(errs) < 3 {
		t.Errorf("zero config should fail all positivity checks, got %v", errs)
	}
}

func TestProgressiveBatchTimeout(t *testing.T) {
	cfg := DefaultConfig()

	// Batch covers everything -> max.
	if got := cfg.ProgressiveBatchTimeout(100, 100); got != 120*time.Second {
		t.Errorf("batchSize == total: got %v, want 120s", got)
	}
	if got := cfg.ProgressiveBatchTimeout(5000, 1000); got != 120*time.Second {
		t.Errorf("huge batch: got %v, want 120s", got)
	}

	// Tiny batch -> base.
	if got := cfg.ProgressiveBatchTimeout(1000, 10); got != 30*time.Second {
		t.Errorf("tiny batch: got %v, want 30s", got)
	}
	if got := cfg.ProgressiveBatchTimeout(10000, 400); got != 30*time.Second {
		t.Errorf("batch <= 5%% of total: got %v, want 30s", got)
	}

	// Mid-range interpolates strictly between base and max.
	got := cfg.ProgressiveBatchTimeout(1000, 500)
	if got <= 30*time.Second || got >= 120*time.Second {
		t.Errorf("mid batch: got %v, want strictly between 30s and 120s", got)
	}
	if got != 75*time.Second {
		t.Errorf("mid batch: got %v, want 75s (base + 0.5 * span)", got)
	}

	// Disabled progressive passes the base through.
	cfg.Progressive = false
	if got := cfg.ProgressiveBatchTimeout(1000, 500); got != 30*time.Second {
		t.Errorf("disabled: got %v, want 30s", got)
	}
}

// =============================================================================
// Guard Tests
// =============================================================================

func TestGuard_ExecuteBatch_Success(t *testing.T) {
	g := NewGuard(Config{SyncTimeout: time.Second, BatchTimeout: 200 * time.Millisecond,
		MaxBatchTimeout: time.Second}, nil, nil, nil)

	out := g.ExecuteBatch(context.Background(), func(ctx context.Context) error {
		return nil
	}, BatchScope{SyncID: "s1", BatchNum: 1})

	if !out.Success || out.TimedOut {
		t.Fatalf("expected success, got %+v", out)
	}

	a := g.Store().Analyze("s1")
	if a.Batches != 1 || a.Timeouts != 0 {
		t.Errorf("expected one success sample, got %+v", a)
	}
}

func TestGuard_ExecuteBatch_Timeout(t *testing.T) {
	g := NewGuard(Config{SyncTimeout: time.Second, BatchTimeout: 20 * time.Millisecond,
		MaxBatchTimeout: time.Second}, nil, nil, nil)

	out := g.ExecuteBatch(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(500 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, BatchScope{SyncID: "s1", BatchNum: 2})

	if out.Success || !out.TimedOut {
		t.Fatalf("expected timeout, got %+v", out)
	}
	if out.Duration < 20*time.Millisecond {
		t.Errorf("duration %v shorter than deadline", out.Duration)
	}

	a := g.Store().Analyze("s1")
	if a.Timeouts != 1 {
		t.Errorf("expected one timeout sample, got %+v", a)
	}
}

func TestGuard_OperationReceivesCancelledContext(t *testing.T) {
	g := NewGuard(Config{SyncTimeout: time.Second, BatchTimeout: 10 * time.Millisecond,
		MaxBatchTimeout: time.Second}, nil, nil, nil)

	cancelled := make(chan struct{})
	g.ExecuteBatch(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}, BatchScope{SyncID: "s1", BatchNum: 1})

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("operation context was never cancelled after the deadline")
	}
}

func TestGuard_ExecuteSync_PropagatesOperationError(t *testing.T) {
	g := NewGuard(DefaultConfig(), nil, nil, nil)

	opErr := errors.New("fetch failed")
	out := g.ExecuteSync(context.Background(), func(ctx context.Context) error {
		return opErr
	}, SyncScope{})

	if out.Success || out.TimedOut {
		t.Fatalf("expected plain failure, got %+v", out)
	}
	if !errors.Is(out.Err, opErr) {
		t.Errorf("expected operation error, got %v", out.Err)
	}
}

// =============================================================================
// Store / Analysis Tests
// =============================================================================

func TestStore_AnalyzeAndClear(t *testing.T) {
	s := NewStore()
	s.Record(Sample{SyncID: "s1", BatchNum: 1, Actual: 10 * time.Second})
	s.Record(Sample{SyncID: "s1", BatchNum: 2, Actual: 30 * time.Second, TimedOut: true})
	s.Record(Sample{SyncID: "other", BatchNum: 1, Actual: time.Second})

	a := s.Analyze("s1")
	if a.Batches != 2 || a.Timeouts != 1 {
		t.Fatalf("unexpected analysis: %+v", a)
	}
	if a.TimeoutRate != 0.5 {
		t.Errorf("timeout rate = %v, want 0.5", a.TimeoutRate)
	}
	if a.MeanDuration != 20*time.Second {
		t.Errorf("mean = %v, want 20s", a.MeanDuration)
	}
	if a.MaxDuration != 30*time.Second {
		t.Errorf("max = %v, want 30s", a.MaxDuration)
	}

	s.Clear("s1")
	if a := s.Analyze("s1"); a.Batches != 0 || a.TimeoutRate != 0 {
		t.Errorf("expected empty analysis after clear, got %+v", a)
	}
	if a := s.Analyze("other"); a.Batches != 1 {
		t.Errorf("clear must not touch other syncs, got %+v", a)
	}
}

func TestSuggestAdjustment(t *testing.T) {
	maxT := 120 * time.Second

	// Mean near the deadline: grow to 1.5x mean.
	sug := SuggestAdjustment(30*time.Second, 25*time.Second, 0, 10, maxT)
	if !sug.Increase || sug.Recommended != time.Duration(1.5*float64(25*time.Second)) {
		t.Errorf("mean-driven suggestion wrong: %+v", sug)
	}

	// High timeout rate with enough samples: grow to 1.5x current.
	sug = SuggestAdjustment(30*time.Second, 5*time.Second, 0.3, 10, maxT)
	if !sug.Increase || sug.Recommended != 45*time.Second {
		t.Errorf("rate-driven suggestion wrong: %+v", sug)
	}

	// High rate but too few samples: no change.
	sug = SuggestAdjustment(30*time.Second, 5*time.Second, 0.5, 3, maxT)
	if sug.Increase {
		t.Errorf("expected no increase on thin samples, got %+v", sug)
	}

	// Healthy timings: no change.
	sug = SuggestAdjustment(30*time.Second, 5*time.Second, 0.05, 50, maxT)
	if sug.Increase || sug.Reason == "" {
		t.Errorf("expected no increase with a reason, got %+v", sug)
	}

	// Recommendations clamp at the max batch timeout.
	sug = SuggestAdjustment(110*time.Second, 109*time.Second, 0, 10, maxT)
	if sug.Recommended != maxT {
		t.Errorf("expected clamp at %v, got %v", maxT, sug.Recommended)
	}
}
