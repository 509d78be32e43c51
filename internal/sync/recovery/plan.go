package recovery

import (
	"time"

	"github.com/vietddude/pipesync/internal/sync/classify"
)

// perContactCost is the fixed duration assumption used to estimate how
// long re-running a batch will take.
const perContactCost = 2 * time.Second

// FailedBatch describes one batch that failed during a run.
type FailedBatch struct {
	Number       int
	StartIndex   int
	EndIndex     int
	Err          error
	SucceededIDs []string // external person ids that completed before the failure
}

// BatchPlan is the recovery plan for one failed batch.
type BatchPlan struct {
	BatchNumber       int
	StartIndex        int
	EndIndex          int
	SkipContactIDs    []string
	Strategy          Strategy
	Kind              classify.Kind
	EstimatedDuration time.Duration
}

// MultiBatchPlan aggregates plans for several failed batches. The overall
// strategy is always RESUME_FROM_LAST_SUCCESS: individual batches may
// retry differently, but the run as a whole resumes from its checkpoint.
type MultiBatchPlan struct {
	Plans             []BatchPlan
	Strategy          Strategy
	EstimatedDuration time.Duration
}

// PlanBatch builds the recovery plan for one failed batch.
func PlanBatch(fb FailedBatch) BatchPlan {
	size := fb.EndIndex - fb.StartIndex + 1
	if size < 0 {
		size = 0
	}
	return BatchPlan{
		BatchNumber:       fb.Number,
		StartIndex:        fb.StartIndex,
		EndIndex:          fb.EndIndex,
		SkipContactIDs:    fb.SucceededIDs,
		Strategy:          SelectStrategy(fb.Err),
		Kind:              classify.Classify(fb.Err).Kind,
		EstimatedDuration: time.Duration(size) * perContactCost,
	}
}

// PlanBatches builds an aggregate plan for several failed batches.
func PlanBatches(batches []FailedBatch) MultiBatchPlan {
	plan := MultiBatchPlan{Strategy: StrategyResumeFromLastSuccess}
	for _, fb := range batches {
		p := PlanBatch(fb)
		plan.Plans = append(plan.Plans, p)
		plan.EstimatedDuration += p.EstimatedDuration
	}
	return plan
}
