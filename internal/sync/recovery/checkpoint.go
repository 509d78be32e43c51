package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/infra/storage"
)

// Checkpoint is the coarse resume point derived from the most recent
// successful sync. It exposes the run's counters, not a per-contact
// cursor, so resumption skips whole already-processed prefixes.
type Checkpoint struct {
	SyncID    string
	Total     int
	Processed int
	Created   int
	Updated   int
	Failed    int
	EndedAt   time.Time
}

// LatestCheckpoint finds the user's newest SUCCESS sync row. Returns
// (nil, nil) when the user has never completed a sync; the caller must
// then fall back to a FULL run.
func LatestCheckpoint(
	ctx context.Context,
	repo storage.SyncHistoryRepository,
	userID string,
) (*Checkpoint, error) {
	row, err := repo.LatestByStatus(ctx, userID, domain.SyncStatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to look up checkpoint: %w", err)
	}
	if row == nil {
		return nil, nil
	}

	cp := &Checkpoint{
		SyncID:    row.ID,
		Total:     row.TotalContacts,
		Processed: row.ProcessedContacts,
		Created:   row.CreatedContacts,
		Updated:   row.UpdatedContacts,
		Failed:    row.FailedContacts,
	}
	if row.EndedAt != nil {
		cp.EndedAt = *row.EndedAt
	}
	return cp, nil
}

// ResumeParams describes where a resumed run should pick up.
type ResumeParams struct {
	AlreadyProcessed   int
	SkipContacts       int
	EstimatedRemaining int
	BatchSize          int
}

// Resume computes resumption parameters from a checkpoint. estimatedTotal
// may itself be an estimate; remaining is clamped at zero.
func Resume(cp *Checkpoint, batchSize, estimatedTotal int) ResumeParams {
	remaining := estimatedTotal - cp.Processed
	if remaining < 0 {
		remaining = 0
	}
	return ResumeParams{
		AlreadyProcessed:   cp.Processed,
		SkipContacts:       cp.Processed,
		EstimatedRemaining: remaining,
		BatchSize:          batchSize,
	}
}
