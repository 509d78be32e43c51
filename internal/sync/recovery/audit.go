package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/infra/storage"
	"github.com/vietddude/pipesync/internal/sync/classify"
)

// RecordFailure finalizes a sync history row as FAILED with a
// "{KIND}: {message}" error string and an end timestamp. Failures
// writing the audit row are swallowed: the run's own error must not be
// displaced by a bookkeeping error.
func RecordFailure(
	ctx context.Context,
	repo storage.SyncHistoryRepository,
	syncID string,
	err error,
) {
	row, lookupErr := repo.GetByID(ctx, syncID)
	if lookupErr != nil || row == nil {
		slog.Error("failed to load sync row for failure audit",
			"sync_id", syncID, "error", lookupErr)
		return
	}

	c := classify.Classify(err)
	msg := fmt.Sprintf("%s: %v", c.Kind, err)
	now := time.Now().UTC()

	row.Status = domain.SyncStatusFailed
	row.Error = &msg
	row.EndedAt = &now

	if updateErr := repo.Update(ctx, row); updateErr != nil {
		slog.Error("failed to record sync failure",
			"sync_id", syncID, "error", updateErr)
	}
}
