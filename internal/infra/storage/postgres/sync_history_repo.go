package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/pipesync/internal/core/domain"
)

const syncHistoryColumns = `id, user_id, sync_type, status, started_at, ended_at,
	total_contacts, processed_contacts, created_contacts,
	updated_contacts, failed_contacts, error`

// SyncHistoryRepo implements storage.SyncHistoryRepository using PostgreSQL.
type SyncHistoryRepo struct {
	db *DB
}

// NewSyncHistoryRepo creates a new PostgreSQL sync history repository.
func NewSyncHistoryRepo(db *DB) *SyncHistoryRepo {
	return &SyncHistoryRepo{db: db}
}

// Create persists a new sync history row.
func (r *SyncHistoryRepo) Create(ctx context.Context, h *domain.SyncHistory) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO sync_history (
		    id, user_id, sync_type, status, started_at, ended_at,
		    total_contacts, processed_contacts, created_contacts,
		    updated_contacts, failed_contacts, error
		 ) VALUES (
		    :id, :user_id, :sync_type, :status, :started_at, :ended_at,
		    :total_contacts, :processed_contacts, :created_contacts,
		    :updated_contacts, :failed_contacts, :error
		 )`, h)
	if err != nil {
		return fmt.Errorf("failed to create sync history: %w", err)
	}
	return nil
}

// Update persists changes to a sync history row.
func (r *SyncHistoryRepo) Update(ctx context.Context, h *domain.SyncHistory) error {
	_, err := r.db.NamedExecContext(ctx,
		`UPDATE sync_history SET
		    status = :status,
		    ended_at = :ended_at,
		    total_contacts = :total_contacts,
		    processed_contacts = :processed_contacts,
		    created_contacts = :created_contacts,
		    updated_contacts = :updated_contacts,
		    failed_contacts = :failed_contacts,
		    error = :error
		  WHERE id = :id`, h)
	if err != nil {
		return fmt.Errorf("failed to update sync history: %w", err)
	}
	return nil
}

// GetByID retrieves a row by id.
func (r *SyncHistoryRepo) GetByID(ctx context.Context, id string) (*domain.SyncHistory, error) {
	var h domain.SyncHistory
	err := r.db.GetContext(ctx, &h,
		`SELECT `+syncHistoryColumns+` FROM sync_history WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync history: %w", err)
	}
	return &h, nil
}

// LatestByStatus retrieves the user's most recent row with the given status.
func (r *SyncHistoryRepo) LatestByStatus(ctx context.Context, userID string, status domain.SyncStatus) (*domain.SyncHistory, error) {
	var h domain.SyncHistory
	err := r.db.GetContext(ctx, &h,
		`SELECT `+syncHistoryColumns+`
		   FROM sync_history
		  WHERE user_id = $1 AND status = $2
		  ORDER BY ended_at DESC NULLS LAST
		  LIMIT 1`,
		userID, status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sync history: %w", err)
	}
	return &h, nil
}

// ListByUser retrieves a user's rows, newest first.
func (r *SyncHistoryRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.SyncHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows := make([]*domain.SyncHistory, 0, limit)
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+syncHistoryColumns+`
		   FROM sync_history
		  WHERE user_id = $1
		  ORDER BY started_at DESC
		  LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync history: %w", err)
	}
	return rows, nil
}
