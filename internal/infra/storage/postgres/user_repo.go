package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/infra/storage"
)

// UserRepo implements storage.UserRepository using PostgreSQL.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new PostgreSQL user repository.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetByID retrieves a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u,
		`SELECT id, email, pipedrive_api_token, last_sync_timestamp, sync_status,
		        created_at, updated_at
		   FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UpdateLastSync sets the user's last sync timestamp.
func (r *UserRepo) UpdateLastSync(ctx context.Context, id string, ts time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_sync_timestamp = $1, updated_at = now() WHERE id = $2`,
		ts, id)
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	return nil
}

// ClearLastSync clears the last sync timestamp and resets sync status.
func (r *UserRepo) ClearLastSync(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_sync_timestamp = NULL, sync_status = $1,
		        updated_at = now()
		  WHERE id = $2`,
		domain.UserSyncIdle, id)
	if err != nil {
		return fmt.Errorf("failed to clear last sync: %w", err)
	}
	return nil
}

// UpdateSyncStatus updates the coarse per-user sync indicator.
func (r *UserRepo) UpdateSyncStatus(ctx context.Context, id string, status domain.UserSyncStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET sync_status = $1, updated_at = now() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}
