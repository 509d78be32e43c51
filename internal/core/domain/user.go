package domain

import "time"

// UserSyncStatus is the coarse per-user sync indicator shown in the UI.
type UserSyncStatus string

const (
	UserSyncIdle    UserSyncStatus = "idle"
	UserSyncRunning UserSyncStatus = "syncing"
	UserSyncFailed  UserSyncStatus = "failed"
)

// User holds the per-tenant remote credential and sync bookkeeping.
type User struct {
	ID                string         `db:"id"                  json:"id"`
	Email             string         `db:"email"               json:"email"`
	PipedriveAPIToken *string        `db:"pipedrive_api_token" json:"-"`
	LastSyncTimestamp *time.Time     `db:"last_sync_timestamp" json:"last_sync_timestamp,omitempty"`
	SyncStatus        UserSyncStatus `db:"sync_status"         json:"sync_status"`
	CreatedAt         time.Time      `db:"created_at"          json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"          json:"updated_at"`
}
