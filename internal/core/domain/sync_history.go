package domain

import "time"

// SyncType selects full or incremental reconciliation.
type SyncType string

const (
	SyncTypeFull        SyncType = "FULL"
	SyncTypeIncremental SyncType = "INCREMENTAL"
)

// SyncStatus is the lifecycle state of one sync run.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "PENDING"
	SyncStatusSuccess SyncStatus = "SUCCESS"
	SyncStatusFailed  SyncStatus = "FAILED"
)

// SyncHistory is the durable audit record of one sync attempt.
// The most recent SUCCESS row doubles as the recovery checkpoint.
type SyncHistory struct {
	ID                string     `db:"id"                 json:"id"`
	UserID            string     `db:"user_id"            json:"user_id"`
	SyncType          SyncType   `db:"sync_type"          json:"sync_type"`
	Status            SyncStatus `db:"status"             json:"status"`
	StartedAt         time.Time  `db:"started_at"         json:"started_at"`
	EndedAt           *time.Time `db:"ended_at"           json:"ended_at,omitempty"`
	TotalContacts     int        `db:"total_contacts"     json:"total_contacts"`
	ProcessedContacts int        `db:"processed_contacts" json:"processed_contacts"`
	CreatedContacts   int        `db:"created_contacts"   json:"created_contacts"`
	UpdatedContacts   int        `db:"updated_contacts"   json:"updated_contacts"`
	FailedContacts    int        `db:"failed_contacts"    json:"failed_contacts"`
	Error             *string    `db:"error"              json:"error,omitempty"`
}
