package domain

import "time"

// Contact represents a locally persisted CRM contact.
// Contacts are created and updated by sync, never deleted by it.
type Contact struct {
	ID                string     `db:"id"            json:"id"`
	UserID            string     `db:"user_id"       json:"user_id"`
	Name              string     `db:"name"          json:"name"`
	Email             *string    `db:"email"         json:"email,omitempty"`
	Phone             *string    `db:"phone"         json:"phone,omitempty"`
	OrganizationName  *string    `db:"organization_name" json:"organization_name,omitempty"`
	WarmnessScore     int        `db:"warmness_score" json:"warmness_score"` // 0-10, higher = warmer
	LastContactedAt   *time.Time `db:"last_contacted_at" json:"last_contacted_at,omitempty"`
	AddedToCampaign   bool       `db:"added_to_campaign" json:"added_to_campaign"`
	PipedrivePersonID *string    `db:"pipedrive_person_id" json:"pipedrive_person_id,omitempty"`
	PipedriveOrgID    *string    `db:"pipedrive_org_id" json:"pipedrive_org_id,omitempty"`
	OrganizationID    *string    `db:"organization_id" json:"organization_id,omitempty"`
	RemoteUpdatedAt   *time.Time `db:"remote_updated_at" json:"remote_updated_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"    json:"updated_at"`
}
