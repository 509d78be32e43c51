package domain

import "time"

// Organization represents a locally persisted organization.
// NormalizedName is the dedup key: at most one row per normalized name
// or per external org id within a user scope.
type Organization struct {
	ID             string     `db:"id"              json:"id"`
	UserID         string     `db:"user_id"         json:"user_id"`
	Name           string     `db:"name"            json:"name"`
	NormalizedName string     `db:"normalized_name" json:"normalized_name"`
	PipedriveOrgID *string    `db:"pipedrive_org_id" json:"pipedrive_org_id,omitempty"`
	Industry       *string    `db:"industry"        json:"industry,omitempty"`
	Size           *string    `db:"size"            json:"size,omitempty"`
	Website        *string    `db:"website"         json:"website,omitempty"`
	Address        *string    `db:"address"         json:"address,omitempty"`
	Country        *string    `db:"country"         json:"country,omitempty"`
	City           *string    `db:"city"            json:"city,omitempty"`
	ContactCount   int        `db:"contact_count"   json:"contact_count"`
	LastActivityAt *time.Time `db:"last_activity_at" json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}
