package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/pipesync/internal/core/domain"
)

// ContactRepo implements storage.ContactRepository using PostgreSQL.
type ContactRepo struct {
	db *DB
}

// NewContactRepo creates a new PostgreSQL contact repository.
func NewContactRepo(db *DB) *ContactRepo {
	return &ContactRepo{db: db}
}

// Create persists a new contact.
func (r *ContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO contacts (
		    id, user_id, name, email, phone, organization_name,
		    warmness_score, last_contacted_at, added_to_campaign,
		    pipedrive_person_id, pipedrive_org_id, organization_id,
		    remote_updated_at, created_at, updated_at
		 ) VALUES (
		    :id, :user_id, :name, :email, :phone, :organization_name,
		    :warmness_score, :last_contacted_at, :added_to_campaign,
		    :pipedrive_person_id, :pipedrive_org_id, :organization_id,
		    :remote_updated_at, :created_at, :updated_at
		 )`, c)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// Update persists changes to an existing contact.
func (r *ContactRepo) Update(ctx context.Context, c *domain.Contact) error {
	_, err := r.db.NamedExecContext(ctx,
		`UPDATE contacts SET
		    name = :name,
		    email = :email,
		    phone = :phone,
		    organization_name = :organization_name,
		    warmness_score = :warmness_score,
		    last_contacted_at = :last_contacted_at,
		    added_to_campaign = :added_to_campaign,
		    pipedrive_person_id = :pipedrive_person_id,
		    pipedrive_org_id = :pipedrive_org_id,
		    organization_id = :organization_id,
		    remote_updated_at = :remote_updated_at,
		    updated_at = now()
		  WHERE id = :id`, c)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	return nil
}

// GetByPipedriveID retrieves a contact by external person id.
func (r *ContactRepo) GetByPipedriveID(ctx context.Context, userID, personID string) (*domain.Contact, error) {
	var c domain.Contact
	err := r.db.GetContext(ctx, &c,
		`SELECT id, user_id, name, email, phone, organization_name,
		        warmness_score, last_contacted_at, added_to_campaign,
		        pipedrive_person_id, pipedrive_org_id, organization_id,
		        remote_updated_at, created_at, updated_at
		   FROM contacts
		  WHERE user_id = $1 AND pipedrive_person_id = $2`,
		userID, personID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact by person id: %w", err)
	}
	return &c, nil
}

// CountByOrganization counts contacts linked to an organization.
func (r *ContactRepo) CountByOrganization(ctx context.Context, orgID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM contacts WHERE organization_id = $1`, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	return count, nil
}

// LastActivityByOrganization returns the most recent last-contacted
// timestamp among an organization's contacts.
func (r *ContactRepo) LastActivityByOrganization(ctx context.Context, orgID string) (*time.Time, error) {
	var ts sql.NullTime
	err := r.db.GetContext(ctx, &ts,
		`SELECT MAX(last_contacted_at) FROM contacts WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get last activity: %w", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Time, nil
}
