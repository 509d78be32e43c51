package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/pipesync/internal/core/domain"
)

const orgColumns = `id, user_id, name, normalized_name, pipedrive_org_id,
	industry, size, website, address, country, city,
	contact_count, last_activity_at, created_at, updated_at`

// OrgRepo implements storage.OrganizationRepository using PostgreSQL.
type OrgRepo struct {
	db *DB
}

// NewOrgRepo creates a new PostgreSQL organization repository.
func NewOrgRepo(db *DB) *OrgRepo {
	return &OrgRepo{db: db}
}

// Create persists a new organization.
func (r *OrgRepo) Create(ctx context.Context, org *domain.Organization) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO organizations (
		    id, user_id, name, normalized_name, pipedrive_org_id,
		    industry, size, website, address, country, city,
		    contact_count, last_activity_at, created_at, updated_at
		 ) VALUES (
		    :id, :user_id, :name, :normalized_name, :pipedrive_org_id,
		    :industry, :size, :website, :address, :country, :city,
		    :contact_count, :last_activity_at, :created_at, :updated_at
		 )`, org)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// Update persists changes to an existing organization.
func (r *OrgRepo) Update(ctx context.Context, org *domain.Organization) error {
	_, err := r.db.NamedExecContext(ctx,
		`UPDATE organizations SET
		    name = :name,
		    normalized_name = :normalized_name,
		    pipedrive_org_id = :pipedrive_org_id,
		    industry = :industry,
		    size = :size,
		    website = :website,
		    address = :address,
		    country = :country,
		    city = :city,
		    contact_count = :contact_count,
		    last_activity_at = :last_activity_at,
		    updated_at = now()
		  WHERE id = :id`, org)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return nil
}

// GetByPipedriveID retrieves an organization by external org id.
func (r *OrgRepo) GetByPipedriveID(ctx context.Context, userID, orgID string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.GetContext(ctx, &org,
		`SELECT `+orgColumns+`
		   FROM organizations
		  WHERE user_id = $1 AND pipedrive_org_id = $2`,
		userID, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization by org id: %w", err)
	}
	return &org, nil
}

// GetByNormalizedName retrieves an organization by exact normalized name.
func (r *OrgRepo) GetByNormalizedName(ctx context.Context, userID, normalized string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.GetContext(ctx, &org,
		`SELECT `+orgColumns+`
		   FROM organizations
		  WHERE user_id = $1 AND normalized_name = $2`,
		userID, normalized)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization by name: %w", err)
	}
	return &org, nil
}

// FindByNormalizedNameLoose retrieves an organization whose normalized name
// contains the given one. Oldest row wins so repeated lookups are stable.
func (r *OrgRepo) FindByNormalizedNameLoose(ctx context.Context, userID, normalized string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.GetContext(ctx, &org,
		`SELECT `+orgColumns+`
		   FROM organizations
		  WHERE user_id = $1 AND normalized_name LIKE '%' || $2 || '%'
		  ORDER BY created_at ASC
		  LIMIT 1`,
		userID, normalized)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find organization by loose name: %w", err)
	}
	return &org, nil
}
