package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/pipesync/internal/core/domain"
)

var (
	// ErrUserNotFound is returned when a user doesn't exist
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository handles user storage operations
type UserRepository interface {
	// GetByID retrieves a user by id
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// UpdateLastSync sets the user's last sync timestamp
	UpdateLastSync(ctx context.Context, id string, ts time.Time) error

	// ClearLastSync clears the last sync timestamp and resets sync status
	ClearLastSync(ctx context.Context, id string) error

	// UpdateSyncStatus updates the coarse per-user sync indicator
	UpdateSyncStatus(ctx context.Context, id string, status domain.UserSyncStatus) error
}

// ContactRepository handles contact storage operations
type ContactRepository interface {
	// Create persists a new contact
	Create(ctx context.Context, contact *domain.Contact) error

	// Update persists changes to an existing contact
	Update(ctx context.Context, contact *domain.Contact) error

	// GetByPipedriveID retrieves a contact by external person id,
	// returning (nil, nil) when no row matches
	GetByPipedriveID(ctx context.Context, userID, personID string) (*domain.Contact, error)

	// CountByOrganization counts contacts linked to an organization
	CountByOrganization(ctx context.Context, orgID string) (int, error)

	// LastActivityByOrganization returns the most recent last-contacted
	// timestamp among an organization's contacts, nil when none is set
	LastActivityByOrganization(ctx context.Context, orgID string) (*time.Time, error)
}

// OrganizationRepository handles organization storage operations
type OrganizationRepository interface {
	// Create persists a new organization
	Create(ctx context.Context, org *domain.Organization) error

	// Update persists changes to an existing organization
	Update(ctx context.Context, org *domain.Organization) error

	// GetByPipedriveID retrieves an organization by external org id,
	// returning (nil, nil) when no row matches
	GetByPipedriveID(ctx context.Context, userID, orgID string) (*domain.Organization, error)

	// GetByNormalizedName retrieves an organization by exact normalized name
	GetByNormalizedName(ctx context.Context, userID, normalized string) (*domain.Organization, error)

	// FindByNormalizedNameLoose retrieves an organization whose normalized
	// name contains the given one. Legacy shim for rows written before
	// normalization was applied consistently at write time; exact lookup
	// must be tried first.
	FindByNormalizedNameLoose(ctx context.Context, userID, normalized string) (*domain.Organization, error)
}

// SyncHistoryRepository handles sync audit rows. Rows are never pruned:
// the latest SUCCESS row is the recovery checkpoint.
type SyncHistoryRepository interface {
	// Create persists a new sync history row
	Create(ctx context.Context, h *domain.SyncHistory) error

	// Update persists changes to a sync history row
	Update(ctx context.Context, h *domain.SyncHistory) error

	// GetByID retrieves a row by id, returning (nil, nil) when absent
	GetByID(ctx context.Context, id string) (*domain.SyncHistory, error)

	// LatestByStatus retrieves the user's most recent row with the given
	// status, ordered by end time descending; (nil, nil) when none exists
	LatestByStatus(ctx context.Context, userID string, status domain.SyncStatus) (*domain.SyncHistory, error)

	// ListByUser retrieves a user's rows, newest first
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.SyncHistory, error)
}
