// Package orgresolve finds or creates local organizations for remote
// organization references, deduplicating repeated lookups within one
// sync run.
package orgresolve

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/infra/storage"
	"github.com/vietddude/pipesync/internal/sync/classify"
)

var (
	punctuation = regexp.MustCompile(`[.,&\-_]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// NormalizeName derives the dedup key for an organization name:
// lower-cased, punctuation collapsed to spaces, runs of whitespace
// collapsed to one space, trimmed. Idempotent.
func NormalizeName(name string) string {
	s := strings.ToLower(name)
	s = punctuation.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// OrgData carries the fields available for one remote organization.
type OrgData struct {
	Name           string
	PipedriveOrgID string
	Industry       string
	Size           string
	Website        string
	Address        string
	Country        string
	City           string
}

// Resolver resolves remote organizations to local rows for one user.
// One Resolver instance is created per sync run: its cache is private to
// the run and discarded with it, and it guarantees a remote organization
// seen twice in a run performs exactly one store lookup/create.
type Resolver struct {
	orgs   storage.OrganizationRepository
	userID string

	mu    sync.Mutex
	cache map[string]*domain.Organization // keyed by external org id or normalized name
}

// NewResolver creates a per-run resolver for one user.
func NewResolver(orgs storage.OrganizationRepository, userID string) *Resolver {
	return &Resolver{
		orgs:   orgs,
		userID: userID,
		cache:  make(map[string]*domain.Organization),
	}
}

// FindOrCreate returns the local organization for data, creating it when
// no row matches by external org id or normalized name. Repeated calls
// with the same organization within one run hit the cache.
func (r *Resolver) FindOrCreate(ctx context.Context, data OrgData) (*domain.Organization, error) {
	if strings.TrimSpace(data.Name) == "" {
		return nil, classify.Errorf(classify.KindValidation,
			"validation failed: organization requires a name")
	}

	normalized := NormalizeName(data.Name)
	key := data.PipedriveOrgID
	if key == "" {
		key = normalized
	}

	// Lookups for the same org within a run are serialized through the
	// cache so exactly one miss-then-create is observed.
	r.mu.Lock()
	defer r.mu.Unlock()

	if org, ok := r.cache[key]; ok {
		return org, nil
	}

	org, err := r.lookup(ctx, data.PipedriveOrgID, normalized)
	if err != nil {
		return nil, err
	}

	if org != nil {
		// Backfill the external id onto rows created before the remote
		// link existed.
		if org.PipedriveOrgID == nil && data.PipedriveOrgID != "" {
			org.PipedriveOrgID = &data.PipedriveOrgID
			org.UpdatedAt = time.Now().UTC()
			if err := r.orgs.Update(ctx, org); err != nil {
				return nil, fmt.Errorf("failed to backfill org external id: %w", err)
			}
		}
		r.cache[key] = org
		return org, nil
	}

	org = r.newOrganization(data, normalized)
	if err := r.orgs.Create(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create organization %q: %w", data.Name, err)
	}
	slog.Debug("created organization",
		"user_id", r.userID, "name", data.Name, "external_id", data.PipedriveOrgID)

	r.cache[key] = org
	return org, nil
}

func (r *Resolver) lookup(ctx context.Context, externalID, normalized string) (*domain.Organization, error) {
	if externalID != "" {
		org, err := r.orgs.GetByPipedriveID(ctx, r.userID, externalID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up org by external id: %w", err)
		}
		if org != nil {
			return org, nil
		}
	}

	if normalized == "" {
		return nil, nil
	}

	org, err := r.orgs.GetByNormalizedName(ctx, r.userID, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to look up org by normalized name: %w", err)
	}
	if org != nil {
		return org, nil
	}

	// Legacy shim: rows written before normalization was enforced at
	// write time. Exact match above always wins.
	org, err = r.orgs.FindByNormalizedNameLoose(ctx, r.userID, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed loose org lookup: %w", err)
	}
	return org, nil
}

func (r *Resolver) newOrganization(data OrgData, normalized string) *domain.Organization {
	now := time.Now().UTC()
	org := &domain.Organization{
		ID:             uuid.New().String(),
		UserID:         r.userID,
		Name:           data.Name,
		NormalizedName: normalized,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if data.PipedriveOrgID != "" {
		org.PipedriveOrgID = &data.PipedriveOrgID
	}
	org.Industry = optional(data.Industry)
	org.Size = optional(data.Size)
	org.Website = optional(data.Website)
	org.Address = optional(data.Address)
	org.Country = optional(data.Country)
	org.City = optional(data.City)
	return org
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UpdateStats recomputes and persists an organization's denormalized
// contact count and last-activity timestamp. Called after a run, not in
// the per-contact hot path.
func UpdateStats(
	ctx context.Context,
	orgs storage.OrganizationRepository,
	contacts storage.ContactRepository,
	org *domain.Organization,
) error {
	count, err := contacts.CountByOrganization(ctx, org.ID)
	if err != nil {
		return fmt.Errorf("failed to count org contacts: %w", err)
	}
	last, err := contacts.LastActivityByOrganization(ctx, org.ID)
	if err != nil {
		return fmt.Errorf("failed to find org last activity: %w", err)
	}

	org.ContactCount = count
	org.LastActivityAt = last
	org.UpdatedAt = time.Now().UTC()

	if err := orgs.Update(ctx, org); err != nil {
		return fmt.Errorf("failed to persist org stats: %w", err)
	}
	return nil
}
