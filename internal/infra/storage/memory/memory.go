package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/infra/storage"
)

// MemoryStorage backs all repositories with mutex-guarded maps. Used for
// tests and for running without a database.
type MemoryStorage struct {
	mu       sync.RWMutex
	users    map[string]*domain.User
	contacts map[string]*domain.Contact
	orgs     map[string]*domain.Organization
	history  map[string]*domain.SyncHistory
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[string]*domain.User),
		contacts: make(map[string]*domain.Contact),
		orgs:     make(map[string]*domain.Organization),
		history:  make(map[string]*domain.SyncHistory),
	}
}

// SeedUser inserts a user row (setup helper for tests and dev mode).
func (s *MemoryStorage) SeedUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// -----------------------------------------------------------------------------
// User Repository
// -----------------------------------------------------------------------------

type UserRepo struct {
	store *MemoryStorage
}

func NewUserRepo(store *MemoryStorage) *UserRepo {
	return &UserRepo{store: store}
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	u, ok := r.store.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) UpdateLastSync(ctx context.Context, id string, ts time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.LastSyncTimestamp = &ts
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepo) ClearLastSync(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.LastSyncTimestamp = nil
	u.SyncStatus = domain.UserSyncIdle
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepo) UpdateSyncStatus(ctx context.Context, id string, status domain.UserSyncStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.SyncStatus = status
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// -----------------------------------------------------------------------------
// Contact Repository
// -----------------------------------------------------------------------------

type ContactRepo struct {
	store *MemoryStorage

	// CreateErr, when set, makes every Create fail (failure-injection for tests).
	CreateErr error
}

func NewContactRepo(store *MemoryStorage) *ContactRepo {
	return &ContactRepo{store: store}
}

func (r *ContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *c
	r.store.contacts[c.ID] = &cp
	return nil
}

func (r *ContactRepo) Update(ctx context.Context, c *domain.Contact) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *c
	r.store.contacts[c.ID] = &cp
	return nil
}

func (r *ContactRepo) GetByPipedriveID(ctx context.Context, userID, personID string) (*domain.Contact, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, c := range r.store.contacts {
		if c.UserID == userID && c.PipedrivePersonID != nil && *c.PipedrivePersonID == personID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *ContactRepo) CountByOrganization(ctx context.Context, orgID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, c := range r.store.contacts {
		if c.OrganizationID != nil && *c.OrganizationID == orgID {
			count++
		}
	}
	return count, nil
}

func (r *ContactRepo) LastActivityByOrganization(ctx context.Context, orgID string) (*time.Time, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var last *time.Time
	for _, c := range r.store.contacts {
		if c.OrganizationID == nil || *c.OrganizationID != orgID || c.LastContactedAt == nil {
			continue
		}
		if last == nil || c.LastContactedAt.After(*last) {
			t := *c.LastContactedAt
			last = &t
		}
	}
	return last, nil
}

// All returns every stored contact (test helper).
func (r *ContactRepo) All() []*domain.Contact {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Contact, 0, len(r.store.contacts))
	for _, c := range r.store.contacts {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

// -----------------------------------------------------------------------------
// Organization Repository
// -----------------------------------------------------------------------------

type OrgRepo struct {
	store *MemoryStorage

	// Creates counts Create calls (assertion helper for tests).
	Creates int
}

func NewOrgRepo(store *MemoryStorage) *OrgRepo {
	return &OrgRepo{store: store}
}

func (r *OrgRepo) Create(ctx context.Context, org *domain.Organization) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.Creates++
	cp := *org
	r.store.orgs[org.ID] = &cp
	return nil
}

func (r *OrgRepo) Update(ctx context.Context, org *domain.Organization) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *org
	r.store.orgs[org.ID] = &cp
	return nil
}

func (r *OrgRepo) GetByPipedriveID(ctx context.Context, userID, orgID string) (*domain.Organization, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, o := range r.store.orgs {
		if o.UserID == userID && o.PipedriveOrgID != nil && *o.PipedriveOrgID == orgID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *OrgRepo) GetByNormalizedName(ctx context.Context, userID, normalized string) (*domain.Organization, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, o := range r.store.orgs {
		if o.UserID == userID && o.NormalizedName == normalized {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *OrgRepo) FindByNormalizedNameLoose(ctx context.Context, userID, normalized string) (*domain.Organization, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, o := range r.store.orgs {
		if o.UserID == userID && strings.Contains(o.NormalizedName, normalized) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

// -----------------------------------------------------------------------------
// Sync History Repository
// -----------------------------------------------------------------------------

type SyncHistoryRepo struct {
	store *MemoryStorage
}

func NewSyncHistoryRepo(store *MemoryStorage) *SyncHistoryRepo {
	return &SyncHistoryRepo{store: store}
}

func (r *SyncHistoryRepo) Create(ctx context.Context, h *domain.SyncHistory) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *h
	r.store.history[h.ID] = &cp
	return nil
}

func (r *SyncHistoryRepo) Update(ctx context.Context, h *domain.SyncHistory) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *h
	r.store.history[h.ID] = &cp
	return nil
}

func (r *SyncHistoryRepo) GetByID(ctx context.Context, id string) (*domain.SyncHistory, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if h, ok := r.store.history[id]; ok {
		cp := *h
		return &cp, nil
	}
	return nil, nil
}

func (r *SyncHistoryRepo) LatestByStatus(ctx context.Context, userID string, status domain.SyncStatus) (*domain.SyncHistory, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var latest *domain.SyncHistory
	for _, h := range r.store.history {
		if h.UserID != userID || h.Status != status || h.EndedAt == nil {
			continue
		}
		if latest == nil || h.EndedAt.After(*latest.EndedAt) {
			latest = h
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *SyncHistoryRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.SyncHistory, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var rows []*domain.SyncHistory
	for _, h := range r.store.history {
		if h.UserID == userID {
			cp := *h
			rows = append(rows, &cp)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].StartedAt.After(rows[j].StartedAt)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
