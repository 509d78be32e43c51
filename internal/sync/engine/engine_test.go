package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/infra/storage/memory"
	"github.com/vietddude/pipesync/internal/sync/classify"
)

// =============================================================================
// Fake Remote Client
// =============================================================================

type fakeRemote struct {
	persons    []domain.RemotePerson
	orgDetails map[string]*domain.RemoteOrganization

	connectErr error
	personsErr error
	detailsErr error

	personCalls int
	detailCalls int
	lastSince   *time.Time
}

func (f *fakeRemote) TestConnection(ctx context.Context) error { return f.connectErr }

func (f *fakeRemote) GetPersons(ctx context.Context, since *time.Time) ([]domain.RemotePerson, error) {
	f.personCalls++
	f.lastSince = since
	if f.personsErr != nil {
		return nil, f.personsErr
	}
	return f.persons, nil
}

func (f *fakeRemote) GetOrganizationDetails(ctx context.Context, id string) (*domain.RemoteOrganization, error) {
	f.detailCalls++
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	return f.orgDetails[id], nil
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	engine   *Engine
	store    *memory.MemoryStorage
	users    *memory.UserRepo
	contacts *memory.ContactRepo
	orgs     *memory.OrgRepo
	history  *memory.SyncHistoryRepo
	remote   *fakeRemote
}

func newHarness(t *testing.T, remote *fakeRemote) *harness {
	t.Helper()
	store := memory.NewMemoryStorage()
	token := "token"
	store.SeedUser(&domain.User{ID: "u1", Email: "u1@example.com", PipedriveAPIToken: &token})

	h := &harness{
		store:    store,
		users:    memory.NewUserRepo(store),
		contacts: memory.NewContactRepo(store),
		orgs:     memory.NewOrgRepo(store),
		history:  memory.NewSyncHistoryRepo(store),
		remote:   remote,
	}

	cfg := DefaultConfig()
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxRetries = 1
	h.engine = New(cfg, h.users, h.contacts, h.orgs, h.history,
		func(token string) RemoteClient { return remote })
	return h
}

func (h *harness) latestHistory(t *testing.T) *domain.SyncHistory {
	t.Helper()
	rows, err := h.history.ListByUser(context.Background(), "u1", 1)
	if err != nil || len(rows) == 0 {
		t.Fatalf("no history rows: %v", err)
	}
	return rows[0]
}

func person(id int64, name, email, updateTime string, orgID int64, orgName string) domain.RemotePerson {
	p := domain.RemotePerson{ID: id, Name: name, UpdateTime: updateTime}
	if email != "" {
		p.Email = []domain.RemoteEmail{{Value: email, Primary: true}}
	}
	if orgID != 0 {
		p.OrgID = &domain.RemoteOrgRef{Value: orgID, Name: orgName}
	}
	return p
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRun_EmptyRemote(t *testing.T) {
	h := newHarness(t, &fakeRemote{})

	res, err := h.engine.Run(context.Background(), "u1", Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Processed != 0 || res.Created != 0 || res.Updated != 0 || res.Failed != 0 {
		t.Errorf("expected all-zero counters, got %+v", res)
	}

	row := h.latestHistory(t)
	if row.Status != domain.SyncStatusSuccess {
		t.Errorf("history status = %s, want SUCCESS", row.Status)
	}
}

func TestRun_SharedOrganizationCreatedOnce(t *testing.T) {
	h := newHarness(t, &fakeRemote{
		persons: []domain.RemotePerson{
			person(1, "Alice", "alice@shared.org", "2024-01-01 10:00:00", 6, "Shared Organization"),
			person(2, "Bob", "bob@shared.org", "2024-01-01 11:00:00", 6, "Shared Organization"),
		},
	})

	res, err := h.engine.Run(context.Background(), "u1", Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Created != 2 || res.Processed != 2 {
		t.Fatalf("expected 2 created, got %+v", res)
	}

	if h.orgs.Creates != 1 {
		t.Fatalf("expected exactly 1 organization create, got %d", h.orgs.Creates)
	}
	if h.remote.detailCalls != 1 {
		t.Errorf("expected exactly 1 enrichment call, got %d", h.remote.detailCalls)
	}

	contacts := h.contacts.All()
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(contacts))
	}
	if contacts[0].OrganizationID == nil || contacts[1].OrganizationID == nil ||
		*contacts[0].OrganizationID != *contacts[1].OrganizationID {
		t.Error("both contacts must reference the same local organization")
	}
}

func TestRun_UpdateOnlyWhenRemoteNewer(t *testing.T) {
	ctx := context.Background()

	// Existing local contact last seen at noon.
	h := newHarness(t, &fakeRemote{
		persons: []domain.RemotePerson{
			person(1, "Alice Old", "old@example.com", "2024-01-01 10:00:00", 0, ""),
		},
	})
	stored := domain.ParseRemoteTime("2024-01-01 12:00:00")
	pid := "1"
	_ = h.contacts.Create(ctx, &domain.Contact{
		ID: "c1", UserID: "u1", Name: "Alice", PipedrivePersonID: &pid,
		RemoteUpdatedAt: stored,
	})

	// Remote older: nothing changes.
	res, err := h.engine.Run(ctx, "u1", Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Updated != 0 || res.Processed != 1 {
		t.Fatalf("stale remote must not update, got %+v", res)
	}

	// Remote newer: fields come across.
	h.remote.persons = []domain.RemotePerson{
		person(1, "Alice New", "new@example.com", "2024-01-01 14:00:00", 0, ""),
	}
	res, err = h.engine.Run(ctx, "u1", Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Updated != 1 {
		t.Fatalf("newer remote must update, got %+v", res)
	}

	updated, _ := h.contacts.GetByPipedriveID(ctx, "u1", "1")
	if updated.Name != "Alice New" {
		t.Errorf("name = %q, want Alice New", updated.Name)
	}
	if updated.Email == nil || *updated.Email != "new@example.com" {
		t.Errorf("email = %v, want new@example.com", updated.Email)
	}
}

func TestRun_AllCreatesFail(t *testing.T) {
	h := newHarness(t, &fakeRemote{
		persons: []domain.RemotePerson{
			person(1, "Alice", "", "2024-01-01 10:00:00", 0, ""),
			person(2, "Bob", "", "2024-01-01 10:00:00", 0, ""),
		},
	})
	h.contacts.CreateErr = errors.New("database write refused")

	_, err := h.engine.Run(context.Background(), "u1", Options{})
	if err == nil {
		t.Fatal("expected run-level failure when every contact fails")
	}

	row := h.latestHistory(t)
	if row.Status != domain.SyncStatusFailed {
		t.Fatalf("history status = %s, want FAILED", row.Status)
	}
	if row.ProcessedContacts != 2 || row.FailedContacts != 2 {
		t.Errorf("failed must equal processed, got %+v", row)
	}
	if row.TotalContacts != 2 {
		t.Errorf("total = %d, want 2 on the FAILED row", row.TotalContacts)
	}
	if row.EndedAt == nil {
		t.Error("FAILED row must carry an end timestamp")
	}
	if row.Error == nil || !strings.Contains(*row.Error, "DATABASE") {
		t.Errorf("error string should carry the kind, got %v", row.Error)
	}
}

func TestRun_PartialFailureStillSucceeds(t *testing.T) {
	h := newHarness(t, &fakeRemote{
		persons: []domain.RemotePerson{
			// Org reference with an id but no resolvable name anywhere:
			// the resolver rejects it, failing this one contact.
			person(1, "Alice", "", "2024-01-01 10:00:00", 9, ""),
			person(2, "Bob", "", "2024-01-01 10:00:00", 0, ""),
		},
	})

	res, err := h.engine.Run(context.Background(), "u1", Options{})
	if err != nil {
		t.Fatalf("partial failure must not fail the run: %v", err)
	}
	if res.Failed != 1 || res.Created != 1 || res.Processed != 2 {
		t.Fatalf("expected 1 failed + 1 created, got %+v", res)
	}

	row := h.latestHistory(t)
	if row.Status != domain.SyncStatusSuccess {
		t.Errorf("history status = %s, want SUCCESS with failures", row.Status)
	}
}

func TestRun_NoToken(t *testing.T) {
	h := newHarness(t, &fakeRemote{})
	h.store.SeedUser(&domain.User{ID: "u2", Email: "u2@example.com"})

	_, err := h.engine.Run(context.Background(), "u2", Options{})
	if err == nil {
		t.Fatal("expected failure without a token")
	}
	if classify.Classify(err).Kind != classify.KindAuthentication {
		t.Errorf("no-token error classified as %s", classify.Classify(err).Kind)
	}

	// Fail-fast: no history row may exist.
	rows, _ := h.history.ListByUser(context.Background(), "u2", 10)
	if len(rows) != 0 {
		t.Errorf("expected no history rows, got %d", len(rows))
	}
}

func TestRun_ConnectionTestFailsFast(t *testing.T) {
	h := newHarness(t, &fakeRemote{connectErr: errors.New("unauthorized: invalid api token")})

	_, err := h.engine.Run(context.Background(), "u1", Options{})
	if err == nil {
		t.Fatal("expected connection failure")
	}
	rows, _ := h.history.ListByUser(context.Background(), "u1", 10)
	if len(rows) != 0 {
		t.Errorf("expected no history rows on fail-fast, got %d", len(rows))
	}
}

func TestRun_IncrementalUsesLastSync(t *testing.T) {
	h := newHarness(t, &fakeRemote{})
	ctx := context.Background()

	last := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	_ = h.users.UpdateLastSync(ctx, "u1", last)

	res, err := h.engine.Run(ctx, "u1", Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.SyncType != domain.SyncTypeIncremental {
		t.Errorf("sync type = %s, want INCREMENTAL", res.SyncType)
	}
	if h.remote.lastSince == nil || !h.remote.lastSince.Equal(last) {
		t.Errorf("since = %v, want %v", h.remote.lastSince, last)
	}

	// Forcing FULL overrides the timestamp heuristic.
	res, err = h.engine.Run(ctx, "u1", Options{SyncType: domain.SyncTypeFull})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.SyncType != domain.SyncTypeFull {
		t.Errorf("sync type = %s, want FULL", res.SyncType)
	}
	if h.remote.lastSince != nil {
		t.Errorf("forced FULL must not pass since, got %v", h.remote.lastSince)
	}
}

func TestRun_ForcedIncrementalUsesStoredSince(t *testing.T) {
	h := newHarness(t, &fakeRemote{})
	ctx := context.Background()

	last := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	_ = h.users.UpdateLastSync(ctx, "u1", last)

	res, err := h.engine.Run(ctx, "u1", Options{SyncType: domain.SyncTypeIncremental})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.SyncType != domain.SyncTypeIncremental {
		t.Errorf("sync type = %s, want INCREMENTAL", res.SyncType)
	}
	if h.remote.lastSince == nil || !h.remote.lastSince.Equal(last) {
		t.Errorf("forced INCREMENTAL must filter by the stored watermark, since = %v, want %v",
			h.remote.lastSince, last)
	}

	// An explicit Since wins over the stored watermark.
	explicit := time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)
	if _, err := h.engine.Run(ctx, "u1", Options{
		SyncType: domain.SyncTypeIncremental,
		Since:    &explicit,
	}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if h.remote.lastSince == nil || !h.remote.lastSince.Equal(explicit) {
		t.Errorf("since = %v, want explicit %v", h.remote.lastSince, explicit)
	}
}

func TestRun_LastSyncAdvancesToRunStart(t *testing.T) {
	h := newHarness(t, &fakeRemote{})
	ctx := context.Background()

	before := time.Now().UTC()
	if _, err := h.engine.Run(ctx, "u1", Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	after := time.Now().UTC()

	user, _ := h.users.GetByID(ctx, "u1")
	if user.LastSyncTimestamp == nil {
		t.Fatal("last sync timestamp not set")
	}
	if user.LastSyncTimestamp.Before(before.Add(-time.Second)) || user.LastSyncTimestamp.After(after) {
		t.Errorf("last sync %v outside run window [%v, %v]", user.LastSyncTimestamp, before, after)
	}
	if user.SyncStatus != domain.UserSyncIdle {
		t.Errorf("user sync status = %s, want idle", user.SyncStatus)
	}
}

func TestRun_EnrichmentFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, &fakeRemote{
		persons: []domain.RemotePerson{
			person(1, "Alice", "", "2024-01-01 10:00:00", 6, "Shared Organization"),
		},
		detailsErr: errors.New("pipedrive service unavailable (502)"),
	})

	res, err := h.engine.Run(context.Background(), "u1", Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Created != 1 || res.Failed != 0 {
		t.Fatalf("contact must still be created, got %+v", res)
	}

	contact, _ := h.contacts.GetByPipedriveID(context.Background(), "u1", "1")
	if contact.OrganizationID == nil {
		t.Error("contact should still reference its organization")
	}
}

func TestRun_FetchRetriesThenFails(t *testing.T) {
	h := newHarness(t, &fakeRemote{personsErr: errors.New("network connection reset")})

	_, err := h.engine.Run(context.Background(), "u1", Options{})
	if err == nil {
		t.Fatal("expected fetch failure")
	}
	// 1 attempt + 1 retry (harness budget).
	if h.remote.personCalls != 2 {
		t.Errorf("expected 2 fetch attempts, got %d", h.remote.personCalls)
	}

	row := h.latestHistory(t)
	if row.Status != domain.SyncStatusFailed {
		t.Errorf("history status = %s, want FAILED", row.Status)
	}
	if row.Error == nil || !strings.HasPrefix(*row.Error, "NETWORK: ") {
		t.Errorf("error string = %v, want NETWORK prefix", row.Error)
	}
}

func TestRun_NoEmailMeansNilNotEmpty(t *testing.T) {
	h := newHarness(t, &fakeRemote{
		persons: []domain.RemotePerson{
			{ID: 1, Name: "No Email", UpdateTime: "2024-01-01 10:00:00",
				Email: []domain.RemoteEmail{{Value: "", Primary: true}}},
		},
	})

	if _, err := h.engine.Run(context.Background(), "u1", Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	contact, _ := h.contacts.GetByPipedriveID(context.Background(), "u1", "1")
	if contact.Email != nil {
		t.Errorf("email must be nil, got %q", *contact.Email)
	}
}

func TestRun_MultipleEmailsPrimaryWins(t *testing.T) {
	h := newHarness(t, &fakeRemote{
		persons: []domain.RemotePerson{
			{ID: 1, Name: "Multi", UpdateTime: "2024-01-01 10:00:00",
				Email: []domain.RemoteEmail{
					{Value: "secondary@example.com"},
					{Value: "primary@example.com", Primary: true},
				}},
		},
	})

	if _, err := h.engine.Run(context.Background(), "u1", Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	contact, _ := h.contacts.GetByPipedriveID(context.Background(), "u1", "1")
	if contact.Email == nil || *contact.Email != "primary@example.com" {
		t.Errorf("email = %v, want primary@example.com", contact.Email)
	}
}

func TestRun_OrgStatsRefreshedAfterRun(t *testing.T) {
	h := newHarness(t, &fakeRemote{
		persons: []domain.RemotePerson{
			person(1, "Alice", "", "2024-01-01 10:00:00", 6, "Shared Organization"),
			person(2, "Bob", "", "2024-01-01 10:00:00", 6, "Shared Organization"),
		},
	})

	if _, err := h.engine.Run(context.Background(), "u1", Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	org, _ := h.orgs.GetByPipedriveID(context.Background(), "u1", "6")
	if org == nil {
		t.Fatal("organization not created")
	}
	if org.ContactCount != 2 {
		t.Errorf("contact count = %d, want 2", org.ContactCount)
	}
}
