// Package engine drives one end-to-end reconciliation pass against the
// remote CRM: fetch, diff, upsert, and finalize, with classification,
// recovery, and deadline enforcement applied at the batch level.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/infra/storage"
	"github.com/vietddude/pipesync/internal/sync/classify"
	"github.com/vietddude/pipesync/internal/sync/metrics"
	"github.com/vietddude/pipesync/internal/sync/orgresolve"
	"github.com/vietddude/pipesync/internal/sync/recovery"
	"github.com/vietddude/pipesync/internal/sync/timeout"
)

// RemoteClient is the slice of the CRM API the engine consumes.
type RemoteClient interface {
	TestConnection(ctx context.Context) error
	GetPersons(ctx context.Context, since *time.Time) ([]domain.RemotePerson, error)
	GetOrganizationDetails(ctx context.Context, remoteOrgID string) (*domain.RemoteOrganization, error)
}

// ClientFactory builds a remote client for one user's API token.
type ClientFactory func(token string) RemoteClient

// Config tunes the engine.
type Config struct {
	BatchSize int
	Timeouts  timeout.Config
	Retry     recovery.Options
}

// DefaultConfig returns the standard engine tuning.
func DefaultConfig() Config {
	return Config{
		BatchSize: 50,
		Timeouts:  timeout.DefaultConfig(),
		Retry:     recovery.DefaultOptions(),
	}
}

// Options selects how one run behaves. A zero SyncType lets the engine
// decide from the user's last sync timestamp.
type Options struct {
	SyncType domain.SyncType
	Since    *time.Time
}

// Result is what one run reports back to the caller.
type Result struct {
	SyncID    string          `json:"sync_id"`
	SyncType  domain.SyncType `json:"sync_type"`
	Processed int             `json:"processed"`
	Created   int             `json:"created"`
	Updated   int             `json:"updated"`
	Failed    int             `json:"failed"`
	Duration  time.Duration   `json:"duration_ms"`
	LastSync  time.Time       `json:"last_sync_timestamp"`
}

// Engine orchestrates sync runs.
type Engine struct {
	cfg      Config
	users    storage.UserRepository
	contacts storage.ContactRepository
	orgs     storage.OrganizationRepository
	history  storage.SyncHistoryRepository
	factory  ClientFactory
	store    *timeout.Store
	log      *slog.Logger
}

// New creates an engine over the given repositories and client factory.
func New(
	cfg Config,
	users storage.UserRepository,
	contacts storage.ContactRepository,
	orgs storage.OrganizationRepository,
	history storage.SyncHistoryRepository,
	factory ClientFactory,
) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Engine{
		cfg:      cfg,
		users:    users,
		contacts: contacts,
		orgs:     orgs,
		history:  history,
		factory:  factory,
		store:    timeout.NewStore(),
		log:      slog.Default().With("component", "engine"),
	}
}

// run-scoped state, discarded when the run ends.
type runState struct {
	syncID   string
	userID   string
	client   RemoteClient
	resolver *orgresolve.Resolver
	guard    *timeout.Guard

	// enriched caches org-detail fetch results per external org id so
	// enrichment happens at most once per org per run.
	enriched map[string]*domain.RemoteOrganization

	// done tracks external person ids already handled, so a retried
	// batch skips the contacts that succeeded before the failure.
	done map[string]bool

	// touched collects organizations needing a stats refresh at run end.
	touched map[string]*domain.Organization

	failedBatches []recovery.FailedBatch

	processed int
	created   int
	updated   int
	failed    int
	lastErr   error
}

// Run executes one sync pass for a user. The returned error, when
// non-nil, classifies via the classify package for user-facing text.
func (e *Engine) Run(ctx context.Context, userID string, opts Options) (*Result, error) {
	// 1. Credential and connectivity checks happen before any history
	// row exists: a user without a token has nothing to audit.
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.PipedriveAPIToken == nil || *user.PipedriveAPIToken == "" {
		return nil, classify.Errorf(classify.KindAuthentication,
			"unauthorized: user %s has no pipedrive api token", userID)
	}

	client := e.factory(*user.PipedriveAPIToken)
	if err := client.TestConnection(ctx); err != nil {
		return nil, fmt.Errorf("pipedrive connection test failed: %w", err)
	}

	// 2. FULL unless the user has synced before (or the caller forces).
	syncType := opts.SyncType
	since := opts.Since
	if syncType == "" {
		if user.LastSyncTimestamp == nil {
			syncType = domain.SyncTypeFull
		} else {
			syncType = domain.SyncTypeIncremental
			since = user.LastSyncTimestamp
		}
	} else if syncType == domain.SyncTypeIncremental && since == nil {
		// A forced incremental run without an explicit watermark still
		// filters by the stored one; nil would fetch everything.
		since = user.LastSyncTimestamp
	}

	// An earlier successful run's counters estimate the workload.
	estimated := 0
	if cp, err := recovery.LatestCheckpoint(ctx, e.history, userID); err == nil && cp != nil {
		estimated = cp.Total
	}

	// 3. The PENDING row is the run's audit record from here on.
	startedAt := time.Now().UTC()
	row := &domain.SyncHistory{
		ID:            uuid.New().String(),
		UserID:        userID,
		SyncType:      syncType,
		Status:        domain.SyncStatusPending,
		StartedAt:     startedAt,
		TotalContacts: estimated,
	}
	if err := e.history.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to create sync history: %w", err)
	}
	_ = e.users.UpdateSyncStatus(ctx, userID, domain.UserSyncRunning)

	rs := &runState{
		syncID:   row.ID,
		userID:   userID,
		client:   client,
		resolver: orgresolve.NewResolver(e.orgs, userID),
		enriched: make(map[string]*domain.RemoteOrganization),
		done:     make(map[string]bool),
		touched:  make(map[string]*domain.Organization),
	}
	rs.guard = timeout.NewGuard(e.cfg.Timeouts, e.store, e.history, e.users)

	e.log.Info("sync started",
		"sync_id", rs.syncID, "user_id", userID, "type", syncType, "since", since)

	outcome := rs.guard.ExecuteSync(ctx, func(ctx context.Context) error {
		return e.runPass(ctx, rs, row, since)
	}, timeout.SyncScope{SyncID: rs.syncID, UserID: userID})

	return e.finalize(ctx, rs, row, user, syncType, startedAt, outcome)
}

// runPass fetches and processes the full remote contact list.
func (e *Engine) runPass(ctx context.Context, rs *runState, row *domain.SyncHistory, since *time.Time) error {
	// The fetch is a remote call: retried with backoff before anything
	// is diffed.
	var persons []domain.RemotePerson
	fetch := recovery.Execute(ctx, func(ctx context.Context) error {
		var err error
		persons, err = rs.client.GetPersons(ctx, since)
		return err
	}, recovery.StrategyRetryWithBackoff, e.cfg.Retry)
	if !fetch.Success {
		return fmt.Errorf("failed to fetch persons after %d attempts: %w", fetch.Attempts, fetch.Err)
	}

	row.TotalContacts = len(persons)
	if err := e.history.Update(ctx, row); err != nil {
		e.log.Warn("failed to record total contacts", "sync_id", rs.syncID, "error", err)
	}

	if len(persons) == 0 {
		return nil
	}

	batchTimeout := e.cfg.Timeouts.ProgressiveBatchTimeout(len(persons), e.cfg.BatchSize)

	for start, num := 0, 1; start < len(persons); start, num = start+e.cfg.BatchSize, num+1 {
		end := start + e.cfg.BatchSize
		if end > len(persons) {
			end = len(persons)
		}
		batch := persons[start:end]

		if err := e.processBatch(ctx, rs, batch, num, batchTimeout); err != nil {
			c := classify.Classify(err)
			if !c.Recoverable {
				// Terminal for the whole run: no point in touching the
				// remaining batches without human correction.
				rs.lastErr = err
				return err
			}

			rs.failedBatches = append(rs.failedBatches, recovery.FailedBatch{
				Number:       num,
				StartIndex:   start,
				EndIndex:     end - 1,
				Err:          err,
				SucceededIDs: rs.batchSucceeded(batch),
			})
			// Whatever the batch did not reach counts as failed.
			for _, p := range batch {
				e.recordContact(rs, p, outcomeFailed, err)
			}
			continue
		}
	}
	return nil
}

// processBatch runs one batch under retry and deadline protection.
// Contacts that succeeded in an earlier attempt are skipped on retry.
func (e *Engine) processBatch(
	ctx context.Context,
	rs *runState,
	batch []domain.RemotePerson,
	num int,
	deadline time.Duration,
) error {
	op := func(ctx context.Context) error {
		outcome := rs.guard.ExecuteBatchWithTimeout(ctx, func(ctx context.Context) error {
			for i := range batch {
				if err := ctx.Err(); err != nil {
					return classify.NewTagged(classify.KindNetwork, "batch interrupted: timeout", err)
				}
				e.processPerson(ctx, rs, &batch[i])
			}
			return nil
		}, timeout.BatchScope{SyncID: rs.syncID, BatchNum: num}, deadline)
		return outcome.Err
	}

	res := recovery.Execute(ctx, op, recovery.StrategyRetryWithBackoff, e.cfg.Retry)
	if !res.Success {
		return fmt.Errorf("batch %d failed after %d attempts: %w", num, res.Attempts, res.Err)
	}
	return nil
}

type contactOutcome string

const (
	outcomeCreated   contactOutcome = "created"
	outcomeUpdated   contactOutcome = "updated"
	outcomeUnchanged contactOutcome = "unchanged"
	outcomeFailed    contactOutcome = "failed"
)

// processPerson upserts one remote person. Failures are classified,
// counted, and logged; they never abort the run.
func (e *Engine) processPerson(ctx context.Context, rs *runState, p *domain.RemotePerson) {
	personID := strconv.FormatInt(p.ID, 10)
	if rs.done[personID] {
		return
	}

	outcome, err := e.upsertContact(ctx, rs, p, personID)
	if err != nil {
		c := classify.Classify(err)
		e.log.Warn("contact failed",
			"sync_id", rs.syncID, "person_id", personID, "kind", c.Kind, "error", err)
		e.recordContact(rs, *p, outcomeFailed, err)
		return
	}
	e.recordContact(rs, *p, outcome, nil)
}

func (e *Engine) recordContact(rs *runState, p domain.RemotePerson, outcome contactOutcome, err error) {
	personID := strconv.FormatInt(p.ID, 10)
	if rs.done[personID] {
		return
	}
	rs.done[personID] = true
	rs.processed++
	switch outcome {
	case outcomeCreated:
		rs.created++
	case outcomeUpdated:
		rs.updated++
	case outcomeFailed:
		rs.failed++
		rs.lastErr = err
	}
	metrics.ContactsProcessed.WithLabelValues(string(outcome)).Inc()
}

// batchSucceeded lists the batch's person ids that already completed,
// feeding the recovery plan's skip list.
func (rs *runState) batchSucceeded(batch []domain.RemotePerson) []string {
	var ids []string
	for _, p := range batch {
		id := strconv.FormatInt(p.ID, 10)
		if rs.done[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// finalize updates the user's sync markers, closes the audit row, logs
// timeout analysis, and builds the caller-facing result.
func (e *Engine) finalize(
	ctx context.Context,
	rs *runState,
	row *domain.SyncHistory,
	user *domain.User,
	syncType domain.SyncType,
	startedAt time.Time,
	outcome timeout.Outcome,
) (*Result, error) {
	endedAt := time.Now().UTC()

	row.ProcessedContacts = rs.processed
	row.CreatedContacts = rs.created
	row.UpdatedContacts = rs.updated
	row.FailedContacts = rs.failed

	runErr := outcome.Err
	if runErr == nil && len(rs.failedBatches) > 0 {
		// A batch that exhausted its retry budget fails the run; its
		// recovery plan is logged below for the next attempt.
		runErr = fmt.Errorf("%d batches failed after retries: %w",
			len(rs.failedBatches), rs.failedBatches[0].Err)
	}
	if runErr == nil && rs.processed > 0 && rs.failed == rs.processed {
		// Every single contact failed: the run is not a success with
		// footnotes, it is a failure.
		runErr = fmt.Errorf("all %d contacts failed: %w", rs.processed, rs.lastErr)
	}

	if len(rs.failedBatches) > 0 {
		plan := recovery.PlanBatches(rs.failedBatches)
		e.log.Warn("run has failed batches",
			"sync_id", rs.syncID,
			"batches", len(plan.Plans),
			"strategy", plan.Strategy,
			"estimated_retry", plan.EstimatedDuration)
	}

	if runErr != nil {
		// The failure audit re-reads the row, so the final counters must
		// be persisted first or the FAILED row keeps stale zeros.
		if err := e.history.Update(ctx, row); err != nil {
			e.log.Error("failed to persist final counters",
				"sync_id", rs.syncID, "error", err)
		}
		recovery.RecordFailure(ctx, e.history, rs.syncID, runErr)
		_ = e.users.UpdateSyncStatus(ctx, rs.userID, domain.UserSyncFailed)
		metrics.SyncRuns.WithLabelValues(string(syncType), string(domain.SyncStatusFailed)).Inc()
		e.analyzeAndClear(rs.syncID)

		e.log.Error("sync failed",
			"sync_id", rs.syncID, "user_id", rs.userID,
			"processed", rs.processed, "failed", rs.failed, "error", runErr)
		return nil, runErr
	}

	// The next incremental run picks up from this run's start, so
	// contacts changed mid-run are fetched again rather than missed.
	if err := e.users.UpdateLastSync(ctx, rs.userID, startedAt); err != nil {
		e.log.Error("failed to advance last sync timestamp",
			"user_id", rs.userID, "error", err)
	}
	_ = e.users.UpdateSyncStatus(ctx, rs.userID, domain.UserSyncIdle)

	row.Status = domain.SyncStatusSuccess
	row.EndedAt = &endedAt
	if err := e.history.Update(ctx, row); err != nil {
		e.log.Error("failed to finalize sync history", "sync_id", rs.syncID, "error", err)
	}

	e.refreshOrgStats(ctx, rs)
	metrics.SyncRuns.WithLabelValues(string(syncType), string(domain.SyncStatusSuccess)).Inc()
	e.analyzeAndClear(rs.syncID)

	e.log.Info("sync finished",
		"sync_id", rs.syncID, "user_id", rs.userID, "type", syncType,
		"processed", rs.processed, "created", rs.created,
		"updated", rs.updated, "failed", rs.failed,
		"duration", endedAt.Sub(startedAt))

	return &Result{
		SyncID:    rs.syncID,
		SyncType:  syncType,
		Processed: rs.processed,
		Created:   rs.created,
		Updated:   rs.updated,
		Failed:    rs.failed,
		Duration:  endedAt.Sub(startedAt),
		LastSync:  startedAt,
	}, nil
}

// analyzeAndClear logs a timeout tuning suggestion (if any), then drops
// the run's samples: the store holds them only for the run's lifetime.
func (e *Engine) analyzeAndClear(syncID string) {
	a := e.store.Analyze(syncID)
	if a.Batches > 0 {
		sug := timeout.SuggestAdjustment(
			e.cfg.Timeouts.BatchTimeout, a.MeanDuration, a.TimeoutRate,
			a.Batches, e.cfg.Timeouts.MaxBatchTimeout)
		if sug.Increase {
			e.log.Warn("batch timeout adjustment suggested",
				"sync_id", syncID, "recommended", sug.Recommended, "reason", sug.Reason)
		}
	}
	e.store.Clear(syncID)
}

func (e *Engine) refreshOrgStats(ctx context.Context, rs *runState) {
	for _, org := range rs.touched {
		if err := orgresolve.UpdateStats(ctx, e.orgs, e.contacts, org); err != nil {
			e.log.Warn("failed to refresh org stats", "org_id", org.ID, "error", err)
		}
	}
}
