package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/pipesync/internal/api"
	"github.com/vietddude/pipesync/internal/core/config"
	"github.com/vietddude/pipesync/internal/infra/pipedrive"
	redisclient "github.com/vietddude/pipesync/internal/infra/redis"
	"github.com/vietddude/pipesync/internal/infra/storage"
	"github.com/vietddude/pipesync/internal/infra/storage/memory"
	"github.com/vietddude/pipesync/internal/infra/storage/postgres"
	"github.com/vietddude/pipesync/internal/sync/engine"
	"github.com/vietddude/pipesync/internal/sync/recovery"
	"github.com/vietddude/pipesync/internal/sync/search"
)

// Service wires storage, the sync engine and the HTTP server together.
type Service struct {
	cfg         *config.AppConfig
	engine      *engine.Engine
	server      *api.Server
	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger
}

// NewService creates a Service with all dependencies initialized.
// Without a database URL it falls back to in-memory storage; without a
// Redis URL search caching is disabled and sync locking is in-process.
func NewService(cfg *config.AppConfig) (*Service, error) {
	log := slog.Default()

	// 1. Initialize Storage
	var (
		users    storage.UserRepository
		contacts storage.ContactRepository
		orgs     storage.OrganizationRepository
		history  storage.SyncHistoryRepository
		db       *postgres.DB
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		users = postgres.NewUserRepo(db)
		contacts = postgres.NewContactRepo(db)
		orgs = postgres.NewOrgRepo(db)
		history = postgres.NewSyncHistoryRepo(db)
		log.Info("using postgresql storage")
	} else {
		store := memory.NewMemoryStorage()
		users = memory.NewUserRepo(store)
		contacts = memory.NewContactRepo(store)
		orgs = memory.NewOrgRepo(store)
		history = memory.NewSyncHistoryRepo(store)
		log.Info("using memory storage")
	}

	// 2. Initialize Redis (optional)
	var (
		redisClient *redisclient.Client
		searchCache search.Cache
		rateLimiter search.Limiter
		lock        api.Locker
	)
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("failed to connect to redis, caching and distributed locking disabled", "error", err)
		} else {
			searchCache = redisclient.NewSearchCache(redisClient, cfg.Sync.SearchCacheTTL)
			rateLimiter = redisclient.NewRateCounter(redisClient, cfg.Sync.SearchRateLimit, time.Minute)
			lock = redisclient.NewSyncLock(redisClient, cfg.Sync.LockTTL)
		}
	}

	// 3. Initialize Sync Engine
	retry := recovery.DefaultOptions()
	retry.MaxRetries = cfg.Sync.MaxRetries
	retry.BaseDelay = cfg.Sync.BaseDelay
	retry.Timeout = cfg.Sync.Timeouts.BatchTimeout

	eng := engine.New(
		engine.Config{
			BatchSize: cfg.Sync.BatchSize,
			Timeouts:  cfg.Sync.Timeouts,
			Retry:     retry,
		},
		users, contacts, orgs, history,
		func(token string) engine.RemoteClient { return pipedrive.NewClient(token) },
	)

	// 4. Initialize Search Service
	searcher := search.NewService(
		users,
		func(token string) search.Remote { return pipedrive.NewClient(token) },
		searchCache,
		rateLimiter,
		log,
	)

	// 5. Initialize HTTP Server
	checks := map[string]api.HealthCheck{}
	if db != nil {
		checks["database"] = db.Health
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}

	server := api.NewServer(
		cfg.Server.Port,
		eng,
		searcher,
		lock,
		history,
		users,
		checks,
		log,
	)

	return &Service{
		cfg:         cfg,
		engine:      eng,
		server:      server,
		db:          db,
		redisClient: redisClient,
		log:         log,
	}, nil
}

// Engine exposes the sync engine for CLI-triggered runs.
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

// Start starts the HTTP server and background collectors.
func (s *Service) Start(ctx context.Context) error {
	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}

	go func() {
		if err := s.server.Start(); err != nil {
			s.log.Error("http server failed", "error", err)
		}
	}()

	return nil
}

// Stop shuts everything down.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("stopping service")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("failed to close redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("failed to close db", "error", err)
		}
	}
	return s.server.Stop(ctx)
}
