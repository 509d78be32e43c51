package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/infra/storage"
	"github.com/vietddude/pipesync/internal/sync/classify"
	"github.com/vietddude/pipesync/internal/sync/metrics"
)

// Remote is the slice of the Pipedrive client search needs.
type Remote interface {
	SearchPersons(ctx context.Context, term string) ([]domain.RemotePerson, error)
}

// RemoteFactory builds a remote client bound to a user's API token.
type RemoteFactory func(token string) Remote

// Cache stores serialized search results. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, userID, query string, dest any) (bool, error)
	Set(ctx context.Context, userID, query string, value any) error
}

// Limiter bounds per-user remote calls. A nil Limiter disables the bound.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// Service answers person searches against the remote CRM, consulting the
// cache first so repeated queries within the TTL skip the network.
type Service struct {
	users   storage.UserRepository
	factory RemoteFactory
	cache   Cache
	limiter Limiter
	log     *slog.Logger
}

// NewService creates a search service.
func NewService(users storage.UserRepository, factory RemoteFactory, cache Cache, limiter Limiter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{users: users, factory: factory, cache: cache, limiter: limiter, log: log}
}

// Search runs a person search for the user, returning cached results when
// available. Cache failures degrade to a remote call instead of an error.
func (s *Service) Search(ctx context.Context, userID, query string) ([]domain.RemotePerson, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, classify.Errorf(classify.KindValidation, "search query must not be empty")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.PipedriveAPIToken == nil || *user.PipedriveAPIToken == "" {
		return nil, classify.Errorf(classify.KindAuthentication, "user %s has no api token configured", userID)
	}

	if s.cache != nil {
		var cached []domain.RemotePerson
		found, err := s.cache.Get(ctx, userID, query, &cached)
		if err != nil {
			s.log.Warn("search cache read failed", "user_id", userID, "error", err)
		} else if found {
			metrics.SearchCacheHits.WithLabelValues("hit").Inc()
			return cached, nil
		}
		metrics.SearchCacheHits.WithLabelValues("miss").Inc()
	}

	// Only uncached searches count against the remote call budget.
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, userID)
		if err != nil {
			s.log.Warn("rate counter failed", "user_id", userID, "error", err)
		} else if !allowed {
			return nil, classify.Errorf(classify.KindRateLimit,
				"rate limit exceeded: too many searches for user %s", userID)
		}
	}

	results, err := s.factory(*user.PipedriveAPIToken).SearchPersons(ctx, query)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, query, results); err != nil {
			s.log.Warn("search cache write failed", "user_id", userID, "error", err)
		}
	}
	return results, nil
}
