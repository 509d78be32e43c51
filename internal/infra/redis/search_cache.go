package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// SearchCache stores serialized remote search results keyed by user and
// query. Entries expire so stale matches age out between syncs.
type SearchCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSearchCache creates a search cache with the given entry TTL.
func NewSearchCache(client *Client, ttl time.Duration) *SearchCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SearchCache{rdb: client.rdb, ttl: ttl}
}

func searchKey(userID, query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return fmt.Sprintf("search:%s:%s", userID, hex.EncodeToString(sum[:8]))
}

// Get retrieves a cached result into dest, reporting whether it was found.
func (c *SearchCache) Get(ctx context.Context, userID, query string, dest any) (bool, error) {
	data, err := c.rdb.Get(ctx, searchKey(userID, query)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cached search: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached search: %w", err)
	}
	return true, nil
}

// Set stores a search result.
func (c *SearchCache) Set(ctx context.Context, userID, query string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal search result: %w", err)
	}
	if err := c.rdb.Set(ctx, searchKey(userID, query), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache search result: %w", err)
	}
	return nil
}

// Invalidate drops all cached searches for a user. Called after a sync
// run changes the underlying data.
func (c *SearchCache) Invalidate(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("search:%s:*", userID)
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to invalidate search cache: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan search cache: %w", err)
	}
	return nil
}
