package redis

import (
	"context"
	"fmt"
	"time"
)

// SyncLock guards against concurrent sync runs for the same user.
// The lock carries a TTL so a crashed run cannot wedge a user forever.
type SyncLock struct {
	client *Client
	ttl    time.Duration
}

// NewSyncLock creates a sync lock with the given TTL.
func NewSyncLock(client *Client, ttl time.Duration) *SyncLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SyncLock{client: client, ttl: ttl}
}

func syncLockKey(userID string) string {
	return fmt.Sprintf("sync_lock:%s", userID)
}

// Acquire attempts to take the per-user lock, reporting whether it won.
func (l *SyncLock) Acquire(ctx context.Context, userID string) (bool, error) {
	ok, err := l.client.rdb.SetNX(ctx, syncLockKey(userID), "locked", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Release drops the per-user lock.
func (l *SyncLock) Release(ctx context.Context, userID string) error {
	if err := l.client.rdb.Del(ctx, syncLockKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	return nil
}

// Refresh extends the lock TTL while a long run is in flight.
func (l *SyncLock) Refresh(ctx context.Context, userID string) error {
	if err := l.client.rdb.Expire(ctx, syncLockKey(userID), l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh sync lock: %w", err)
	}
	return nil
}
