package redis

import (
	"context"
	"fmt"
	"time"
)

// RateCounter bounds per-user remote calls inside a rolling window.
type RateCounter struct {
	client *Client
	limit  int64
	window time.Duration
}

// NewRateCounter creates a rate counter allowing limit calls per window.
func NewRateCounter(client *Client, limit int, window time.Duration) *RateCounter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateCounter{client: client, limit: int64(limit), window: window}
}

func rateKey(userID string) string {
	return fmt.Sprintf("rate:%s", userID)
}

// Allow counts one call for the user and reports whether it is within
// the limit. The window starts at the first call and expires as a whole.
func (r *RateCounter) Allow(ctx context.Context, userID string) (bool, error) {
	key := rateKey(userID)
	count, err := r.client.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr failed: %w", err)
	}
	if count == 1 {
		if err := r.client.rdb.Expire(ctx, key, r.window).Err(); err != nil {
			return false, fmt.Errorf("expire failed: %w", err)
		}
	}
	return count <= r.limit, nil
}
