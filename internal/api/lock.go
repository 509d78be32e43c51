package api

import (
	"context"
	"sync"
)

// localLock is the single-process fallback when Redis is not configured.
type localLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func newLocalLock() *localLock {
	return &localLock{held: make(map[string]bool)}
}

func (l *localLock) Acquire(_ context.Context, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[userID] {
		return false, nil
	}
	l.held[userID] = true
	return true, nil
}

func (l *localLock) Release(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, userID)
	return nil
}
