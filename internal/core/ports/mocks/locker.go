package mocks

import (
	"context"
	"sync"
	"time"

	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
)

// Locker is an in-memory implementation of ports.RunLocker.
type Locker struct {
	mu   sync.Mutex
	held map[string]struct{}

	// Acquired counts successful acquisitions per key.
	Acquired map[string]int

	// AcquireFn allows overriding Acquire behavior.
	AcquireFn func(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// NewLocker creates a new in-memory locker.
func NewLocker() *Locker {
	return &Locker{
		held:     make(map[string]struct{}),
		Acquired: make(map[string]int),
	}
}

// Acquire takes the key or returns ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.AcquireFn != nil {
		return l.AcquireFn(ctx, key, ttl)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, coreerrors.ErrLockHeld
	}

	l.held[key] = struct{}{}
	l.Acquired[key]++

	var once sync.Once

	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether the key is currently held.
func (l *Locker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.held[key]

	return ok
}
