// Package turnlock guards against two concurrent turns on the same thread.
// The in-memory implementation serves a single process; features/turnlock/redis
// provides the distributed variant.
package turnlock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned when a turn is already in flight for the key.
var ErrLocked = errors.New("turn already in flight")

// Locker acquires a per-key turn lock. The returned release function is
// idempotent.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// InMem is a process-local Locker.
type InMem struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ Locker = (*InMem)(nil)

// NewInMem returns an empty in-memory locker.
func NewInMem() *InMem {
	return &InMem{held: make(map[string]struct{})}
}

// Acquire takes the lock for key or returns ErrLocked.
func (l *InMem) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.held, key)
		})
	}, nil
}
