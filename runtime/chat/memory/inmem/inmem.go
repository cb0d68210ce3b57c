// Package inmem provides an in-memory memory.Store for tests and development
// servers. Remember keeps each user message verbatim; Relevant returns the
// user's full set, relevance ranking being a backend concern.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/huminex/t4chat/runtime/chat/memory"
	"github.com/huminex/t4chat/runtime/chat/model"
)

// Store is an in-memory memory.Store implementation.
type Store struct {
	mu       sync.RWMutex
	memories map[string][]memory.Memory
	now      func() time.Time
}

var _ memory.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		memories: make(map[string][]memory.Memory),
		now:      time.Now,
	}
}

// Relevant returns the user's memories, most recent first.
func (s *Store) Relevant(ctx context.Context, userID, _ string) ([]memory.Memory, error) {
	return s.List(ctx, userID)
}

// Remember stores the text of every user message in msgs.
func (s *Store) Remember(_ context.Context, userID string, msgs []*model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		if m == nil || m.Role != model.RoleUser || strings.TrimSpace(m.Content) == "" {
			continue
		}
		s.memories[userID] = append(s.memories[userID], memory.Memory{
			ID:        shortuuid.New(),
			Text:      m.Content,
			CreatedAt: s.now(),
		})
	}
	return nil
}

// List returns all of the user's memories, most recent first.
func (s *Store) List(_ context.Context, userID string) ([]memory.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]memory.Memory(nil), s.memories[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes one memory.
func (s *Store) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mems := s.memories[userID]
	for i, m := range mems {
		if m.ID == id {
			s.memories[userID] = append(mems[:i], mems[i+1:]...)
			return nil
		}
	}
	return memory.ErrNotFound
}

// DeleteAll removes all of the user's memories.
func (s *Store) DeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, userID)
	return nil
}
