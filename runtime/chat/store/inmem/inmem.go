// Package inmem provides an in-memory Store used by tests and development
// servers. All state lives behind a single RWMutex; values are cloned on the
// way in and out.
package inmem

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/huminex/t4chat/runtime/chat/message"
	"github.com/huminex/t4chat/runtime/chat/store"
)

// Store is an in-memory store.Store implementation.
type Store struct {
	mu       sync.RWMutex
	threads  map[string]*message.Thread
	messages map[string]*message.Message
	seq      map[string]int
	next     int
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		threads:  make(map[string]*message.Thread),
		messages: make(map[string]*message.Message),
		seq:      make(map[string]int),
		now:      time.Now,
	}
}

// CreateThread persists a new thread.
func (s *Store) CreateThread(_ context.Context, userID, title string) (*message.Thread, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	th := &message.Thread{
		ID:        shortuuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: s.now(),
	}
	s.threads[th.ID] = th
	cp := *th
	return &cp, nil
}

// ListThreads returns the user's threads, most recently created first.
func (s *Store) ListThreads(_ context.Context, userID string) ([]*message.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*message.Thread
	for _, th := range s.threads {
		if th.UserID == userID {
			cp := *th
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetThread returns one thread.
func (s *Store) GetThread(_ context.Context, id string) (*message.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.threads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *th
	return &cp, nil
}

// UpdateThread applies title and pinned updates.
func (s *Store) UpdateThread(_ context.Context, id string, upd store.ThreadUpdate) (*message.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.Title != nil {
		th.Title = *upd.Title
	}
	if upd.Pinned != nil {
		th.Pinned = *upd.Pinned
	}
	cp := *th
	return &cp, nil
}

// DeleteThread removes a thread and its messages.
func (s *Store) DeleteThread(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.threads, id)
	for mid, m := range s.messages {
		if m.ThreadID == id {
			delete(s.messages, mid)
			delete(s.seq, mid)
		}
	}
	return nil
}

// CreateMessage persists a new message, creating the owning thread when
// ThreadID is empty.
func (s *Store) CreateMessage(_ context.Context, msg *message.Message) (*message.Message, error) {
	if msg == nil {
		return nil, errors.New("message is required")
	}
	if msg.UserID == "" {
		return nil, errors.New("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := msg.Clone()
	if m.ThreadID == "" {
		th := &message.Thread{
			ID:        shortuuid.New(),
			UserID:    m.UserID,
			Title:     m.Query,
			CreatedAt: s.now(),
		}
		s.threads[th.ID] = th
		m.ThreadID = th.ID
	} else if _, ok := s.threads[m.ThreadID]; !ok {
		return nil, store.ErrNotFound
	}
	m.ID = shortuuid.New()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	for i := range m.Variants {
		if m.Variants[i].ID == "" {
			m.Variants[i].ID = shortuuid.New()
		}
	}
	s.messages[m.ID] = m
	s.next++
	s.seq[m.ID] = s.next
	return m.Clone(), nil
}

// ListMessages returns a thread's messages in creation order.
func (s *Store) ListMessages(_ context.Context, threadID string) ([]*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.threads[threadID]; !ok {
		return nil, store.ErrNotFound
	}
	var out []*message.Message
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return s.seq[out[i].ID] < s.seq[out[j].ID]
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetMessage returns one message.
func (s *Store) GetMessage(_ context.Context, id string) (*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.Clone(), nil
}

// AppendVariant adds a response variant to a message.
func (s *Store) AppendVariant(_ context.Context, messageID string, v message.Variant) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if v.ID == "" {
		v.ID = shortuuid.New()
	}
	m.Variants = append(m.Variants, v)
	return m.Clone(), nil
}

// UpdateVariant replaces a variant's content.
func (s *Store) UpdateVariant(_ context.Context, messageID, variantID, content string) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for i := range m.Variants {
		if m.Variants[i].ID == variantID {
			m.Variants[i].Content = content
			return m.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

// DeleteMessage removes a message.
func (s *Store) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.messages, id)
	delete(s.seq, id)
	return nil
}
