// Package optimistic owns the client-visible ordered message list for one
// thread. A turn inserts a provisional entry before any network I/O, streams
// cumulative text into its sole variant, and reconciles with the persistence
// store exactly once: the entry is either replaced by the persisted message
// or removed entirely. At most one entry is pending at any instant.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/huminex/t4chat/runtime/chat/message"
	"github.com/huminex/t4chat/runtime/chat/model"
	"github.com/huminex/t4chat/runtime/chat/store"
)

// ErrTurnInFlight rejects a new turn while one is active.
var ErrTurnInFlight = errors.New("a turn is already in flight")

type (
	// StreamFunc runs one generation turn. It invokes onFragment with the
	// cumulative accumulated text after every received chunk and returns the
	// final text. Implementations wrap either a direct producer or an HTTP
	// stream consumed with the consumer package.
	StreamFunc func(ctx context.Context, in TurnInput, onFragment func(string)) (string, error)

	// TurnInput is what a StreamFunc needs to run a turn.
	TurnInput struct {
		// Query is the user's text for this turn.
		Query string
		// Attachment optionally accompanies the query.
		Attachment *message.Attachment
		// Search requests web search for this turn.
		Search bool
		// History is the capped recent context, ending with the query.
		History []*model.Message
	}

	// Entry is one visible list item: a message plus its client-only state.
	Entry struct {
		message.Message
		// TempID identifies the entry before it is persisted.
		TempID string
		// Pending is true from submission until reconciliation.
		Pending bool
		// Selected is the visible variant index, clamped to [0, len-1].
		Selected int
	}

	// Config tunes a Session.
	Config struct {
		// UserID owns the messages created by this session.
		UserID string
		// ThreadID files messages under an existing thread. Empty until the
		// first commit creates one.
		ThreadID string
		// Model is the label recorded on generated variants.
		Model string
		// RecentLimit caps how many prior messages feed the turn context.
		RecentLimit int
	}

	// Session is the state machine for one thread's visible list.
	Session struct {
		mu       sync.Mutex
		store    store.Store
		stream   StreamFunc
		cfg      Config
		entries  []*Entry
		inFlight bool
	}
)

// Defaults applied by NewSession.
const (
	DefaultModel       = "Gemini 2.5 Flash"
	DefaultRecentLimit = 6
)

// NewSession builds a session over the given store and stream transport.
func NewSession(st store.Store, stream StreamFunc, cfg Config) (*Session, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if stream == nil {
		return nil, errors.New("stream func is required")
	}
	if cfg.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.RecentLimit == 0 {
		cfg.RecentLimit = DefaultRecentLimit
	}
	return &Session{store: st, stream: stream, cfg: cfg}, nil
}

// Load replaces the visible list with the thread's persisted messages.
func (s *Session) Load(ctx context.Context) error {
	if s.cfg.ThreadID == "" {
		return nil
	}
	msgs, err := s.store.ListMessages(ctx, s.cfg.ThreadID)
	if err != nil {
		return fmt.Errorf("load thread %s: %w", s.cfg.ThreadID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrTurnInFlight
	}
	s.entries = s.entries[:0]
	for _, m := range msgs {
		s.entries = append(s.entries, &Entry{Message: *m.Clone()})
	}
	return nil
}

// Send runs one turn for query: insert the provisional entry, stream into it,
// then persist. It returns the committed message. On failure the provisional
// entry is removed and no partial message stays visible.
func (s *Session) Send(ctx context.Context, query string, att *message.Attachment, search bool) (*message.Message, error) {
	entry, input, err := s.submit(query, att, search)
	if err != nil {
		return nil, err
	}
	final, streamErr := s.stream(ctx, input, func(acc string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		entry.Variants[0].Content = acc
	})
	if streamErr != nil && final == "" {
		s.rollback(entry.TempID)
		return nil, fmt.Errorf("stream turn: %w", streamErr)
	}
	// Partial text from an abruptly closed stream is treated as final.
	return s.reconcile(ctx, entry, final)
}

// EditResend replaces a persisted message with a re-asked query. The original
// message's delete is issued only after the replacement's create succeeds, so
// a failed turn never loses the original.
func (s *Session) EditResend(ctx context.Context, messageID, query string) (*message.Message, error) {
	s.mu.Lock()
	orig := s.findByID(messageID)
	if orig == nil {
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}
	origID := orig.ID
	s.mu.Unlock()

	entry, input, err := s.submitExcluding(query, nil, false, origID)
	if err != nil {
		return nil, err
	}
	final, streamErr := s.stream(ctx, input, func(acc string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		entry.Variants[0].Content = acc
	})
	if streamErr != nil && final == "" {
		s.rollback(entry.TempID)
		return nil, fmt.Errorf("stream turn: %w", streamErr)
	}
	committed, err := s.reconcile(ctx, entry, final)
	if err != nil {
		return nil, err
	}
	// Create succeeded; now the original may go.
	if err := s.store.DeleteMessage(ctx, origID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return committed, fmt.Errorf("delete original message: %w", err)
	}
	s.mu.Lock()
	s.removeByID(origID)
	s.mu.Unlock()
	return committed, nil
}

// Regenerate streams an alternative response for a persisted message and
// appends it as a new variant, advancing the selected index to it. No new
// entry is created.
func (s *Session) Regenerate(ctx context.Context, messageID string) (*message.Message, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	entry := s.findByID(messageID)
	if entry == nil || entry.Pending {
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}
	s.inFlight = true
	prior := len(entry.Variants)
	// Provisional variant streamed into locally; persisted on completion.
	entry.Variants = append(entry.Variants, message.Variant{Model: s.cfg.Model})
	entry.Selected = prior
	input := TurnInput{
		Query:      entry.Query,
		Attachment: entry.Attachment,
		Search:     entry.Search,
		History:    s.historyLocked(entry.Query, map[string]bool{messageID: true}),
	}
	s.mu.Unlock()

	fail := func(err error) (*message.Message, error) {
		s.mu.Lock()
		entry.Variants = entry.Variants[:prior]
		entry.Selected = prior - 1
		s.inFlight = false
		s.mu.Unlock()
		return nil, err
	}

	final, streamErr := s.stream(ctx, input, func(acc string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		entry.Variants[prior].Content = acc
	})
	if streamErr != nil && final == "" {
		return fail(fmt.Errorf("stream turn: %w", streamErr))
	}
	updated, err := s.store.AppendVariant(ctx, messageID, message.Variant{
		Content: final,
		Model:   s.cfg.Model,
	})
	if err != nil {
		return fail(fmt.Errorf("append variant: %w", err))
	}
	s.mu.Lock()
	entry.Message = *updated.Clone()
	entry.Selected = len(entry.Variants) - 1
	s.inFlight = false
	s.mu.Unlock()
	return updated, nil
}

// Messages returns a deep snapshot of the visible list.
func (s *Session) Messages() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		cp.Message = *e.Message.Clone()
		out = append(out, &cp)
	}
	return out
}

// ThreadID reports the thread this session is bound to, empty before the
// first commit.
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.ThreadID
}

// submit inserts the provisional entry and snapshots the turn input.
func (s *Session) submit(query string, att *message.Attachment, search bool) (*Entry, TurnInput, error) {
	return s.submitExcluding(query, att, search, "")
}

func (s *Session) submitExcluding(query string, att *message.Attachment, search bool, excludeID string) (*Entry, TurnInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return nil, TurnInput{}, ErrTurnInFlight
	}
	s.inFlight = true
	entry := &Entry{
		Message: message.Message{
			ThreadID:   s.cfg.ThreadID,
			UserID:     s.cfg.UserID,
			Query:      query,
			Attachment: att,
			Search:     search,
			Variants:   []message.Variant{{Model: s.cfg.Model}},
		},
		TempID:  uuid.NewString(),
		Pending: true,
	}
	s.entries = append(s.entries, entry)
	exclude := map[string]bool{}
	if excludeID != "" {
		exclude[excludeID] = true
	}
	return entry, TurnInput{
		Query:      query,
		Attachment: att,
		Search:     search,
		History:    s.historyLocked(query, exclude),
	}, nil
}

// reconcile persists the finished turn and resolves the provisional entry.
func (s *Session) reconcile(ctx context.Context, entry *Entry, final string) (*message.Message, error) {
	s.mu.Lock()
	msg := entry.Message.Clone()
	s.mu.Unlock()
	msg.Variants = []message.Variant{{Content: final, Model: s.cfg.Model}}

	created, err := s.store.CreateMessage(ctx, msg)
	if err != nil {
		s.rollback(entry.TempID)
		return nil, fmt.Errorf("create message: %w", err)
	}

	s.mu.Lock()
	entry.Message = *created.Clone()
	entry.TempID = ""
	entry.Pending = false
	entry.Selected = 0
	if s.cfg.ThreadID == "" {
		s.cfg.ThreadID = created.ThreadID
	}
	s.inFlight = false
	s.mu.Unlock()
	return created, nil
}

// rollback removes the provisional entry so no partial message stays visible.
func (s *Session) rollback(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.TempID == tempID && e.Pending {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	s.inFlight = false
}

// historyLocked builds the capped recent context ending with query. Each
// prior committed message contributes its query and its first variant's
// content. Callers hold s.mu.
func (s *Session) historyLocked(query string, exclude map[string]bool) []*model.Message {
	var prior []*Entry
	for _, e := range s.entries {
		if e.Pending || exclude[e.ID] || len(e.Variants) == 0 {
			continue
		}
		prior = append(prior, e)
	}
	if len(prior) > s.cfg.RecentLimit {
		prior = prior[len(prior)-s.cfg.RecentLimit:]
	}
	history := make([]*model.Message, 0, 2*len(prior)+1)
	for _, e := range prior {
		history = append(history,
			&model.Message{Role: model.RoleUser, Content: e.Query},
			&model.Message{Role: model.RoleAssistant, Content: e.Variants[0].Content},
		)
	}
	return append(history, &model.Message{Role: model.RoleUser, Content: query})
}

func (s *Session) findByID(id string) *Entry {
	for _, e := range s.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (s *Session) removeByID(id string) {
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}
