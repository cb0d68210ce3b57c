// Package memory defines the user-memory contract: long-lived facts about a
// user that are recalled into the prompt before a turn and extracted from the
// conversation after it. Implementations: inmem (development, tests) and
// features/memory/mem0.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/huminex/t4chat/runtime/chat/model"
)

// ErrNotFound is returned when a memory does not exist.
var ErrNotFound = errors.New("memory not found")

type (
	// Memory is one stored fact about a user.
	Memory struct {
		ID        string    `json:"id"`
		Text      string    `json:"memory"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// Store recalls and persists user memories. Recall failures are
	// non-fatal to a turn; callers log and continue without memories.
	Store interface {
		// Relevant returns the memories related to query, used for prompt
		// injection before a turn.
		Relevant(ctx context.Context, userID, query string) ([]Memory, error)
		// Remember extracts and stores new memories from a turn's history.
		Remember(ctx context.Context, userID string, msgs []*model.Message) error
		// List returns all of the user's memories.
		List(ctx context.Context, userID string) ([]Memory, error)
		// Delete removes one memory.
		Delete(ctx context.Context, userID, id string) error
		// DeleteAll removes all of the user's memories.
		DeleteAll(ctx context.Context, userID string) error
	}
)
