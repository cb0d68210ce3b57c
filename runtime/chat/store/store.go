// Package store defines the persistence contract for threads and messages.
// Implementations: inmem (development, tests) and features/store/mongo.
package store

import (
	"context"
	"errors"

	"github.com/huminex/t4chat/runtime/chat/message"
)

// ErrNotFound is returned when a thread, message or variant does not exist.
var ErrNotFound = errors.New("not found")

type (
	// Store is the durable home of threads and messages. Implementations
	// assign ids on create and return deep copies so callers never share
	// internal state.
	Store interface {
		// CreateThread persists a new thread and returns it with its id set.
		CreateThread(ctx context.Context, userID, title string) (*message.Thread, error)
		// ListThreads returns the user's threads, most recent first.
		ListThreads(ctx context.Context, userID string) ([]*message.Thread, error)
		// GetThread returns one thread.
		GetThread(ctx context.Context, id string) (*message.Thread, error)
		// UpdateThread applies title and pinned updates.
		UpdateThread(ctx context.Context, id string, upd ThreadUpdate) (*message.Thread, error)
		// DeleteThread removes a thread and all of its messages.
		DeleteThread(ctx context.Context, id string) error

		// CreateMessage persists a new message. An empty ThreadID creates a
		// new thread titled with the message query and files the message
		// under it.
		CreateMessage(ctx context.Context, msg *message.Message) (*message.Message, error)
		// ListMessages returns a thread's messages ordered by creation time.
		ListMessages(ctx context.Context, threadID string) ([]*message.Message, error)
		// GetMessage returns one message.
		GetMessage(ctx context.Context, id string) (*message.Message, error)
		// AppendVariant adds a generated response variant to a message and
		// returns the updated message.
		AppendVariant(ctx context.Context, messageID string, v message.Variant) (*message.Message, error)
		// UpdateVariant replaces a variant's content.
		UpdateVariant(ctx context.Context, messageID, variantID, content string) (*message.Message, error)
		// DeleteMessage removes a message.
		DeleteMessage(ctx context.Context, id string) error
	}

	// ThreadUpdate carries the mutable thread fields. Nil fields are left
	// unchanged.
	ThreadUpdate struct {
		Title  *string
		Pinned *bool
	}
)
