package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huminex/t4chat/runtime/chat/message"
	"github.com/huminex/t4chat/runtime/chat/store"
)

func TestCreateMessageCreatesThread(t *testing.T) {
	s := New()
	ctx := context.Background()

	m, err := s.CreateMessage(ctx, &message.Message{
		UserID:   "u1",
		Query:    "what is Go?",
		Variants: []message.Variant{{Content: "A language.", Model: "Gemini 2.5 Flash"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	require.NotEmpty(t, m.ThreadID)
	require.NotEmpty(t, m.Variants[0].ID)

	th, err := s.GetThread(ctx, m.ThreadID)
	require.NoError(t, err)
	require.Equal(t, "what is Go?", th.Title, "new thread is titled with the query")
}

func TestCreateMessageUnknownThread(t *testing.T) {
	s := New()
	_, err := s.CreateMessage(context.Background(), &message.Message{
		UserID:   "u1",
		ThreadID: "missing",
		Query:    "hi",
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListMessagesOrdered(t *testing.T) {
	s := New()
	ctx := context.Background()
	th, err := s.CreateThread(ctx, "u1", "t")
	require.NoError(t, err)
	var ids []string
	for _, q := range []string{"one", "two", "three"} {
		m, err := s.CreateMessage(ctx, &message.Message{UserID: "u1", ThreadID: th.ID, Query: q})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}
	msgs, err := s.ListMessages(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		require.Equal(t, ids[i], m.ID)
	}
}

func TestAppendVariant(t *testing.T) {
	s := New()
	ctx := context.Background()
	m, err := s.CreateMessage(ctx, &message.Message{
		UserID:   "u1",
		Query:    "q",
		Variants: []message.Variant{{Content: "first"}},
	})
	require.NoError(t, err)

	upd, err := s.AppendVariant(ctx, m.ID, message.Variant{Content: "second", Model: "Gemini 2.5 Flash"})
	require.NoError(t, err)
	require.Len(t, upd.Variants, 2)
	require.Equal(t, "second", upd.Variants[1].Content)
	require.NotEmpty(t, upd.Variants[1].ID)
}

func TestUpdateVariant(t *testing.T) {
	s := New()
	ctx := context.Background()
	m, err := s.CreateMessage(ctx, &message.Message{
		UserID:   "u1",
		Query:    "q",
		Variants: []message.Variant{{Content: "old"}},
	})
	require.NoError(t, err)

	upd, err := s.UpdateVariant(ctx, m.ID, m.Variants[0].ID, "new")
	require.NoError(t, err)
	require.Equal(t, "new", upd.Variants[0].Content)

	_, err = s.UpdateVariant(ctx, m.ID, "missing", "x")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCloneIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()
	m, err := s.CreateMessage(ctx, &message.Message{
		UserID:   "u1",
		Query:    "q",
		Variants: []message.Variant{{Content: "kept"}},
	})
	require.NoError(t, err)

	m.Variants[0].Content = "mutated"
	got, err := s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "kept", got.Variants[0].Content)
}

func TestDeleteThreadRemovesMessages(t *testing.T) {
	s := New()
	ctx := context.Background()
	m, err := s.CreateMessage(ctx, &message.Message{UserID: "u1", Query: "q"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteThread(ctx, m.ThreadID))
	_, err = s.GetMessage(ctx, m.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestThreadUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()
	th, err := s.CreateThread(ctx, "u1", "old")
	require.NoError(t, err)

	title := "renamed"
	pinned := true
	upd, err := s.UpdateThread(ctx, th.ID, store.ThreadUpdate{Title: &title, Pinned: &pinned})
	require.NoError(t, err)
	require.Equal(t, "renamed", upd.Title)
	require.True(t, upd.Pinned)
}

func TestValidation(t *testing.T) {
	s := New()
	_, err := s.CreateThread(context.Background(), "", "t")
	require.EqualError(t, err, "user id is required")
	_, err = s.CreateMessage(context.Background(), nil)
	require.EqualError(t, err, "message is required")
}
