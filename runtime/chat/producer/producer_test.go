package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huminex/t4chat/runtime/chat/model"
	"github.com/huminex/t4chat/runtime/chat/serviceerr"
	"github.com/huminex/t4chat/runtime/chat/tag"
	"github.com/huminex/t4chat/runtime/chat/tools"
)

// fakeStreamer replays a scripted chunk sequence, then recvErr or io.EOF.
type fakeStreamer struct {
	chunks  []model.Chunk
	recvErr error
	pos     int
}

func (f *fakeStreamer) Recv() (model.Chunk, error) {
	if f.pos >= len(f.chunks) {
		if f.recvErr != nil {
			return model.Chunk{}, f.recvErr
		}
		return model.Chunk{}, io.EOF
	}
	c := f.chunks[f.pos]
	f.pos++
	return c, nil
}

func (f *fakeStreamer) Close() error { return nil }

// fakeClient returns one scripted streamer per Stream call.
type fakeClient struct {
	passes   []*fakeStreamer
	err      error
	requests []model.Request
}

func (f *fakeClient) Stream(_ context.Context, req model.Request) (model.Streamer, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.passes) == 0 {
		return &fakeStreamer{}, nil
	}
	s := f.passes[0]
	f.passes = f.passes[1:]
	return s, nil
}

type fakeSearcher struct{ results []tools.SearchResult }

func (f *fakeSearcher) Search(context.Context, string) ([]tools.SearchResult, error) {
	return f.results, nil
}

func userTurn(text string) []*model.Message {
	return []*model.Message{{Role: model.RoleUser, Content: text}}
}

func newProducer(t *testing.T, c model.Client) *Producer {
	t.Helper()
	p, err := New(Options{Client: c, Service: "chat"})
	require.NoError(t, err)
	return p
}

func TestStreamTurnPlainText(t *testing.T) {
	client := &fakeClient{passes: []*fakeStreamer{{chunks: []model.Chunk{
		{Type: model.ChunkText, Text: "He"},
		{Type: model.ChunkText, Text: "llo"},
		{Type: model.ChunkStop, StopReason: "stop"},
	}}}}
	var buf bytes.Buffer
	err := newProducer(t, client).StreamTurn(context.Background(), &buf, TurnRequest{
		Model:    "gemini-2.0-flash",
		Messages: userTurn("hi"),
	})
	require.NoError(t, err)
	require.Equal(t, "Hello", buf.String())
}

func TestStreamTurnValidation(t *testing.T) {
	client := &fakeClient{}
	var buf bytes.Buffer
	err := newProducer(t, client).StreamTurn(context.Background(), &buf, TurnRequest{})
	var se *serviceerr.ServiceError
	require.ErrorAs(t, err, &se)
	require.Equal(t, serviceerr.KindValidation, se.Kind)
	require.Zero(t, buf.Len(), "no bytes may be written before a validation rejection")
	require.Empty(t, client.requests)
}

func TestStreamTurnToolRound(t *testing.T) {
	args, _ := json.Marshal(map[string]string{"query": "golang"})
	client := &fakeClient{passes: []*fakeStreamer{
		{chunks: []model.Chunk{
			{Type: model.ChunkToolCall, ToolCall: &model.ToolCall{ID: "c1", Name: tools.SearchWebName, Arguments: args}},
		}},
		{chunks: []model.Chunk{
			{Type: model.ChunkText, Text: "Go is great."},
			{Type: model.ChunkStop, StopReason: "stop"},
		}},
	}}
	registry := tools.NewRegistry(tools.TurnOptions{
		WebSearchEnabled: true,
		Searcher:         &fakeSearcher{results: []tools.SearchResult{{Title: "Go", URL: "https://go.dev"}}},
	})
	var buf bytes.Buffer
	err := newProducer(t, client).StreamTurn(context.Background(), &buf, TurnRequest{
		Model:    "gemini-2.0-flash",
		Messages: userTurn("search golang"),
		Tools:    registry,
	})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "\n\n"+tag.Info("Searching web...")+"\n\n")
	require.Contains(t, out, tag.Clear)
	require.True(t, strings.HasSuffix(out, "Go is great."))
	require.Less(t, strings.Index(out, tag.Info("Searching web...")), strings.Index(out, tag.Clear))

	// Second pass carries the assistant tool call and the tool result.
	require.Len(t, client.requests, 2)
	second := client.requests[1].Messages
	require.Equal(t, model.RoleAssistant, second[len(second)-2].Role)
	require.Equal(t, "c1", second[len(second)-2].ToolCalls[0].ID)
	require.Equal(t, model.RoleTool, second[len(second)-1].Role)
	require.Equal(t, "c1", second[len(second)-1].ToolCallID)
}

func TestStreamTurnToolRoundBound(t *testing.T) {
	args, _ := json.Marshal(map[string]string{"query": "x"})
	call := func() *fakeStreamer {
		return &fakeStreamer{chunks: []model.Chunk{
			{Type: model.ChunkToolCall, ToolCall: &model.ToolCall{ID: "c", Name: tools.SearchWebName, Arguments: args}},
		}}
	}
	client := &fakeClient{passes: []*fakeStreamer{
		call(), call(), call(),
		{chunks: []model.Chunk{{Type: model.ChunkText, Text: "done"}}},
	}}
	registry := tools.NewRegistry(tools.TurnOptions{WebSearchEnabled: true, Searcher: &fakeSearcher{}})
	var buf bytes.Buffer
	err := newProducer(t, client).StreamTurn(context.Background(), &buf, TurnRequest{
		Messages: userTurn("loop"),
		Tools:    registry,
	})
	require.NoError(t, err)
	require.Len(t, client.requests, 4)
	for i := 0; i < 3; i++ {
		require.NotEmpty(t, client.requests[i].Tools, "round %d offers tools", i)
	}
	require.Empty(t, client.requests[3].Tools, "tools are withheld after the round bound")
}

func TestStreamTurnIgnoresToolCallsPastBound(t *testing.T) {
	args, _ := json.Marshal(map[string]string{"query": "x"})
	call := func(extra ...model.Chunk) *fakeStreamer {
		return &fakeStreamer{chunks: append([]model.Chunk{
			{Type: model.ChunkToolCall, ToolCall: &model.ToolCall{ID: "c", Name: tools.SearchWebName, Arguments: args}},
		}, extra...)}
	}
	// The fourth pass still emits a tool call even though tools were withheld.
	client := &fakeClient{passes: []*fakeStreamer{
		call(), call(), call(),
		call(model.Chunk{Type: model.ChunkText, Text: "done"}),
	}}
	registry := tools.NewRegistry(tools.TurnOptions{WebSearchEnabled: true, Searcher: &fakeSearcher{}})
	var buf bytes.Buffer
	err := newProducer(t, client).StreamTurn(context.Background(), &buf, TurnRequest{
		Messages: userTurn("loop"),
		Tools:    registry,
	})
	require.NoError(t, err)
	require.Len(t, client.requests, 4, "the rogue tool call must not start a fifth pass")
	out := buf.String()
	require.True(t, strings.HasSuffix(out, "done"))
	require.Equal(t, 3, strings.Count(out, tag.Clear), "only the three bounded rounds execute tools")
}

func TestStreamTurnInStreamError(t *testing.T) {
	client := &fakeClient{passes: []*fakeStreamer{{chunks: []model.Chunk{
		{Type: model.ChunkText, Text: "Before. "},
		{Type: model.ChunkError, Err: errors.New("you exceeded your current quota")},
		{Type: model.ChunkText, Text: "After."},
	}}}}
	var buf bytes.Buffer
	err := newProducer(t, client).StreamTurn(context.Background(), &buf, TurnRequest{
		Messages:     userTurn("hi"),
		ModelService: "gemini",
	})
	require.NoError(t, err)
	out := buf.String()
	require.Contains(t, out, tag.Error("gemini", "API quota exceeded"))
	require.True(t, strings.HasSuffix(out, "After."), "stream continues past an in-stream error")
}

func TestStreamTurnTransportFailure(t *testing.T) {
	client := &fakeClient{passes: []*fakeStreamer{{
		chunks:  []model.Chunk{{Type: model.ChunkText, Text: "Partial answer"}},
		recvErr: errors.New("connection refused"),
	}}}
	var buf bytes.Buffer
	err := newProducer(t, client).StreamTurn(context.Background(), &buf, TurnRequest{
		Messages: userTurn("hi"),
	})
	require.NoError(t, err, "transport failures end with a clean close")
	out := buf.String()
	require.True(t, strings.HasPrefix(out, "Partial answer"))
	require.Contains(t, out, tag.Error("chat", "Network connection failed"))
	require.Contains(t, out, apology)
}

func TestStreamTurnSetupFailure(t *testing.T) {
	client := &fakeClient{err: serviceerr.WithStatus(errors.New("invalid api key"), 401)}
	var buf bytes.Buffer
	err := newProducer(t, client).StreamTurn(context.Background(), &buf, TurnRequest{
		Messages:     userTurn("hi"),
		ModelService: "gemini",
	})
	require.NoError(t, err)
	require.Contains(t, buf.String(), tag.Error("gemini", "Invalid or missing API key"))
}

func TestStreamTurnSystemPrompt(t *testing.T) {
	client := &fakeClient{passes: []*fakeStreamer{{chunks: []model.Chunk{
		{Type: model.ChunkText, Text: "ok"},
	}}}}
	var buf bytes.Buffer
	err := newProducer(t, client).StreamTurn(context.Background(), &buf, TurnRequest{
		SystemPrompt: "You are a helpful assistant.",
		Messages:     userTurn("hi"),
	})
	require.NoError(t, err)
	first := client.requests[0].Messages[0]
	require.Equal(t, model.RoleSystem, first.Role)
	require.Equal(t, "You are a helpful assistant.", first.Content)
}
