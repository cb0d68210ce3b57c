package openai

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/huminex/t4chat/runtime/chat/model"
)

// accumulator turns streamed completion deltas into model chunks. Text deltas
// pass through immediately; tool-call deltas arrive fragmented (id and name
// first, argument text spread over later deltas) and are merged by choice
// index until finish flushes them as complete calls.
type accumulator struct {
	calls      map[int]*openai.ToolCall
	order      []int
	stopReason string
}

func newAccumulator() *accumulator {
	return &accumulator{calls: make(map[int]*openai.ToolCall)}
}

// push processes one stream response and returns the chunks it yields.
func (a *accumulator) push(resp openai.ChatCompletionStreamResponse) []model.Chunk {
	var out []model.Chunk
	for _, choice := range resp.Choices {
		if choice.FinishReason != "" {
			a.stopReason = string(choice.FinishReason)
		}
		if choice.Delta.Content != "" {
			out = append(out, model.Chunk{Type: model.ChunkText, Text: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			buf, ok := a.calls[idx]
			if !ok {
				cp := tc
				a.calls[idx] = &cp
				a.order = append(a.order, idx)
				continue
			}
			if tc.ID != "" {
				buf.ID = tc.ID
			}
			if tc.Function.Name != "" {
				buf.Function.Name = tc.Function.Name
			}
			buf.Function.Arguments += tc.Function.Arguments
		}
	}
	return out
}

// finish flushes the buffered tool calls and the stop chunk.
func (a *accumulator) finish() []model.Chunk {
	var out []model.Chunk
	for _, idx := range a.order {
		buf := a.calls[idx]
		args := buf.Function.Arguments
		if args == "" {
			args = "{}"
		}
		out = append(out, model.Chunk{
			Type: model.ChunkToolCall,
			ToolCall: &model.ToolCall{
				ID:        buf.ID,
				Name:      buf.Function.Name,
				Arguments: json.RawMessage(args),
			},
		})
	}
	a.calls = make(map[int]*openai.ToolCall)
	a.order = nil
	stop := a.stopReason
	if stop == "" {
		stop = "stop"
	}
	return append(out, model.Chunk{Type: model.ChunkStop, StopReason: stop})
}
