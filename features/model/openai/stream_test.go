package openai

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/huminex/t4chat/runtime/chat/model"
)

func textDelta(text string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{Content: text},
		}},
	}
}

func toolDelta(idx int, id, name, args string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{
				ToolCalls: []openai.ToolCall{{
					Index:    &idx,
					ID:       id,
					Function: openai.FunctionCall{Name: name, Arguments: args},
				}},
			},
		}},
	}
}

func TestAccumulatorTextPassesThrough(t *testing.T) {
	a := newAccumulator()
	out := a.push(textDelta("Hel"))
	require.Len(t, out, 1)
	require.Equal(t, model.ChunkText, out[0].Type)
	require.Equal(t, "Hel", out[0].Text)
}

func TestAccumulatorMergesToolCallDeltas(t *testing.T) {
	a := newAccumulator()
	require.Empty(t, a.push(toolDelta(0, "call_1", "searchWeb", "")))
	require.Empty(t, a.push(toolDelta(0, "", "", `{"query":`)))
	require.Empty(t, a.push(toolDelta(0, "", "", `"golang"}`)))

	out := a.finish()
	require.Len(t, out, 2)
	require.Equal(t, model.ChunkToolCall, out[0].Type)
	require.Equal(t, "call_1", out[0].ToolCall.ID)
	require.Equal(t, "searchWeb", out[0].ToolCall.Name)
	require.JSONEq(t, `{"query":"golang"}`, string(out[0].ToolCall.Arguments))
	require.Equal(t, model.ChunkStop, out[1].Type)
}

func TestAccumulatorMultipleCallsKeepOrder(t *testing.T) {
	a := newAccumulator()
	a.push(toolDelta(0, "c0", "searchWeb", "{}"))
	a.push(toolDelta(1, "c1", "generateImage", "{}"))
	out := a.finish()
	require.Len(t, out, 3)
	require.Equal(t, "c0", out[0].ToolCall.ID)
	require.Equal(t, "c1", out[1].ToolCall.ID)
}

func TestAccumulatorStopReason(t *testing.T) {
	a := newAccumulator()
	a.push(openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{FinishReason: "tool_calls"}},
	})
	out := a.finish()
	require.Equal(t, "tool_calls", out[len(out)-1].StopReason)
}

func TestAccumulatorEmptyArgumentsDefaultToObject(t *testing.T) {
	a := newAccumulator()
	a.push(toolDelta(0, "c0", "searchWeb", ""))
	out := a.finish()
	require.JSONEq(t, "{}", string(out[0].ToolCall.Arguments))
}

func TestEncodeMessages(t *testing.T) {
	msgs := encodeMessages([]*model.Message{
		{Role: model.RoleSystem, Content: "be helpful"},
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
			{ID: "c1", Name: "searchWeb", Arguments: []byte(`{"query":"x"}`)},
		}},
		{Role: model.RoleTool, Content: `{"results":[]}`, ToolCallID: "c1"},
		nil,
	})
	require.Len(t, msgs, 4)
	require.Equal(t, "system", msgs[0].Role)
	require.Equal(t, "c1", msgs[2].ToolCalls[0].ID)
	require.Equal(t, `{"query":"x"}`, msgs[2].ToolCalls[0].Function.Arguments)
	require.Equal(t, "c1", msgs[3].ToolCallID)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	_, err = NewFromAPIKey("", "", "gpt-4o")
	require.Error(t, err)
}
