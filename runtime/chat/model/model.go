// Package model defines the provider-agnostic contract between the chat
// runtime and concrete model providers. Providers stream a turn as a sequence
// of chunks: text fragments, tool-call requests, in-stream provider errors and
// a final stop. Adapters live under features/model.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

type (
	// Client is implemented by model provider adapters. Stream opens one
	// generation pass over the supplied request; the returned Streamer yields
	// chunks in generation order until io.EOF.
	Client interface {
		Stream(ctx context.Context, req Request) (Streamer, error)
	}

	// Streamer yields the chunks of a single generation pass. Recv returns
	// io.EOF after the final chunk. Close releases the underlying transport
	// and is safe to call more than once.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
	}

	// Request describes one generation pass: the model to use, the ordered
	// conversation history and the tools the model may call. An empty Tools
	// slice disables tool calling for the pass.
	Request struct {
		// Model is the provider-specific model identifier.
		Model string
		// Messages is the ordered conversation history.
		Messages []*Message
		// Temperature is the sampling temperature, zero for provider default.
		Temperature float32
		// MaxTokens bounds the response length, zero for provider default.
		MaxTokens int
		// Tools lists the tool definitions offered to the model.
		Tools []*ToolDefinition
	}

	// Role identifies the author of a conversation message.
	Role string

	// Message is one entry of the conversation history sent to the provider.
	// Assistant messages that requested tools carry ToolCalls; tool messages
	// carry the ToolCallID they answer.
	Message struct {
		Role       Role
		Content    string
		ToolCalls  []ToolCall
		ToolCallID string
	}

	// ChunkType discriminates the Chunk union.
	ChunkType string

	// Chunk is one streamed event. Exactly the fields implied by Type are
	// set: Text for text chunks, ToolCall for tool_call chunks, Err for
	// error chunks and StopReason for stop chunks.
	Chunk struct {
		Type       ChunkType
		Text       string
		ToolCall   *ToolCall
		Err        error
		StopReason string
	}

	// ToolCall is a model request to invoke a named tool with JSON arguments.
	ToolCall struct {
		ID        string
		Name      string
		Arguments json.RawMessage
	}

	// ToolDefinition describes a tool offered to the model. InputSchema is a
	// JSON Schema object for the tool arguments.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema map[string]any
	}
)

const (
	// RoleSystem marks the system prompt.
	RoleSystem Role = "system"
	// RoleUser marks end-user input.
	RoleUser Role = "user"
	// RoleAssistant marks model output.
	RoleAssistant Role = "assistant"
	// RoleTool marks a tool result fed back to the model.
	RoleTool Role = "tool"
)

const (
	// ChunkText carries a text fragment.
	ChunkText ChunkType = "text"
	// ChunkToolCall carries a complete tool-call request.
	ChunkToolCall ChunkType = "tool_call"
	// ChunkError carries an in-stream provider error. The stream continues
	// after an error chunk; transport failures surface from Recv instead.
	ChunkError ChunkType = "error"
	// ChunkStop marks the end of a generation pass.
	ChunkStop ChunkType = "stop"
)

// ErrStreamingUnsupported is returned by Stream when the provider cannot
// stream responses.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")
