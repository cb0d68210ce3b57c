// Package openai provides a model.Client over OpenAI-compatible chat
// completion APIs using github.com/sashabaranov/go-openai. The base URL is
// configurable so Gemini and OpenRouter compatible endpoints work unchanged.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/huminex/t4chat/runtime/chat/model"
)

// StreamClient captures the subset of the go-openai client used by the
// adapter.
type StreamClient interface {
	CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (
		*openai.ChatCompletionStream, error)
}

// Options configures the adapter.
type Options struct {
	Client       StreamClient
	DefaultModel string
}

// Client implements model.Client via streaming chat completions.
type Client struct {
	chat  StreamClient
	model string
}

var _ model.Client = (*Client)(nil)

// New builds an adapter from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{chat: opts.Client, model: opts.DefaultModel}, nil
}

// NewFromAPIKey constructs a client using the default go-openai HTTP client.
// A non-empty baseURL overrides the OpenAI endpoint.
func NewFromAPIKey(apiKey, baseURL, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return New(Options{Client: openai.NewClientWithConfig(cfg), DefaultModel: defaultModel})
}

// Stream opens one streaming generation pass.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	request := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    encodeMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       encodeTools(req.Tools),
		Stream:      true,
	}
	stream, err := c.chat.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion stream: %w", err)
	}
	return &streamer{stream: stream, acc: newAccumulator()}, nil
}

func encodeMessages(msgs []*model.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		cm := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

func encodeTools(defs []*model.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		if def == nil {
			continue
		}
		params, err := json.Marshal(def.InputSchema)
		if err != nil {
			continue
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return tools
}

// streamer adapts an openai stream to model.Streamer. Tool-call argument
// deltas are buffered by the accumulator and flushed as complete calls once
// the provider stream ends.
type streamer struct {
	stream  *openai.ChatCompletionStream
	acc     *accumulator
	pending []model.Chunk
	done    bool
}

func (s *streamer) Recv() (model.Chunk, error) {
	for {
		if len(s.pending) > 0 {
			c := s.pending[0]
			s.pending = s.pending[1:]
			return c, nil
		}
		if s.done {
			return model.Chunk{}, io.EOF
		}
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				s.pending = s.acc.finish()
				continue
			}
			return model.Chunk{}, err
		}
		s.pending = s.acc.push(resp)
	}
}

func (s *streamer) Close() error { return s.stream.Close() }
