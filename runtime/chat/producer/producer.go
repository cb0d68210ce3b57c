// Package producer drives a model provider's chunk sequence and writes one
// ordered byte stream for the whole turn. Once the first byte is out the
// stream only ever ends with a clean close: provider and transport failures
// are classified and written as inline error markers, never surfaced as an
// abrupt disconnect. The single pre-stream failure is request validation,
// which returns a structured rejection before any byte is written.
package producer

import (
	"context"
	"fmt"
	"io"

	"goa.design/clue/log"

	"github.com/huminex/t4chat/runtime/chat/model"
	"github.com/huminex/t4chat/runtime/chat/serviceerr"
	"github.com/huminex/t4chat/runtime/chat/tag"
	"github.com/huminex/t4chat/runtime/chat/tools"
)

type (
	// Producer streams turns over a model client.
	Producer struct {
		client        model.Client
		service       string
		maxToolRounds int
		temperature   float32
	}

	// Options configures a Producer.
	Options struct {
		// Client is the model provider. Required.
		Client model.Client
		// Service attributes transport-level failures in error markers.
		Service string
		// MaxToolRounds bounds tool-call rounds per turn. Defaults to 3.
		MaxToolRounds int
		// Temperature is the sampling temperature. Defaults to 0.7.
		Temperature float32
	}

	// TurnRequest describes one turn.
	TurnRequest struct {
		// Model is the provider model identifier.
		Model string
		// ModelService names the generation service for error attribution.
		ModelService string
		// SystemPrompt is prepended to the history when non-empty.
		SystemPrompt string
		// Messages is the ordered conversation history, most recent last.
		Messages []*model.Message
		// Tools is the per-turn registry. Nil disables tool calling.
		Tools *tools.Registry
	}
)

// apology closes out a transport failure so the user is never left with a
// silently truncated answer.
const apology = "I encountered an error while processing your request, " +
	"but I'm still here to help. Please try rephrasing your question or try again."

// New builds a Producer. Unset options get their defaults.
func New(opts Options) (*Producer, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("producer: model client is required")
	}
	p := &Producer{
		client:        opts.Client,
		service:       opts.Service,
		maxToolRounds: opts.MaxToolRounds,
		temperature:   opts.Temperature,
	}
	if p.service == "" {
		p.service = "chat"
	}
	if p.maxToolRounds == 0 {
		p.maxToolRounds = 3
	}
	if p.temperature == 0 {
		p.temperature = 0.7
	}
	return p, nil
}

// StreamTurn validates req, then streams the whole turn to w. A validation
// failure returns a *serviceerr.ServiceError before any byte is written; every
// later failure is written in-band and StreamTurn returns nil.
func (p *Producer) StreamTurn(ctx context.Context, w io.Writer, req TurnRequest) error {
	if err := validate(req); err != nil {
		return err
	}

	history := make([]*model.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		history = append(history, &model.Message{Role: model.RoleSystem, Content: req.SystemPrompt})
	}
	history = append(history, req.Messages...)

	out := &flushWriter{w: w}
	rounds := 0
	for {
		mreq := model.Request{
			Model:       req.Model,
			Messages:    history,
			Temperature: p.temperature,
		}
		if req.Tools != nil && rounds < p.maxToolRounds {
			mreq.Tools = req.Tools.Definitions()
		}

		stream, err := p.client.Stream(ctx, mreq)
		if err != nil {
			p.writeFailure(ctx, out, err, req.ModelService)
			return nil
		}

		history, rounds, err = p.streamPass(ctx, out, stream, req, history, rounds)
		if err != nil {
			// Transport failure mid-pass, already written in-band.
			return nil
		}
		if rounds < 0 {
			// No tool calls this pass, the turn is complete.
			return nil
		}
	}
}

// streamPass consumes one generation pass. It returns the extended history and
// round count when the pass requested tools, rounds < 0 when the turn is done,
// and a non-nil error after an in-band transport failure.
func (p *Producer) streamPass(
	ctx context.Context,
	out *flushWriter,
	stream model.Streamer,
	req TurnRequest,
	history []*model.Message,
	rounds int,
) ([]*model.Message, int, error) {
	defer stream.Close()

	var (
		text  string
		calls []model.ToolCall
	)
	toolMessages := make([]*model.Message, 0, 2)
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.writeFailure(ctx, out, err, req.ModelService)
			return nil, 0, err
		}
		switch chunk.Type {
		case model.ChunkText:
			text += chunk.Text
			out.WriteString(chunk.Text)
		case model.ChunkToolCall:
			// Tool chunks past the round bound are ignored even if the
			// provider emits them after tools were withheld.
			if chunk.ToolCall == nil || req.Tools == nil || rounds >= p.maxToolRounds {
				continue
			}
			call := *chunk.ToolCall
			out.WriteString("\n\n" + tag.Info(req.Tools.InfoNote(call.Name)) + "\n\n")
			result := req.Tools.Execute(ctx, call)
			out.WriteString(tag.Clear)
			calls = append(calls, call)
			toolMessages = append(toolMessages, &model.Message{
				Role:       model.RoleTool,
				Content:    string(result),
				ToolCallID: call.ID,
			})
		case model.ChunkError:
			se := serviceerr.Classify(chunk.Err, p.service, req.ModelService)
			out.WriteString("\n\n" + tag.Error(se.Service, se.Message) + "\n\n")
		case model.ChunkStop:
			// Terminal chunk, Recv reports io.EOF next.
		}
	}

	if len(calls) == 0 {
		return history, -1, nil
	}
	history = append(history, &model.Message{
		Role:      model.RoleAssistant,
		Content:   text,
		ToolCalls: calls,
	})
	history = append(history, toolMessages...)
	return history, rounds + 1, nil
}

// writeFailure classifies err and writes the in-band error marker plus the
// apology sentence.
func (p *Producer) writeFailure(ctx context.Context, out *flushWriter, err error, modelService string) {
	log.Errorf(ctx, err, "turn stream failed")
	se := serviceerr.Classify(err, p.service, modelService)
	out.WriteString("\n\n" + tag.Error(se.Service, se.Message) + "\n\n" + apology + "\n\n")
}

func validate(req TurnRequest) error {
	if len(req.Messages) == 0 {
		return serviceerr.NewValidation("chat", "Messages are required")
	}
	for _, m := range req.Messages {
		if m == nil || m.Role == "" {
			return serviceerr.NewValidation("chat", "Malformed message history")
		}
	}
	return nil
}

// flushWriter flushes after every write when the underlying writer supports
// it, so fragments reach the client without transport buffering.
type flushWriter struct {
	w io.Writer
}

func (f *flushWriter) WriteString(s string) {
	if _, err := io.WriteString(f.w, s); err != nil {
		return
	}
	switch fl := f.w.(type) {
	case interface{ Flush() }:
		fl.Flush()
	case interface{ Flush() error }:
		_ = fl.Flush()
	}
}
