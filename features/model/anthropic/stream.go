package anthropic

import (
	"encoding/json"
	"io"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/huminex/t4chat/runtime/chat/model"
)

// streamer adapts an Anthropic Messages stream to model.Streamer.
type streamer struct {
	stream  *ssestream.Stream[sdk.MessageStreamEventUnion]
	proc    *processor
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
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				return model.Chunk{}, err
			}
			s.done = true
			s.pending = s.proc.finish()
			continue
		}
		s.pending = s.proc.handle(s.stream.Current())
	}
}

func (s *streamer) Close() error { return s.stream.Close() }

// toolBuffer accumulates one tool_use content block: id and name from the
// block start, input JSON spread over later deltas.
type toolBuffer struct {
	id   string
	name string
	args []byte
}

// processor converts Anthropic streaming events into model chunks.
type processor struct {
	blocks     map[int]*toolBuffer
	stopReason string
	stopped    bool
}

func newProcessor() *processor {
	return &processor{blocks: make(map[int]*toolBuffer)}
}

func (p *processor) handle(event sdk.MessageStreamEventUnion) []model.Chunk {
	switch ev := event.AsAny().(type) {
	case sdk.ContentBlockStartEvent:
		if tu, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			p.blocks[int(ev.Index)] = &toolBuffer{id: tu.ID, name: tu.Name}
		}
		return nil
	case sdk.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil
			}
			return []model.Chunk{{Type: model.ChunkText, Text: delta.Text}}
		case sdk.InputJSONDelta:
			if tb := p.blocks[int(ev.Index)]; tb != nil {
				tb.args = append(tb.args, delta.PartialJSON...)
			}
			return nil
		default:
			return nil
		}
	case sdk.ContentBlockStopEvent:
		tb := p.blocks[int(ev.Index)]
		if tb == nil {
			return nil
		}
		delete(p.blocks, int(ev.Index))
		return []model.Chunk{p.toolChunk(tb)}
	case sdk.MessageDeltaEvent:
		if ev.Delta.StopReason != "" {
			p.stopReason = string(ev.Delta.StopReason)
		}
		return nil
	case sdk.MessageStopEvent:
		return p.finish()
	default:
		return nil
	}
}

// finish flushes any tool block that never saw a stop event, then the stop
// chunk. Safe to call more than once.
func (p *processor) finish() []model.Chunk {
	if p.stopped {
		return nil
	}
	p.stopped = true
	var out []model.Chunk
	for _, tb := range p.blocks {
		out = append(out, p.toolChunk(tb))
	}
	p.blocks = make(map[int]*toolBuffer)
	stop := p.stopReason
	if stop == "" {
		stop = "end_turn"
	}
	return append(out, model.Chunk{Type: model.ChunkStop, StopReason: stop})
}

func (p *processor) toolChunk(tb *toolBuffer) model.Chunk {
	args := tb.args
	if len(args) == 0 {
		args = []byte("{}")
	}
	return model.Chunk{
		Type: model.ChunkToolCall,
		ToolCall: &model.ToolCall{
			ID:        tb.id,
			Name:      tb.name,
			Arguments: json.RawMessage(args),
		},
	}
}
