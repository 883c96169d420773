package llm

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
)

// chunkStream adapts an openai-go chunk stream to Stream.
type chunkStream struct {
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	current StreamEvent
}

func (s *chunkStream) Next() bool {
	for s.stream.Next() {
		ev, ok := convertChunk(s.stream.Current())
		if !ok {
			continue
		}
		s.current = ev
		return true
	}
	return false
}

func (s *chunkStream) Current() StreamEvent {
	return s.current
}

func (s *chunkStream) Err() error {
	return s.stream.Err()
}

func (s *chunkStream) Close() error {
	return s.stream.Close()
}

// convertChunk extracts the first choice's delta. Chunks without choices
// (usage trailers, keep-alives) report false.
func convertChunk(chunk openai.ChatCompletionChunk) (StreamEvent, bool) {
	if len(chunk.Choices) == 0 {
		return StreamEvent{}, false
	}
	delta := chunk.Choices[0].Delta

	ev := StreamEvent{Content: delta.Content}
	for _, tc := range delta.ToolCalls {
		ev.ToolCalls = append(ev.ToolCalls, ToolCallDelta{
			Index:     int(tc.Index),
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return ev, true
}

// SliceStream replays a fixed list of events. It is useful for tests and
// for feeding recorded turns through an Accumulator.
type SliceStream struct {
	Events []StreamEvent
	Error  error

	pos    int
	closed bool
}

func (s *SliceStream) Next() bool {
	if s.closed || s.pos >= len(s.Events) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Current() StreamEvent {
	if s.pos == 0 {
		return StreamEvent{}
	}
	return s.Events[s.pos-1]
}

func (s *SliceStream) Err() error {
	return s.Error
}

func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *SliceStream) Closed() bool {
	return s.closed
}
