package llm

import (
	"sort"
	"strings"
)

// pendingCall is the in-progress state of one tool-call slot.
type pendingCall struct {
	id        string
	name      string
	arguments strings.Builder
}

// valid reports whether the slot assembled into a callable request.
func (p *pendingCall) valid() bool {
	return p.id != "" && p.name != ""
}

// Accumulator reassembles a streamed model turn into text content and
// tool calls. Tool-call fragments are addressed by the slot index reported by
// the stream. Slots are stored sparsely so a bogus index costs one entry,
// and are densified in index order when the turn is finalized.
//
// An Accumulator is used for a single turn and is not safe for concurrent use.
type Accumulator struct {
	content  strings.Builder
	slots    map[int]*pendingCall
	maxIndex int

	// OnDelta, if set, receives each non-empty text fragment as it arrives.
	OnDelta StreamHandler
}

// StreamHandler receives text deltas during streaming.
type StreamHandler func(delta string)

// Add merges one stream event.
func (a *Accumulator) Add(ev StreamEvent) {
	if ev.Content != "" {
		a.content.WriteString(ev.Content)
		if a.OnDelta != nil {
			a.OnDelta(ev.Content)
		}
	}

	for _, d := range ev.ToolCalls {
		if d.Index < 0 {
			continue
		}
		slot := a.slot(d.Index)
		if d.ID != "" {
			slot.id = d.ID
		}
		// Names arrive whole; a repeated name replaces the previous one.
		if d.Name != "" {
			slot.name = d.Name
		}
		// Arguments arrive chunked and are concatenated in arrival order.
		if d.Arguments != "" {
			slot.arguments.WriteString(d.Arguments)
		}
	}
}

// slot returns the record at index, creating it on first use.
func (a *Accumulator) slot(index int) *pendingCall {
	if a.slots == nil {
		a.slots = make(map[int]*pendingCall)
		a.maxIndex = -1
	}
	p, ok := a.slots[index]
	if !ok {
		p = &pendingCall{}
		a.slots[index] = p
		a.maxIndex = max(a.maxIndex, index)
	}
	return p
}

// Content returns the text accumulated so far.
func (a *Accumulator) Content() string {
	return a.content.String()
}

// Slots returns the length of the slot range seen: the highest index plus
// one. Gaps count as empty placeholders but are never allocated.
func (a *Accumulator) Slots() int {
	if a.slots == nil {
		return 0
	}
	return a.maxIndex + 1
}

// Response finalizes the turn. Only slots with both an id and a name are
// returned, in slot order; placeholders and partial fragments are dropped.
// ToolCalls is nil when no valid call was assembled.
func (a *Accumulator) Response() *Response {
	resp := &Response{Content: a.content.String()}
	indices := make([]int, 0, len(a.slots))
	for i, s := range a.slots {
		if s.valid() {
			indices = append(indices, i)
		}
	}
	sort.Ints(indices)
	for _, i := range indices {
		s := a.slots[i]
		resp.ToolCalls = append(resp.ToolCalls, NewToolCall(s.id, s.name, s.arguments.String()))
	}
	return resp
}

// Consume drains stream into the accumulator and returns the finalized
// response. The stream is not closed.
func (a *Accumulator) Consume(stream Stream) (*Response, error) {
	for stream.Next() {
		a.Add(stream.Current())
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return a.Response(), nil
}
