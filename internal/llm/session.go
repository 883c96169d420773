package llm

import (
	"context"
	"fmt"
)

// Session binds a backend client and a fixed tool list to one Conversation.
// A Session is owned by a single orchestration loop and is not safe for
// concurrent use.
type Session struct {
	client Client
	tools  []ToolDef
	conv   *Conversation
}

// NewSession creates a backend session. systemPrompt and seedContext are
// inserted once, here, when non-empty.
func NewSession(client Client, tools []ToolDef, systemPrompt, seedContext string) *Session {
	return &Session{
		client: client,
		tools:  tools,
		conv:   NewConversation(systemPrompt, seedContext),
	}
}

// Chat runs one model turn. A non-empty prompt is appended as a user message
// first; an empty prompt sends the conversation as it stands, which is how
// tool results are returned to the model. The streamed response is
// accumulated and appended as an assistant message before it is returned.
func (s *Session) Chat(ctx context.Context, prompt string, onDelta StreamHandler) (*Response, error) {
	if prompt != "" {
		s.conv.AppendUser(prompt)
	}

	stream, err := s.client.Stream(ctx, s.conv.Snapshot(), s.tools)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	acc := Accumulator{OnDelta: onDelta}
	resp, err := acc.Consume(stream)
	if err != nil {
		return nil, fmt.Errorf("streaming: %w", err)
	}

	s.conv.AppendAssistant(resp.Content, resp.ToolCalls)
	return resp, nil
}

// AppendToolResult records the result of a tool call for the next turn.
func (s *Session) AppendToolResult(toolCallID, content string) {
	s.conv.AppendToolResult(toolCallID, content)
}

func (s *Session) Conversation() *Conversation {
	return s.conv
}

func (s *Session) Tools() []ToolDef {
	return s.tools
}
