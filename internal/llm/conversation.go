package llm

// Conversation is the ordered, append-only message log sent to the backend.
type Conversation struct {
	messages []Message
}

// NewConversation starts a conversation. A non-empty system prompt becomes the
// first message and a non-empty seed context follows it as a user message.
func NewConversation(systemPrompt, seedContext string) *Conversation {
	c := &Conversation{}
	if systemPrompt != "" {
		c.messages = append(c.messages, SystemMessage(systemPrompt))
	}
	if seedContext != "" {
		c.messages = append(c.messages, UserMessage(seedContext))
	}
	return c
}

func (c *Conversation) AppendUser(content string) {
	c.messages = append(c.messages, UserMessage(content))
}

// AppendAssistant records a model turn. Tool calls are attached only when
// at least one is present.
func (c *Conversation) AppendAssistant(content string, toolCalls []ToolCall) {
	msg := Message{Role: RoleAssistant, Content: content}
	if len(toolCalls) > 0 {
		msg.ToolCalls = append([]ToolCall(nil), toolCalls...)
	}
	c.messages = append(c.messages, msg)
}

func (c *Conversation) AppendToolResult(toolCallID, content string) {
	c.messages = append(c.messages, ToolResultMessage(toolCallID, content))
}

// PendingToolCalls returns the ids of tool calls in the latest assistant
// message that have no tool result yet, in call order.
func (c *Conversation) PendingToolCalls() []string {
	for i := len(c.messages) - 1; i >= 0; i-- {
		msg := c.messages[i]
		if msg.Role != RoleAssistant {
			continue
		}
		answered := make(map[string]bool)
		for _, m := range c.messages[i+1:] {
			if m.Role == RoleTool {
				answered[m.ToolCallID] = true
			}
		}
		var pending []string
		for _, tc := range msg.ToolCalls {
			if !answered[tc.ID] {
				pending = append(pending, tc.ID)
			}
		}
		return pending
	}
	return nil
}

// Messages returns the backing slice. Callers must not modify it.
func (c *Conversation) Messages() []Message {
	return c.messages
}

// Snapshot returns a copy of the message log.
func (c *Conversation) Snapshot() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	return len(c.messages)
}
