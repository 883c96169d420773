package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// Client is the interface for the language-model backend.
type Client interface {
	// Stream sends the conversation and tool schemas and returns the
	// incremental response. Request failures are returned immediately.
	Stream(ctx context.Context, messages []Message, tools []ToolDef) (Stream, error)
}

// Stream iterates over the events of one streamed response.
type Stream interface {
	Next() bool
	Current() StreamEvent
	Err() error
	Close() error
}

// OpenAICompatClient works with any OpenAI-compatible chat completions API.
type OpenAICompatClient struct {
	client  *openai.Client
	model   string
	baseURL string
}

// NewClient creates an LLM client for the given endpoint and model.
func NewClient(baseURL, apiKey, model string) *OpenAICompatClient {
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	return &OpenAICompatClient{
		client:  &client,
		model:   model,
		baseURL: baseURL,
	}
}

// Model returns the model identifier requests are sent with.
func (c *OpenAICompatClient) Model() string {
	return c.model
}

// Stream sends a streaming chat completion request. It is a single attempt;
// connection and auth failures are returned as errors.
func (c *OpenAICompatClient) Stream(ctx context.Context, messages []Message, tools []ToolDef) (Stream, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: convertMessages(messages),
	}

	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}
	return &chunkStream{stream: stream}, nil
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					}
				}
				assistant := openai.ChatCompletionAssistantMessageParam{
					ToolCalls: toolCalls,
				}
				if m.Content != "" {
					assistant.Content.OfString = param.NewOpt(m.Content)
				}
				out = append(out, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &assistant,
				})
			} else {
				out = append(out, openai.AssistantMessage(m.Content))
			}
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func convertTools(tools []ToolDef) []openai.ChatCompletionToolParam {
	var out []openai.ChatCompletionToolParam
	for _, t := range tools {
		fn := shared.FunctionDefinitionParam{
			Name:       t.Name,
			Parameters: shared.FunctionParameters(t.Parameters),
		}
		if t.Description != "" {
			fn.Description = param.NewOpt(t.Description)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}
