package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/augment/internal/llm"
	"github.com/michaelbrown/augment/internal/tools"
)

// ToolNotFound is the tool result sent to the model when no provider
// advertises the requested tool.
const ToolNotFound = "tool not found"

// DefaultMaxCycles bounds runaway tool-call chains when no limit is configured.
const DefaultMaxCycles = 25

// ToolResult describes one dispatched tool call.
type ToolResult struct {
	CallID    string
	Tool      string
	Provider  string // empty when the tool was not found
	Arguments string
	Content   string
	NotFound  bool
	Duration  time.Duration
}

// Result is the outcome of one Run.
type Result struct {
	Answer    string
	Cycles    int
	ToolCalls []ToolResult
}

// Agent drives the model/tool loop for a single conversation. It is not safe
// for concurrent use; callers serving several users need one Agent each.
type Agent struct {
	client       llm.Client
	registry     *tools.Registry
	maxCycles    int
	systemPrompt string
	seedContext  string
	log          zerolog.Logger
	session      *llm.Session

	OnTextDelta  func(delta string)
	OnToolCall   func(call llm.ToolCall)
	OnToolResult func(result ToolResult)
}

// New creates an Agent. maxCycles <= 0 disables the cycle limit.
func New(client llm.Client, registry *tools.Registry, maxCycles int) *Agent {
	if registry == nil {
		registry = tools.NewRegistry(zerolog.Nop())
	}
	return &Agent{
		client:    client,
		registry:  registry,
		maxCycles: maxCycles,
		log:       zerolog.Nop(),
	}
}

// SetSystemPrompt sets the system message used when the session is created.
func (a *Agent) SetSystemPrompt(prompt string) {
	a.systemPrompt = prompt
}

// SetContext sets the seed context inserted after the system message.
func (a *Agent) SetContext(text string) {
	a.seedContext = text
}

func (a *Agent) SetLogger(log zerolog.Logger) {
	a.log = log
}

// Init connects every provider in order and creates the backend session with
// the combined tool list. On failure no session is created; providers that
// did connect are released by Close.
func (a *Agent) Init(ctx context.Context) error {
	if a.session != nil {
		return nil
	}
	if err := a.registry.Connect(ctx); err != nil {
		return fmt.Errorf("initializing agent: %w", err)
	}
	a.session = llm.NewSession(a.client, a.registry.Tools(), a.systemPrompt, a.seedContext)
	a.log.Info().Int("tools", len(a.registry.Tools())).Msg("agent initialized")
	return nil
}

// Invoke sends prompt and returns the model's final answer.
func (a *Agent) Invoke(ctx context.Context, prompt string) (string, error) {
	res, err := a.Run(ctx, prompt)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// Run is Invoke with per-run details. On error the returned Result holds
// what happened before the failure, and the conversation keeps every
// message appended so far.
func (a *Agent) Run(ctx context.Context, prompt string) (*Result, error) {
	if a.session == nil {
		return nil, ErrNotInitialized
	}

	res := &Result{}
	next := prompt
	for {
		if a.maxCycles > 0 && res.Cycles >= a.maxCycles {
			return res, fmt.Errorf("%w: no final answer after %d cycles", ErrCycleLimitExceeded, a.maxCycles)
		}
		res.Cycles++

		resp, err := a.session.Chat(ctx, next, a.OnTextDelta)
		if err != nil {
			return res, fmt.Errorf("backend call (cycle %d): %w", res.Cycles, err)
		}
		next = ""

		if len(resp.ToolCalls) == 0 {
			res.Answer = resp.Content
			a.log.Debug().Int("cycles", res.Cycles).Msg("final answer received")
			return res, nil
		}

		for _, call := range resp.ToolCalls {
			outcome, err := a.dispatch(ctx, call)
			res.ToolCalls = append(res.ToolCalls, outcome)
			if err != nil {
				return res, err
			}
			a.session.AppendToolResult(call.ID, outcome.Content)
		}
	}
}

// dispatch resolves and invokes one tool call. A missing tool is not an
// error: the outcome carries the ToolNotFound sentinel instead.
func (a *Agent) dispatch(ctx context.Context, call llm.ToolCall) (ToolResult, error) {
	name := call.Function.Name
	outcome := ToolResult{
		CallID:    call.ID,
		Tool:      name,
		Arguments: call.Function.Arguments,
	}

	if a.OnToolCall != nil {
		a.OnToolCall(call)
	}

	provider, ok := a.registry.Resolve(name)
	if !ok {
		a.log.Warn().Str("tool", name).Str("call_id", call.ID).Msg("model requested unknown tool")
		outcome.NotFound = true
		outcome.Content = ToolNotFound
		a.notifyResult(outcome)
		return outcome, nil
	}
	outcome.Provider = provider.Name()

	args, err := parseArguments(call)
	if err != nil {
		return outcome, err
	}

	start := time.Now()
	result, err := provider.Invoke(ctx, name, args)
	outcome.Duration = time.Since(start)
	if err != nil {
		return outcome, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return outcome, &tools.InvocationError{
			Provider: provider.Name(),
			Tool:     name,
			Err:      fmt.Errorf("encoding result: %w", err),
		}
	}
	outcome.Content = string(encoded)

	a.log.Debug().
		Str("tool", name).
		Str("provider", outcome.Provider).
		Dur("took", outcome.Duration).
		Msg("tool call completed")
	a.notifyResult(outcome)
	return outcome, nil
}

func (a *Agent) notifyResult(r ToolResult) {
	if a.OnToolResult != nil {
		a.OnToolResult(r)
	}
}

// parseArguments decodes the call's arguments. Empty text means no arguments.
func parseArguments(call llm.ToolCall) (map[string]any, error) {
	raw := strings.TrimSpace(call.Function.Arguments)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, &ArgumentParseError{
			CallID:    call.ID,
			Tool:      call.Function.Name,
			Arguments: call.Function.Arguments,
			Err:       err,
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Close releases every provider. Failures are logged and returned as
// warnings; they never stop the remaining providers from closing.
func (a *Agent) Close(ctx context.Context) []error {
	return a.registry.Close(ctx)
}

// SettlePendingCalls answers every tool call left without a result by a
// failed Run with an error result carrying reason, so the conversation is
// acceptable to the backend again. It returns the number of calls settled.
func (a *Agent) SettlePendingCalls(reason string) int {
	if a.session == nil {
		return 0
	}
	pending := a.session.Conversation().PendingToolCalls()
	if len(pending) == 0 {
		return 0
	}
	encoded, err := json.Marshal(mcp.NewToolResultError(reason))
	if err != nil {
		encoded = []byte(reason)
	}
	for _, id := range pending {
		a.session.AppendToolResult(id, string(encoded))
	}
	a.log.Debug().Int("calls", len(pending)).Str("reason", reason).Msg("settled unanswered tool calls")
	return len(pending)
}

// Reset starts a fresh conversation with the same tools and prompts.
func (a *Agent) Reset() {
	if a.session == nil {
		return
	}
	a.session = llm.NewSession(a.client, a.registry.Tools(), a.systemPrompt, a.seedContext)
}

// Conversation returns a copy of the messages exchanged so far.
func (a *Agent) Conversation() []llm.Message {
	if a.session == nil {
		return nil
	}
	return a.session.Conversation().Snapshot()
}

// ConversationJSON returns the conversation as indented JSON.
func (a *Agent) ConversationJSON() string {
	data, _ := json.MarshalIndent(a.Conversation(), "", "  ")
	return string(data)
}

// Tools returns the tool definitions advertised to the model.
func (a *Agent) Tools() []llm.ToolDef {
	return a.registry.Tools()
}

func (a *Agent) String() string {
	return fmt.Sprintf("Agent(tools=%d, messages=%d, maxCycles=%d)",
		len(a.registry.Tools()), len(a.Conversation()), a.maxCycles)
}

// FormatToolCall renders a call as name(key=value, ...) with sorted keys.
func FormatToolCall(name string, arguments string) string {
	if strings.TrimSpace(arguments) == "" {
		return name + "()"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return fmt.Sprintf("%s(%s)", name, arguments)
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, args[k])
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}
