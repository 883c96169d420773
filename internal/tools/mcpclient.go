package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

const clientVersion = "0.1.0"

type transportFactory func() (transport.Interface, error)

// MCPProvider is a Provider backed by an MCP server reached over stdio.
type MCPProvider struct {
	cfg          ServerConfig
	newTransport transportFactory
	log          zerolog.Logger

	mu      sync.Mutex
	client  *client.Client
	tools   []Descriptor
	known   map[string]int
	schemas map[string]*gojsonschema.Schema
	closed  bool
}

// NewMCPProvider prepares a provider for the configured server. The
// subprocess is not started until Connect.
func NewMCPProvider(cfg ServerConfig, log zerolog.Logger) *MCPProvider {
	env := buildEnv(cfg.Env)
	args := expandArgs(cfg.Args)
	return newMCPProvider(cfg, log, func() (transport.Interface, error) {
		if cfg.Command == "" {
			return nil, fmt.Errorf("no command configured")
		}
		return transport.NewStdio(cfg.Command, env, args...), nil
	})
}

func newMCPProvider(cfg ServerConfig, log zerolog.Logger, factory transportFactory) *MCPProvider {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &MCPProvider{
		cfg:          cfg,
		newTransport: factory,
		log:          log.With().Str("provider", cfg.Name).Logger(),
	}
}

func (p *MCPProvider) Name() string {
	return p.cfg.Name
}

// Connect launches the server, initializes the MCP session and caches the
// advertised tools. Calling Connect on a connected provider is a no-op.
func (p *MCPProvider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return nil
	}

	t, err := p.newTransport()
	if err != nil {
		return &ConnectionError{Provider: p.cfg.Name, Op: "start", Err: err}
	}

	c := client.NewClient(t)
	// The subprocess outlives the connect call, so it must not inherit its cancellation.
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		return &ConnectionError{Provider: p.cfg.Name, Op: "start", Err: err}
	}

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "augment",
				Version: clientVersion,
			},
		},
	})
	if err != nil {
		c.Close()
		return &ConnectionError{Provider: p.cfg.Name, Op: "initialize", Err: err}
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return &ConnectionError{Provider: p.cfg.Name, Op: "list_tools", Err: err}
	}

	p.client = c
	p.closed = false
	p.tools = make([]Descriptor, 0, len(result.Tools))
	p.known = make(map[string]int, len(result.Tools))
	p.schemas = make(map[string]*gojsonschema.Schema)
	for _, t := range result.Tools {
		p.known[t.Name] = len(p.tools)
		p.tools = append(p.tools, descriptorFor(t))
	}

	p.log.Debug().Strs("tools", p.toolNames()).Msg("connected to tool server")
	return nil
}

func descriptorFor(t mcp.Tool) Descriptor {
	d := Descriptor{Name: t.Name, Description: t.Description}
	if len(t.RawInputSchema) > 0 {
		d.InputSchema = t.RawInputSchema
	} else if schema, err := json.Marshal(t.InputSchema); err == nil {
		d.InputSchema = schema
	}
	return d
}

// Tools returns the tools cached at connect time.
func (p *MCPProvider) Tools() []Descriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tools
}

func (p *MCPProvider) toolNames() []string {
	names := make([]string, len(p.tools))
	for i, t := range p.tools {
		names[i] = t.Name
	}
	return names
}

// Invoke calls a tool on this server and returns its result as-is.
func (p *MCPProvider) Invoke(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	p.mu.Lock()
	c := p.client
	idx, ok := p.known[name]
	p.mu.Unlock()

	if c == nil {
		return nil, &InvocationError{Provider: p.cfg.Name, Tool: name, Err: ErrNotConnected}
	}
	if !ok {
		return nil, &InvocationError{Provider: p.cfg.Name, Tool: name, Err: ErrUnknownTool}
	}

	if p.cfg.ValidateArgs {
		if err := p.validate(idx, args); err != nil {
			return nil, &InvocationError{Provider: p.cfg.Name, Tool: name, Err: err}
		}
	}

	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, &InvocationError{Provider: p.cfg.Name, Tool: name, Err: err}
	}
	return result, nil
}

// validate checks args against the tool's input schema. Tools without a
// schema accept anything.
func (p *MCPProvider) validate(idx int, args map[string]any) error {
	p.mu.Lock()
	desc := p.tools[idx]
	schema, ok := p.schemas[desc.Name]
	p.mu.Unlock()

	if len(desc.InputSchema) == 0 {
		return nil
	}
	if !ok {
		var err error
		schema, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(desc.InputSchema))
		if err != nil {
			return fmt.Errorf("compiling input schema: %w", err)
		}
		p.mu.Lock()
		p.schemas[desc.Name] = schema
		p.mu.Unlock()
	}

	if args == nil {
		args = map[string]any{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("validating arguments: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(problems, "; "))
	}
	return nil
}

// Close shuts down the MCP session and subprocess. It waits at most the
// configured shutdown timeout; on timeout the session is abandoned and the
// provider is still marked closed. Repeated calls return nil.
func (p *MCPProvider) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	c := p.client
	p.client = nil
	p.mu.Unlock()

	if c == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.Close() }()

	timer := time.NewTimer(p.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("closing %s: %w", p.cfg.Name, err)
		}
		p.log.Debug().Msg("closed tool server")
		return nil
	case <-timer.C:
		return fmt.Errorf("closing %s: timed out after %s", p.cfg.Name, p.cfg.ShutdownTimeout)
	case <-ctx.Done():
		return fmt.Errorf("closing %s: %w", p.cfg.Name, ctx.Err())
	}
}

// buildEnv inherits the current environment and appends configured
// variables, expanding $VAR and ${VAR} references.
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+ExpandEnv(v))
	}
	return env
}

func expandArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = ExpandEnv(a)
	}
	return out
}

// ExpandEnv replaces $VAR and ${VAR} references anywhere in v with their
// values from the environment. Unset variables expand to "".
func ExpandEnv(v string) string {
	return os.ExpandEnv(v)
}
