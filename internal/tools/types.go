package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultShutdownTimeout bounds how long Close waits for a tool server to exit.
const DefaultShutdownTimeout = 2 * time.Second

// ServerConfig describes an MCP tool server subprocess.
type ServerConfig struct {
	Name            string            `mapstructure:"name"`
	Command         string            `mapstructure:"command"`
	Args            []string          `mapstructure:"args"`
	Env             map[string]string `mapstructure:"env"`
	Enabled         bool              `mapstructure:"enabled"`
	ShutdownTimeout time.Duration     `mapstructure:"shutdown_timeout"`
	ValidateArgs    bool              `mapstructure:"validate_args"`
}

// Descriptor is the static metadata of one tool, captured at connect time.
type Descriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage // may be empty
}

// Provider is a source of callable tools backed by an external process.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// Connect starts the transport, performs the handshake and caches the
	// tool list. Failures are *ConnectionError and are not retried.
	Connect(ctx context.Context) error

	// Tools returns the list cached by Connect.
	Tools() []Descriptor

	// Invoke calls a tool by name. The result is forwarded uninterpreted.
	// Failures are *InvocationError.
	Invoke(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)

	// Close releases the transport. It is idempotent and bounded in time;
	// any error it returns is a teardown warning.
	Close(ctx context.Context) error
}

// isBlank reports whether a tool name cannot be referenced by the model.
func isBlank(name string) bool {
	return strings.TrimSpace(name) == ""
}
