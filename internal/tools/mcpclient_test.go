package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEchoServer() *server.MCPServer {
	s := server.NewMCPServer("echo-server", "1.0.0", server.WithToolCapabilities(false))
	s.AddTool(
		mcp.NewTool("echo",
			mcp.WithDescription("Echo text back"),
			mcp.WithString("text", mcp.Required(), mcp.Description("Text to echo")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("echo: " + req.GetString("text", "")), nil
		},
	)
	s.AddTool(
		mcp.NewTool("fail", mcp.WithDescription("Always reports an error")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("it broke"), nil
		},
	)
	return s
}

func inProcessProvider(cfg ServerConfig, s *server.MCPServer) *MCPProvider {
	return newMCPProvider(cfg, zerolog.Nop(), func() (transport.Interface, error) {
		return transport.NewInProcessTransport(s), nil
	})
}

func TestMCPProviderConnectListsTools(t *testing.T) {
	p := inProcessProvider(ServerConfig{Name: "echo"}, newEchoServer())
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))
	defer p.Close(ctx)

	descs := p.Tools()
	require.Len(t, descs, 2)

	names := []string{descs[0].Name, descs[1].Name}
	assert.ElementsMatch(t, []string{"echo", "fail"}, names)
	for _, d := range descs {
		assert.NotEmpty(t, d.InputSchema)
		if d.Name == "echo" {
			assert.Equal(t, "Echo text back", d.Description)
			assert.Contains(t, string(d.InputSchema), `"text"`)
		}
	}
}

func TestMCPProviderInvoke(t *testing.T) {
	p := inProcessProvider(ServerConfig{Name: "echo"}, newEchoServer())
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))
	defer p.Close(ctx)

	result, err := p.Invoke(ctx, "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	assert.Equal(t, "echo: hi", text.Text)
	assert.False(t, result.IsError)
}

func TestMCPProviderToolErrorIsForwarded(t *testing.T) {
	p := inProcessProvider(ServerConfig{Name: "echo"}, newEchoServer())
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))
	defer p.Close(ctx)

	result, err := p.Invoke(ctx, "fail", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMCPProviderInvokeUnknownTool(t *testing.T) {
	p := inProcessProvider(ServerConfig{Name: "echo"}, newEchoServer())
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))
	defer p.Close(ctx)

	_, err := p.Invoke(ctx, "nope", nil)
	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "nope", invErr.Tool)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestMCPProviderInvokeBeforeConnect(t *testing.T) {
	p := inProcessProvider(ServerConfig{Name: "echo"}, newEchoServer())

	_, err := p.Invoke(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestMCPProviderValidateArgs(t *testing.T) {
	p := inProcessProvider(ServerConfig{Name: "echo", ValidateArgs: true}, newEchoServer())
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))
	defer p.Close(ctx)

	_, err := p.Invoke(ctx, "echo", map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, err = p.Invoke(ctx, "echo", map[string]any{"text": 42})
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, err = p.Invoke(ctx, "echo", map[string]any{"text": "ok"})
	assert.NoError(t, err)
}

func TestMCPProviderConnectFailure(t *testing.T) {
	p := newMCPProvider(ServerConfig{Name: "broken"}, zerolog.Nop(), func() (transport.Interface, error) {
		return nil, errors.New("spawn failed")
	})

	err := p.Connect(context.Background())
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "broken", connErr.Provider)
	assert.Equal(t, "start", connErr.Op)

	// Close on a provider that never connected is harmless.
	assert.NoError(t, p.Close(context.Background()))
}

func TestMCPProviderMissingBinary(t *testing.T) {
	p := NewMCPProvider(ServerConfig{Name: "ghost", Command: "/nonexistent/augment-tool"}, zerolog.Nop())

	err := p.Connect(context.Background())
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestMCPProviderCloseIdempotent(t *testing.T) {
	p := inProcessProvider(ServerConfig{Name: "echo"}, newEchoServer())
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))

	assert.NoError(t, p.Close(ctx))
	assert.NoError(t, p.Close(ctx))

	_, err := p.Invoke(ctx, "echo", map[string]any{"text": "late"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

type stuckTransport struct {
	*transport.InProcessTransport
	release chan struct{}
}

func (s *stuckTransport) Close() error {
	<-s.release
	return s.InProcessTransport.Close()
}

func TestMCPProviderCloseTimesOut(t *testing.T) {
	stuck := &stuckTransport{
		InProcessTransport: transport.NewInProcessTransport(newEchoServer()),
		release:            make(chan struct{}),
	}
	defer close(stuck.release)

	p := newMCPProvider(ServerConfig{Name: "stuck", ShutdownTimeout: 20 * time.Millisecond}, zerolog.Nop(),
		func() (transport.Interface, error) { return stuck, nil })
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))

	start := time.Now()
	err := p.Close(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), time.Second)

	// The abandoned provider still counts as closed.
	assert.NoError(t, p.Close(ctx))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("AUGMENT_TEST_TOKEN", "secret")

	assert.Equal(t, "secret", ExpandEnv("${AUGMENT_TEST_TOKEN}"))
	assert.Equal(t, "plain", ExpandEnv("plain"))
	assert.Equal(t, "", ExpandEnv("${AUGMENT_TEST_UNSET}"))
	assert.Equal(t, "Bearer secret", ExpandEnv("Bearer ${AUGMENT_TEST_TOKEN}"))
	assert.Equal(t, "https://secret.example.com/v1", ExpandEnv("https://${AUGMENT_TEST_TOKEN}.example.com/v1"))
	assert.Equal(t, "secret-secret", ExpandEnv("$AUGMENT_TEST_TOKEN-${AUGMENT_TEST_TOKEN}"))
}

func TestExpandArgs(t *testing.T) {
	t.Setenv("AUGMENT_TEST_HOME", "/home/tester")

	assert.Equal(t,
		[]string{"--read-only", "/home/tester/projects", "plain"},
		expandArgs([]string{"--read-only", "${AUGMENT_TEST_HOME}/projects", "plain"}))
	assert.Nil(t, expandArgs(nil))
}

func TestBuildEnvExpandsEmbeddedReferences(t *testing.T) {
	t.Setenv("AUGMENT_TEST_TOKEN", "secret")

	env := buildEnv(map[string]string{"AUTH": "Bearer ${AUGMENT_TEST_TOKEN}"})
	assert.Contains(t, env, "AUTH=Bearer secret")
}
