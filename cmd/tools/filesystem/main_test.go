package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/augment/internal/sandbox"
)

func newFileServer(t *testing.T, policy sandbox.Policy) *fileServer {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("one\ntwo\nthree\nfour"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET=1"), 0o644))

	root, err := sandbox.New(dir, policy)
	require.NoError(t, err)
	return &fileServer{root: root}
}

func call(t *testing.T, handler server.ToolHandlerFunc, args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestReadFile(t *testing.T) {
	f := newFileServer(t, sandbox.DefaultPolicy())

	tests := []struct {
		name    string
		args    map[string]any
		want    string
		isError bool
	}{
		{"whole file", map[string]any{"path": "notes.txt"}, "one\ntwo\nthree\nfour", false},
		{"line range", map[string]any{"path": "notes.txt", "start_line": 2, "end_line": 3}, "two\nthree", false},
		{"from line", map[string]any{"path": "notes.txt", "start_line": 4}, "four", false},
		{"end clamped", map[string]any{"path": "notes.txt", "start_line": 3, "end_line": 99}, "three\nfour", false},
		{"bad range", map[string]any{"path": "notes.txt", "start_line": 4, "end_line": 2}, "past end_line", true},
		{"missing path", map[string]any{}, "'path' is required", true},
		{"no such file", map[string]any{"path": "nope.txt"}, "nope.txt", true},
		{"directory", map[string]any{"path": "src"}, "is a directory", true},
		{"escape", map[string]any{"path": "../../etc/passwd"}, "outside the allowed directory", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isError := call(t, f.handleReadFile, tt.args)
			assert.Equal(t, tt.isError, isError)
			if tt.isError {
				assert.Contains(t, text, tt.want)
			} else {
				assert.Equal(t, tt.want, text)
			}
		})
	}
}

func TestReadFileSizeLimit(t *testing.T) {
	f := newFileServer(t, sandbox.Policy{MaxFileSize: 4})

	text, isError := call(t, f.handleReadFile, map[string]any{"path": "notes.txt"})
	assert.True(t, isError)
	assert.Contains(t, text, "over the 4 byte limit")
}

func TestWriteFile(t *testing.T) {
	f := newFileServer(t, sandbox.DefaultPolicy())

	text, isError := call(t, f.handleWriteFile, map[string]any{"path": "out/new.txt", "content": "hello"})
	require.False(t, isError, text)
	assert.Equal(t, "wrote 5 bytes to "+filepath.Join("out", "new.txt"), text)

	data, err := os.ReadFile(filepath.Join(f.root.Dir(), "out", "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	text, isError = call(t, f.handleWriteFile, map[string]any{"path": "../escape.txt", "content": "x"})
	assert.True(t, isError)
	assert.Contains(t, text, "outside the allowed directory")

	text, isError = call(t, f.handleWriteFile, map[string]any{"path": ".", "content": "x"})
	assert.True(t, isError)
	assert.Contains(t, text, "allowed directory itself")
}

func TestWriteFileReadOnly(t *testing.T) {
	f := newFileServer(t, sandbox.Policy{ReadOnly: true})

	text, isError := call(t, f.handleWriteFile, map[string]any{"path": "x.txt", "content": "x"})
	assert.True(t, isError)
	assert.Contains(t, text, "read-only")
}

func TestListDirectory(t *testing.T) {
	f := newFileServer(t, sandbox.DefaultPolicy())

	text, isError := call(t, f.handleListDirectory, map[string]any{})
	require.False(t, isError)
	assert.Equal(t, []string{"notes.txt", "src/"}, strings.Split(text, "\n"))

	text, _ = call(t, f.handleListDirectory, map[string]any{"path": "src", "pattern": "*.go"})
	assert.Equal(t, "main.go", text)

	text, _ = call(t, f.handleListDirectory, map[string]any{"pattern": "*.md"})
	assert.Equal(t, "(empty)", text)

	text, isError = call(t, f.handleListDirectory, map[string]any{"pattern": "["})
	assert.True(t, isError)
	assert.Contains(t, text, "bad pattern")

	text, isError = call(t, f.handleListDirectory, map[string]any{"path": ".."})
	assert.True(t, isError)
	assert.Contains(t, text, "outside the allowed directory")
}

func TestListDirectoryShowHidden(t *testing.T) {
	f := newFileServer(t, sandbox.Policy{ShowHidden: true})

	text, _ := call(t, f.handleListDirectory, map[string]any{})
	assert.Contains(t, text, ".env")
}

func TestServerToolsFollowPolicy(t *testing.T) {
	list := func(policy sandbox.Policy) []string {
		c, err := client.NewInProcessClient(newServer(newFileServer(t, policy)))
		require.NoError(t, err)
		defer c.Close()

		ctx := context.Background()
		require.NoError(t, c.Start(ctx))
		initReq := mcp.InitializeRequest{}
		initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initReq.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "0"}
		_, err = c.Initialize(ctx, initReq)
		require.NoError(t, err)

		res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		require.NoError(t, err)
		var names []string
		for _, tool := range res.Tools {
			names = append(names, tool.Name)
		}
		return names
	}

	assert.ElementsMatch(t, []string{"read_file", "write_file", "list_directory"}, list(sandbox.DefaultPolicy()))
	assert.ElementsMatch(t, []string{"read_file", "list_directory"}, list(sandbox.Policy{ReadOnly: true}))
}
