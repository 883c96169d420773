// Command filesystem is an MCP tool server for reading, writing and listing
// files under one allowed directory, given as the first argument.
//
//	filesystem [--read-only] <dir>
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/augment/internal/sandbox"
	"github.com/michaelbrown/augment/internal/toolserver"
)

type readArgs struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

type writeArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type listArgs struct {
	Path    string `json:"path"`
	Pattern string `json:"pattern"`
}

type fileServer struct {
	root *sandbox.Root
}

func main() {
	policy := sandbox.DefaultPolicy()
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "--read-only" {
		policy.ReadOnly = true
		args = args[1:]
	}
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	root, err := sandbox.New(dir, policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "filesystem: %v\n", err)
		os.Exit(1)
	}

	if err := server.ServeStdio(newServer(&fileServer{root: root})); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(fsrv *fileServer) *server.MCPServer {
	s := server.NewMCPServer("augment-filesystem", "0.1.0", server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read the contents of a file. Optionally specify a line range."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the file, relative to the allowed directory")),
		mcp.WithNumber("start_line", mcp.Description("First line to read (1-based, optional)")),
		mcp.WithNumber("end_line", mcp.Description("Last line to read (1-based, inclusive, optional)")),
	), fsrv.handleReadFile)

	if !fsrv.root.Policy().ReadOnly {
		s.AddTool(mcp.NewTool("write_file",
			mcp.WithDescription("Write content to a file, creating it and its parent directories if needed. Overwrites existing content."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path of the file, relative to the allowed directory")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Content to write")),
		), fsrv.handleWriteFile)
	}

	s.AddTool(mcp.NewTool("list_directory",
		mcp.WithDescription("List the entries of a directory, optionally filtered by a glob pattern. Directories end with '/'."),
		mcp.WithString("path", mcp.Description("Directory to list, relative to the allowed directory (default: the directory itself)")),
		mcp.WithString("pattern", mcp.Description("Glob pattern to filter entry names (e.g. '*.go')")),
	), fsrv.handleListDirectory)

	return s
}

func (f *fileServer) handleReadFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args readArgs
	if err := toolserver.DecodeArgs(request, &args); err != nil {
		return toolserver.Errorf("%v", err), nil
	}
	if args.Path == "" {
		return toolserver.Errorf("'path' is required"), nil
	}

	path, err := f.root.Resolve(args.Path)
	if err != nil {
		return toolserver.Errorf("%v", err), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return toolserver.Errorf("reading file: %v", f.relErr(err)), nil
	}
	if info.IsDir() {
		return toolserver.Errorf("%s is a directory", args.Path), nil
	}
	if !f.root.Policy().AllowsSize(info.Size()) {
		return toolserver.Errorf("%s is %d bytes, over the %d byte limit", args.Path, info.Size(), f.root.Policy().MaxFileSize), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return toolserver.Errorf("reading file: %v", f.relErr(err)), nil
	}
	content := string(data)

	if args.StartLine > 0 || args.EndLine > 0 {
		lines := strings.Split(content, "\n")
		start, end := args.StartLine, args.EndLine
		if start < 1 {
			start = 1
		}
		if end < 1 || end > len(lines) {
			end = len(lines)
		}
		if start > end {
			return toolserver.Errorf("start_line %d is past end_line %d", start, end), nil
		}
		content = strings.Join(lines[start-1:end], "\n")
	}

	return mcp.NewToolResultText(content), nil
}

func (f *fileServer) handleWriteFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args writeArgs
	if err := toolserver.DecodeArgs(request, &args); err != nil {
		return toolserver.Errorf("%v", err), nil
	}
	if args.Path == "" {
		return toolserver.Errorf("'path' is required"), nil
	}

	path, err := f.root.ResolveWrite(args.Path, int64(len(args.Content)))
	if err != nil {
		return toolserver.Errorf("%v", err), nil
	}
	if path == f.root.Dir() {
		return toolserver.Errorf("cannot write to the allowed directory itself"), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return toolserver.Errorf("creating directories: %v", f.relErr(err)), nil
	}
	if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
		return toolserver.Errorf("writing file: %v", f.relErr(err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("wrote %d bytes to %s", len(args.Content), f.root.Rel(path))), nil
}

func (f *fileServer) handleListDirectory(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args listArgs
	if err := toolserver.DecodeArgs(request, &args); err != nil {
		return toolserver.Errorf("%v", err), nil
	}
	if args.Pattern != "" {
		if _, err := filepath.Match(args.Pattern, ""); err != nil {
			return toolserver.Errorf("bad pattern %q: %v", args.Pattern, err), nil
		}
	}

	path, err := f.root.Resolve(args.Path)
	if err != nil {
		return toolserver.Errorf("%v", err), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return toolserver.Errorf("listing directory: %v", f.relErr(err)), nil
	}

	var lines []string
	for _, e := range entries {
		name := e.Name()
		if !f.root.Policy().ShowHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if args.Pattern != "" {
			if ok, _ := filepath.Match(args.Pattern, name); !ok {
				continue
			}
		}
		if e.IsDir() {
			name += "/"
		}
		lines = append(lines, name)
	}

	if len(lines) == 0 {
		return mcp.NewToolResultText("(empty)"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

// relErr strips the root prefix from path errors so the model sees the
// paths it used.
func (f *fileServer) relErr(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s %s: %w", pathErr.Op, f.root.Rel(pathErr.Path), pathErr.Err)
	}
	return err
}
