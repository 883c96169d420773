// Command fetch is an MCP tool server exposing a single "fetch" tool that
// retrieves a URL over HTTP GET and returns its body as text.
package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/augment/internal/toolserver"
)

const (
	defaultMaxLength = 5000
	maxBodyBytes     = 5 << 20
	userAgent        = "augment-fetch/0.1 (+https://github.com/michaelbrown/augment)"
)

type fetchArgs struct {
	URL        string `json:"url"`
	MaxLength  int    `json:"max_length"`
	StartIndex int    `json:"start_index"`
}

type fetcher struct {
	client *http.Client
}

func main() {
	s := newServer(&fetcher{client: &http.Client{Timeout: 30 * time.Second}})
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(f *fetcher) *server.MCPServer {
	s := server.NewMCPServer("augment-fetch", "0.1.0", server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("fetch",
		mcp.WithDescription("Fetch a URL via HTTP GET and return the response body as text. "+
			"Long bodies are cut at max_length characters; call again with start_index to read on."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to fetch")),
		mcp.WithNumber("max_length", mcp.Description(fmt.Sprintf("Maximum characters to return (default %d)", defaultMaxLength))),
		mcp.WithNumber("start_index", mcp.Description("Character offset to start from (default 0)")),
	), f.handleFetch)

	return s
}

func (f *fetcher) handleFetch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args fetchArgs
	if err := toolserver.DecodeArgs(request, &args); err != nil {
		return toolserver.Errorf("%v", err), nil
	}
	if args.URL == "" {
		return toolserver.Errorf("'url' is required"), nil
	}
	if !strings.HasPrefix(args.URL, "http://") && !strings.HasPrefix(args.URL, "https://") {
		return toolserver.Errorf("only http and https URLs are supported"), nil
	}
	if args.MaxLength <= 0 {
		args.MaxLength = defaultMaxLength
	}
	if args.StartIndex < 0 {
		args.StartIndex = 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
	if err != nil {
		return toolserver.Errorf("%v", err), nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return toolserver.Errorf("%v", err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return toolserver.Errorf("reading body: %v", err), nil
	}

	if resp.StatusCode >= 400 {
		return toolserver.Errorf("%s returned %s", args.URL, resp.Status), nil
	}
	if !isText(resp.Header.Get("Content-Type"), body) {
		return toolserver.Errorf("%s is not text (content-type %q)", args.URL, resp.Header.Get("Content-Type")), nil
	}

	return mcp.NewToolResultText(window(string(body), args.StartIndex, args.MaxLength)), nil
}

// window returns maxLength characters of text from start, with a note on how
// to continue when more remains.
func window(text string, start, maxLength int) string {
	runes := []rune(text)
	if start >= len(runes) {
		return "<no more content>"
	}
	end := min(start+maxLength, len(runes))
	out := string(runes[start:end])
	if end < len(runes) {
		out += fmt.Sprintf("\n\n<content truncated; call fetch with start_index=%d for more>", end)
	}
	return out
}

func isText(contentType string, body []byte) bool {
	if contentType == "" {
		return utf8.Valid(body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return utf8.Valid(body)
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case strings.HasSuffix(mediaType, "json"), strings.HasSuffix(mediaType, "xml"),
		mediaType == "application/javascript":
		return true
	}
	return false
}
