package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("hello, world"))
	})
	mux.HandleFunc("/ua", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(r.UserAgent()))
	})
	mux.HandleFunc("/long", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("ab", 50)))
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/missing", http.NotFound)
	site := httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

func callFetch(t *testing.T, args map[string]any) (string, bool) {
	t.Helper()
	f := &fetcher{client: http.DefaultClient}
	var req mcp.CallToolRequest
	req.Params.Name = "fetch"
	req.Params.Arguments = args
	res, err := f.handleFetch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestFetch(t *testing.T) {
	site := newTestSite(t)

	tests := []struct {
		name    string
		args    map[string]any
		want    string
		isError bool
	}{
		{"plain text", map[string]any{"url": site.URL + "/hello"}, "hello, world", false},
		{"user agent", map[string]any{"url": site.URL + "/ua"}, userAgent, false},
		{"json", map[string]any{"url": site.URL + "/json"}, `{"ok":true}`, false},
		{"max length", map[string]any{"url": site.URL + "/hello", "max_length": 5}, "hello", false},
		{"start index", map[string]any{"url": site.URL + "/hello", "start_index": 7}, "world", false},
		{"past end", map[string]any{"url": site.URL + "/hello", "start_index": 100}, "<no more content>", false},
		{"not found", map[string]any{"url": site.URL + "/missing"}, "404", true},
		{"binary", map[string]any{"url": site.URL + "/image"}, "is not text", true},
		{"missing url", map[string]any{}, "'url' is required", true},
		{"bad scheme", map[string]any{"url": "file:///etc/passwd"}, "only http and https", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isError := callFetch(t, tt.args)
			assert.Equal(t, tt.isError, isError)
			assert.Contains(t, text, tt.want)
		})
	}
}

func TestFetchTruncationHint(t *testing.T) {
	site := newTestSite(t)

	text, isError := callFetch(t, map[string]any{"url": site.URL + "/long", "max_length": 10})
	require.False(t, isError)
	assert.True(t, strings.HasPrefix(text, "ababababab"))
	assert.Contains(t, text, "start_index=10")
}

func TestWindowRunes(t *testing.T) {
	assert.Equal(t, "héll", strings.SplitN(window("héllo", 0, 4), "\n", 2)[0])
	assert.Equal(t, "o", window("héllo", 4, 10))
}

func TestServerAdvertisesFetch(t *testing.T) {
	c, err := client.NewInProcessClient(newServer(&fetcher{client: http.DefaultClient}))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "0"}
	_, err = c.Initialize(ctx, initReq)
	require.NoError(t, err)

	list, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "fetch", list.Tools[0].Name)
	assert.Equal(t, []string{"url"}, list.Tools[0].InputSchema.Required)
}
