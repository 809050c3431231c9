package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/briefing/internal/archive"
	"github.com/renderinc/briefing/internal/tools"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	a := archive.New(archive.DefaultConfig(t.TempDir()))
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { a.Close() })

	r := tools.NewRegistry()
	tools.RegisterArchiveTools(r, a, nil)

	s, err := New("briefing", "test", r, a, nil)
	require.NoError(t, err)
	initialize(t, s)
	return s
}

func initialize(t *testing.T, s *Server) {
	t.Helper()
	call(t, s, `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`)
}

// call sends one JSON-RPC message and decodes the result member
func call(t *testing.T, s *Server, msg string) map[string]any {
	t.Helper()
	resp := s.MCP().HandleMessage(context.Background(), json.RawMessage(msg))
	require.NotNil(t, resp)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var out struct {
		Result map[string]any `json:"result"`
		Error  map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Nil(t, out.Error, string(raw))
	return out.Result
}

func TestListTools(t *testing.T) {
	s := newTestServer(t)
	result := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	list, ok := result["tools"].([]any)
	require.True(t, ok)

	var names []string
	for _, v := range list {
		names = append(names, v.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "put_item")
	assert.Contains(t, names, "context_summary")
	assert.NotContains(t, names, "ingest_url", "registered only with an ingester")
}

func toolText(t *testing.T, result map[string]any) (string, bool) {
	t.Helper()
	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, content)
	isErr, _ := result["isError"].(bool)
	return content[0].(map[string]any)["text"].(string), isErr
}

func TestCallTool(t *testing.T) {
	s := newTestServer(t)

	put := call(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"put_item","arguments":{"url":"https://example.com/a","content":"rust compiler news","content_id":"item-a"}}}`)
	text, isErr := toolText(t, put)
	assert.False(t, isErr, text)
	assert.Contains(t, text, `"item-a"`)

	get := call(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_item","arguments":{"content_id":"item-a"}}}`)
	text, isErr = toolText(t, get)
	assert.False(t, isErr, text)
	assert.Contains(t, text, "rust compiler news")
}

func TestCallToolInvalidArguments(t *testing.T) {
	s := newTestServer(t)

	res := call(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"put_item","arguments":{"url":"https://example.com/a"}}}`)
	text, isErr := toolText(t, res)
	assert.True(t, isErr)
	assert.Contains(t, text, "content")
}

func TestReadResources(t *testing.T) {
	s := newTestServer(t)

	for _, uri := range []string{ContextURI, StatsURI} {
		res := call(t, s, `{"jsonrpc":"2.0","id":5,"method":"resources/read","params":{"uri":"`+uri+`"}}`)
		contents, ok := res["contents"].([]any)
		require.True(t, ok, uri)
		require.Len(t, contents, 1)

		first := contents[0].(map[string]any)
		assert.Equal(t, uri, first["uri"])
		assert.True(t, json.Valid([]byte(first["text"].(string))), uri)
	}
}

func TestServeStdio(t *testing.T) {
	s := newTestServer(t)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}` + "\n")
	var out syncBuffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.ServeStdio(ctx, in, &out))
	assert.Contains(t, out.String(), `"serverInfo"`)
}

// syncBuffer guards a bytes.Buffer written from the stdio goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
