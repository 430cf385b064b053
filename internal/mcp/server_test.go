package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/fpstore/internal/config"
	"github.com/nickcecere/fpstore/internal/hybrid"
	"github.com/nickcecere/fpstore/internal/search"
	"github.com/nickcecere/fpstore/internal/shard"
	"github.com/nickcecere/fpstore/internal/workspace"
)

func openWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Storage.Catalog = false

	ws, err := workspace.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// exchange runs the server over the given request lines and returns the
// decoded responses.
func exchange(t *testing.T, ws *workspace.Workspace, lines ...string) []Response {
	t.Helper()
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer

	srv := NewServer(ws, WithIO(in, &out))
	require.NoError(t, srv.Run(context.Background()))

	var responses []Response
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func callRequest(t *testing.T, id int, name string, args map[string]any) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)
	return string(data)
}

// toolText decodes the single text block of a tools/call response.
func toolText(t *testing.T, resp Response) (string, bool) {
	t.Helper()
	require.Nil(t, resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)

	var result CallToolResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Content, 1)
	return result.Content[0].Text, result.IsError
}

func TestInitialize(t *testing.T) {
	ws := openWorkspace(t)
	responses := exchange(t, ws,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	)
	require.Len(t, responses, 2)

	result, ok := responses[0].Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, MCPVersion, result["protocolVersion"])
	info := result["serverInfo"].(map[string]any)
	assert.Equal(t, ServerName, info["name"])
	assert.Equal(t, ServerVersion, info["version"])
	caps := result["capabilities"].(map[string]any)
	assert.Equal(t, map[string]any{"listChanged": false}, caps["tools"])

	assert.Equal(t, float64(2), responses[1].ID)
	assert.Nil(t, responses[1].Error)
}

func TestListTools(t *testing.T) {
	ws := openWorkspace(t)
	responses := exchange(t, ws, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Len(t, responses, 1)

	data, err := json.Marshal(responses[0].Result)
	require.NoError(t, err)
	var result ListToolsResult
	require.NoError(t, json.Unmarshal(data, &result))

	var names []string
	byName := make(map[string]Tool)
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		byName[tool.Name] = tool
		assert.Equal(t, "object", tool.InputSchema.Type, tool.Name)
	}
	assert.Equal(t, []string{ToolEncode, ToolSave, ToolLookup, ToolSimilar, ToolRecent, ToolIngest}, names)

	assert.Equal(t, []string{"text"}, byName[ToolSave].InputSchema.Required)
	assert.Empty(t, byName[ToolLookup].InputSchema.Required)
	assert.Equal(t, []string{"upper", "lower"}, byName[ToolLookup].InputSchema.Properties["side"].Enum)
	assert.Equal(t, []string{"numeric", "text", "hybrid"}, byName[ToolSimilar].InputSchema.Properties["method"].Enum)
	assert.Equal(t, "hybrid", byName[ToolSimilar].InputSchema.Properties["method"].Default)
}

func TestProtocolErrors(t *testing.T) {
	ws := openWorkspace(t)
	responses := exchange(t, ws,
		`not json`,
		`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":"bad"}`,
	)
	require.Len(t, responses, 3)

	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrorCodeParse, responses[0].Error.Code)
	require.NotNil(t, responses[1].Error)
	assert.Equal(t, ErrorCodeMethodNotFound, responses[1].Error.Code)
	require.NotNil(t, responses[2].Error)
	assert.Equal(t, ErrorCodeInvalidParams, responses[2].Error.Code)
}

func TestToolEncode(t *testing.T) {
	ws := openWorkspace(t)
	responses := exchange(t, ws, callRequest(t, 1, ToolEncode, map[string]any{"text": "hello world"}))
	require.Len(t, responses, 1)

	text, isErr := toolText(t, responses[0])
	require.False(t, isErr, text)

	var result EncodeResult
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	assert.InDelta(t, 3.528, result.Fingerprint.Upper, 1e-9)
	assert.InDelta(t, 2.5256666667, result.Fingerprint.Lower, 1e-9)
	assert.Equal(t, 11, result.Symbols)
}

// TestToolRoundTrip tests save, lookup, similar and recent through the
// protocol.
func TestToolRoundTrip(t *testing.T) {
	ws := openWorkspace(t)
	responses := exchange(t, ws,
		callRequest(t, 1, ToolSave, map[string]any{"text": "hello world", "metadata": map[string]any{"tag": "greeting"}}),
		callRequest(t, 2, ToolLookup, map[string]any{"text": "hello world"}),
		callRequest(t, 3, ToolLookup, map[string]any{"value": 3.528, "side": "upper"}),
		callRequest(t, 4, ToolSimilar, map[string]any{"query": "hello world", "method": "text"}),
		callRequest(t, 5, ToolRecent, map[string]any{"limit": 5}),
	)
	require.Len(t, responses, 5)

	text, isErr := toolText(t, responses[0])
	require.False(t, isErr, text)
	var saved hybrid.SaveResult
	require.NoError(t, json.Unmarshal([]byte(text), &saved))
	assert.NotEmpty(t, saved.RecordID)

	text, isErr = toolText(t, responses[1])
	require.False(t, isErr, text)
	var exact []search.Result
	require.NoError(t, json.Unmarshal([]byte(text), &exact))
	require.Len(t, exact, 1)
	assert.Equal(t, saved.RecordID, exact[0].Record.ID)

	text, isErr = toolText(t, responses[2])
	require.False(t, isErr, text)
	var records []shard.Record
	require.NoError(t, json.Unmarshal([]byte(text), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "greeting", records[0].Metadata["tag"])

	text, isErr = toolText(t, responses[3])
	require.False(t, isErr, text)
	var similar []search.Result
	require.NoError(t, json.Unmarshal([]byte(text), &similar))
	require.NotEmpty(t, similar)
	assert.Equal(t, "hello world", similar[0].Record.Text)
	assert.InDelta(t, 1.0, similar[0].Score, 1e-9)

	text, isErr = toolText(t, responses[4])
	require.False(t, isErr, text)
	var recents []hybrid.Result
	require.NoError(t, json.Unmarshal([]byte(text), &recents))
	require.Len(t, recents, 1)
	assert.Equal(t, "hello world", recents[0].Entry.Text)
}

func TestToolIngest(t *testing.T) {
	ws := openWorkspace(t)
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("first note\n"), 0644))

	responses := exchange(t, ws,
		callRequest(t, 1, ToolIngest, map[string]any{"path": src}),
		callRequest(t, 2, ToolLookup, map[string]any{"text": "first note"}),
	)
	require.Len(t, responses, 2)

	text, isErr := toolText(t, responses[0])
	require.False(t, isErr, text)
	assert.Contains(t, text, `"StoredRecords": 1`)

	text, isErr = toolText(t, responses[1])
	require.False(t, isErr, text)
	assert.Contains(t, text, "notes.txt")
}

func TestToolErrors(t *testing.T) {
	ws := openWorkspace(t)
	responses := exchange(t, ws,
		callRequest(t, 1, "fpstore_unknown", nil),
		callRequest(t, 2, ToolEncode, map[string]any{}),
		callRequest(t, 3, ToolLookup, map[string]any{"value": 1.5, "side": "middle"}),
		callRequest(t, 4, ToolSimilar, map[string]any{"query": "x", "method": "cosine"}),
		callRequest(t, 5, ToolSimilar, map[string]any{}),
	)
	require.Len(t, responses, 5)

	for i, resp := range responses {
		text, isErr := toolText(t, resp)
		assert.True(t, isErr, "response %d: %s", i, text)
	}
}
