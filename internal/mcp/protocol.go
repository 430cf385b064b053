// Package mcp serves the store over the Model Context Protocol: JSON-RPC 2.0
// messages, one per line, on stdin and stdout.
package mcp

import (
	"encoding/json"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	"github.com/nickcecere/fpstore/internal/similarity"
)

// Request is an incoming JSON-RPC 2.0 message. Notifications carry no ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response carries either Result or Error.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error codes the server replies with.
const (
	ErrorCodeParse          = -32700
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
)

// Peer names one end of the session.
type Peer struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams is what the client announces. Client capabilities are
// ignored since the server only answers requests.
type InitializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      Peer   `json:"clientInfo"`
}

// Capabilities lists what fpstore offers. Only tools are served and the
// set is fixed for the life of the process.
type Capabilities struct {
	Tools struct {
		ListChanged bool `json:"listChanged"`
	} `json:"tools"`
}

// InitializeResult answers initialize.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      Peer         `json:"serverInfo"`
}

// Tool describes one callable operation on the store.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema Schema `json:"inputSchema"`
}

// Schema is the JSON Schema of a tool's arguments object.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property is a single argument.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

func arguments(props map[string]Property, required ...string) Schema {
	return Schema{Type: "object", Properties: props, Required: required}
}

// ListToolsResult answers tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams names the tool to run.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult wraps a tool's JSON output as a single text block.
type CallToolResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// TextContent is the only content type fpstore produces.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string, isError bool) *CallToolResult {
	return &CallToolResult{
		Content: []TextContent{{Type: "text", Text: text}},
		IsError: isError,
	}
}

// EncodeResult is the output of fpstore_encode.
type EncodeResult struct {
	Text        string           `json:"text"`
	Fingerprint fingerprint.Pair `json:"fingerprint"`
	Symbols     int              `json:"symbols"`
}

// Tool names.
const (
	ToolEncode  = "fpstore_encode"
	ToolSave    = "fpstore_save"
	ToolLookup  = "fpstore_lookup"
	ToolSimilar = "fpstore_similar"
	ToolRecent  = "fpstore_recent"
	ToolIngest  = "fpstore_ingest"
)

var (
	sides   = []string{string(fingerprint.SideUpper), string(fingerprint.SideLower)}
	methods = []string{string(similarity.MethodNumeric), string(similarity.MethodText), string(similarity.MethodHybrid)}
)

var tools = []Tool{
	{
		Name:        ToolEncode,
		Description: "Compute the upper and lower fingerprint of a text without storing it.",
		InputSchema: arguments(map[string]Property{
			"text": {Type: "string", Description: "Text to fingerprint"},
		}, "text"),
	},
	{
		Name:        ToolSave,
		Description: "Store a text. It is written to both shard trees and entered in the recent index.",
		InputSchema: arguments(map[string]Property{
			"text":     {Type: "string", Description: "Text to store"},
			"metadata": {Type: "object", Description: "Free-form metadata kept with the record"},
		}, "text"),
	},
	{
		Name: ToolLookup,
		Description: "Find stored records by exact text, or by a fingerprint value on one side. " +
			"Records sharing the leading digits of the fingerprint are returned.",
		InputSchema: arguments(map[string]Property{
			"text":  {Type: "string", Description: "Text whose fingerprint to look up"},
			"value": {Type: "number", Description: "Fingerprint value to look up"},
			"side":  {Type: "string", Description: "Tree for value lookups", Enum: sides, Default: string(fingerprint.SideUpper)},
			"limit": {Type: "integer", Description: "Maximum records to return", Default: 10},
		}),
	},
	{
		Name:        ToolSimilar,
		Description: "Rank stored records by similarity to a query using numeric, text or hybrid scoring.",
		InputSchema: arguments(map[string]Property{
			"query":     {Type: "string", Description: "Query text"},
			"method":    {Type: "string", Description: "Scoring method", Enum: methods, Default: string(similarity.MethodHybrid)},
			"threshold": {Type: "number", Description: "Minimum score between 0 and 1", Default: 0},
			"tolerance": {Type: "number", Description: "Fingerprint distance for candidate gathering", Default: 0.5},
			"limit":     {Type: "integer", Description: "Maximum results to return", Default: 10},
		}, "query"),
	},
	{
		Name:        ToolRecent,
		Description: "List the most recently saved texts, newest first.",
		InputSchema: arguments(map[string]Property{
			"limit": {Type: "integer", Description: "Maximum entries to return", Default: 10},
		}),
	},
	{
		Name:        ToolIngest,
		Description: "Chunk and store every text file under a directory. Unchanged files are skipped.",
		InputSchema: arguments(map[string]Property{
			"path":  {Type: "string", Description: "Directory to ingest (default: current directory)"},
			"force": {Type: "boolean", Description: "Re-ingest files even when unchanged", Default: false},
		}),
	},
}
