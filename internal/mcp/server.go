package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	"github.com/nickcecere/fpstore/internal/ingest"
	"github.com/nickcecere/fpstore/internal/search"
	"github.com/nickcecere/fpstore/internal/similarity"
	"github.com/nickcecere/fpstore/internal/workspace"
)

const (
	// MCPVersion is the protocol version we support.
	MCPVersion = "2024-11-05"

	// ServerName is the name of this MCP server.
	ServerName = "fpstore"

	// ServerVersion is the version of this server.
	ServerVersion = "1.0.0"
)

// Server is the MCP server for fpstore.
type Server struct {
	ws       *workspace.Workspace
	searcher *search.Searcher

	// Stdin/stdout for communication
	reader *bufio.Reader
	writer io.Writer

	// State
	initialized bool
}

// Option configures a Server.
type Option func(*Server)

// WithIO replaces stdin and stdout.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(s *Server) {
		s.reader = bufio.NewReader(r)
		s.writer = w
	}
}

// NewServer creates a new MCP server over an opened workspace.
func NewServer(ws *workspace.Workspace, opts ...Option) *Server {
	s := &Server{
		ws:       ws,
		searcher: ws.Searcher(),
		reader:   bufio.NewReader(os.Stdin),
		writer:   os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the MCP server and processes requests until the context is
// cancelled or the input ends.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Read a line from stdin
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				log.Info("MCP server received EOF, shutting down")
				return nil
			}
			return fmt.Errorf("failed to read request: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Parse the request
		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.sendError(nil, ErrorCodeParse, "Parse error", err.Error())
			continue
		}

		// Handle the request
		s.handleRequest(ctx, req)
	}
}

// handleRequest processes a single MCP request.
func (s *Server) handleRequest(ctx context.Context, req Request) {
	log.Debug("Received request", "method", req.Method, "id", req.ID)

	var result any
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "initialized", "notifications/initialized":
		// This is a notification, no response needed
		s.initialized = true
		log.Info("MCP server initialized")
		return
	case "tools/list":
		result = s.handleListTools()
	case "tools/call":
		result, err = s.handleCallTool(ctx, req.Params)
	case "ping":
		result = map[string]any{}
	default:
		s.sendError(req.ID, ErrorCodeMethodNotFound, "Method not found", req.Method)
		return
	}

	if err != nil {
		s.sendError(req.ID, ErrorCodeInvalidParams, "Invalid params", err.Error())
		return
	}

	s.sendResult(req.ID, result)
}

// handleInitialize handles the initialize request.
func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, error) {
	var p InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	log.Info("Initializing MCP server",
		"clientName", p.ClientInfo.Name,
		"clientVersion", p.ClientInfo.Version,
		"protocolVersion", p.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: MCPVersion,
		ServerInfo:      Peer{Name: ServerName, Version: ServerVersion},
	}, nil
}

// handleListTools returns the list of available tools.
func (s *Server) handleListTools() *ListToolsResult {
	return &ListToolsResult{Tools: tools}
}

// handleCallTool executes a tool and returns the result.
func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	log.Debug("Calling tool", "name", p.Name, "arguments", p.Arguments)

	var result any
	var err error

	switch p.Name {
	case ToolEncode:
		result, err = s.toolEncode(p.Arguments)
	case ToolSave:
		result, err = s.toolSave(p.Arguments)
	case ToolLookup:
		result, err = s.toolLookup(ctx, p.Arguments)
	case ToolSimilar:
		result, err = s.toolSimilar(ctx, p.Arguments)
	case ToolRecent:
		result, err = s.toolRecent(p.Arguments)
	case ToolIngest:
		result, err = s.toolIngest(ctx, p.Arguments)
	default:
		return textResult(fmt.Sprintf("Unknown tool: %s", p.Name), true), nil
	}

	if err != nil {
		return textResult("Error: "+err.Error(), true), nil
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return textResult(string(text), false), nil
}

// toolEncode fingerprints text without storing it.
func (s *Server) toolEncode(args map[string]any) (*EncodeResult, error) {
	text, ok := args["text"].(string)
	if !ok {
		return nil, fmt.Errorf("text is required")
	}
	pair, symbols := s.ws.Encoder.Pair(text)
	return &EncodeResult{Text: text, Fingerprint: pair, Symbols: len(symbols)}, nil
}

// toolSave persists text through the recent index.
func (s *Server) toolSave(args map[string]any) (any, error) {
	text, ok := args["text"].(string)
	if !ok {
		return nil, fmt.Errorf("text is required")
	}
	var metadata map[string]any
	if m, ok := args["metadata"].(map[string]any); ok {
		metadata = m
	}
	return s.ws.Hybrid.Save(text, metadata)
}

// toolLookup finds records by text or by fingerprint value.
func (s *Server) toolLookup(ctx context.Context, args map[string]any) (any, error) {
	limit := intArg(args, "limit", s.ws.Config.Search.Limit)

	if text, ok := args["text"].(string); ok && text != "" {
		opts := s.ws.SearchOptions()
		opts.Limit = limit
		return s.searcher.Exact(ctx, text, opts)
	}

	value, ok := floatArg(args, "value")
	if !ok {
		return nil, fmt.Errorf("text or value is required")
	}
	side := fingerprint.SideUpper
	if v, ok := args["side"].(string); ok && v != "" {
		parsed, err := fingerprint.ParseSide(v)
		if err != nil {
			return nil, err
		}
		side = parsed
	}
	return s.ws.Shards.FindByFingerprint(value, side, limit), nil
}

// toolSimilar ranks stored records against a query.
func (s *Server) toolSimilar(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, search.ErrEmptyQuery
	}

	opts := s.ws.SearchOptions()
	opts.Limit = intArg(args, "limit", opts.Limit)
	if m, ok := args["method"].(string); ok && m != "" {
		method, err := similarity.ParseMethod(m)
		if err != nil {
			return nil, err
		}
		opts.Method = method
	}
	if v, ok := floatArg(args, "threshold"); ok {
		opts.Threshold = v
	}
	if v, ok := floatArg(args, "tolerance"); ok {
		opts.Tolerance = v
	}
	return s.searcher.Similar(ctx, query, opts)
}

// toolRecent lists the newest recent index entries.
func (s *Server) toolRecent(args map[string]any) (any, error) {
	return s.ws.Hybrid.List(intArg(args, "limit", 10)), nil
}

// toolIngest ingests a directory.
func (s *Server) toolIngest(ctx context.Context, args map[string]any) (any, error) {
	path := "."
	if p, ok := args["path"].(string); ok && p != "" {
		path = p
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	force, _ := args["force"].(bool)
	return s.ws.Ingester(false).Ingest(ctx, ingest.IngestOptions{Path: absPath, Force: force})
}

// intArg reads an integer argument sent as a number or a string.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case string:
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

// floatArg reads a float argument sent as a number or a string.
func floatArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case string:
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// sendResult sends a successful response.
func (s *Server) sendResult(id any, result any) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	s.send(resp)
}

// sendError sends an error response.
func (s *Server) sendError(id any, code int, message, data string) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	s.send(resp)
}

// send writes a response to stdout.
func (s *Server) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("Failed to marshal response", "error", err)
		return
	}
	fmt.Fprintln(s.writer, string(data))
}
