package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"

	"github.com/ironsheep/creek-ocr/internal/catalog"
	"github.com/ironsheep/creek-ocr/internal/imaging"
	"github.com/ironsheep/creek-ocr/internal/record"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Pipeline is the subset of the service exposed as tools.
type Pipeline interface {
	CaptureAndProcess(ctx context.Context) (*record.Record, error)
	ProcessStoredKey(ctx context.Context, key string) (*record.Record, error)
	Query(ctx context.Context, date string) ([]*record.Record, error)
}

// Objects reads stored captures.
type Objects interface {
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// TextReader recognizes one line of text.
type TextReader interface {
	ReadText(img image.Image, whitelist string) (string, error)
}

// Server handles MCP protocol communication
type Server struct {
	pipeline Pipeline
	objects  Objects
	catalog  *catalog.Catalog
	reader   TextReader
	cache    *imaging.Cache
	version  string
	logger   *slog.Logger
}

// Config wires a Server. Unset collaborators make their tools unavailable.
type Config struct {
	Pipeline Pipeline
	Objects  Objects
	Catalog  *catalog.Catalog
	Reader   TextReader
	Version  string
	Logger   *slog.Logger
	// CacheSize bounds the decoded captures kept for region reads.
	CacheSize int
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New builds a Server, defaulting the catalog, version and cache size.
func New(cfg Config) *Server {
	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 8
	}
	return &Server{
		pipeline: cfg.Pipeline,
		objects:  cfg.Objects,
		catalog:  cat,
		reader:   cfg.Reader,
		cache:    imaging.NewCache(size),
		version:  version,
		logger:   logger,
	}
}

// Run serves MCP over stdin/stdout until stdin closes or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from in and writes responses to
// out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	encoder := json.NewEncoder(out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("failed to parse request", "err", err)
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.logger.Error("failed to encode response", "err", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return s.errorResponse(req.ID, -32601, fmt.Sprintf("Method not found: %s", req.Method), "")
	}
}

func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "creek-ocr",
				"version": s.version,
			},
		},
	}
}
