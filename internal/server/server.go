package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ironsheep/medscan-mcp/internal/acquire"
	"github.com/ironsheep/medscan-mcp/internal/imaging"
	"github.com/ironsheep/medscan-mcp/internal/interactions"
	"github.com/ironsheep/medscan-mcp/internal/locale"
	"github.com/ironsheep/medscan-mcp/internal/pipeline"
)

// Version is reported in the initialize handshake.
var Version = "dev"

// Server handles MCP protocol communication
type Server struct {
	cache    *imaging.ImageCache
	runner   *pipeline.Runner
	capturer *acquire.Capturer
	checker  interactions.Checker
	language locale.Language
	logger   *slog.Logger

	in  io.Reader
	out io.Writer

	// mu guards the encoder; responses and progress notifications
	// interleave from concurrent tool calls.
	mu      sync.Mutex
	encoder *json.Encoder

	callsMu sync.Mutex
	calls   map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// Options wires a Server. Runner is required; the rest have defaults.
type Options struct {
	Runner   *pipeline.Runner
	Capturer *acquire.Capturer
	Checker  interactions.Checker
	Cache    *imaging.ImageCache
	Language locale.Language
	Logger   *slog.Logger

	// In and Out default to stdin and stdout.
	In  io.Reader
	Out io.Writer
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

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a new MCP server instance
func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("server: a pipeline runner is required")
	}
	s := &Server{
		cache:    opts.Cache,
		runner:   opts.Runner,
		capturer: opts.Capturer,
		checker:  opts.Checker,
		language: locale.Parse(string(opts.Language)),
		logger:   opts.Logger,
		in:       opts.In,
		out:      opts.Out,
		calls:    make(map[string]context.CancelFunc),
	}
	if s.cache == nil {
		s.cache = imaging.NewImageCache()
	}
	if s.checker == nil {
		s.checker = interactions.NewStaticTable()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "server")
	if s.in == nil {
		s.in = os.Stdin
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	s.encoder = json.NewEncoder(s.out)
	return s, nil
}

// Run reads requests until the input closes or ctx is done. Tool calls run
// concurrently so that a long scan can be cancelled or superseded; all other
// methods are answered in order.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.wg.Wait()

	scanner := bufio.NewScanner(s.in)
	// Inline base64 images can be large.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 32*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("failed to parse request", "error", err)
			s.write(s.errorResponse(nil, -32700, "Parse error", err.Error()))
			continue
		}

		if req.Method == "tools/call" && req.ID != nil {
			callCtx := s.trackCall(ctx, req.ID)
			s.wg.Add(1)
			go func(req MCPRequest) {
				defer s.wg.Done()
				defer s.untrackCall(req.ID)
				s.write(s.handleToolsCall(callCtx, &req))
			}(req)
			continue
		}

		if resp := s.handleRequest(ctx, &req); resp != nil {
			s.write(resp)
		}

		if err := ctx.Err(); err != nil {
			return err
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
	case "notifications/cancelled":
		s.handleCancelled(req)
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
		if req.ID == nil {
			// Unknown notifications are ignored.
			return nil
		}
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "medscan-mcp",
				"version": Version,
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}

type cancelledParams struct {
	RequestID interface{} `json:"requestId"`
	Reason    string      `json:"reason,omitempty"`
}

func (s *Server) handleCancelled(req *MCPRequest) {
	var p cancelledParams
	if err := json.Unmarshal(req.Params, &p); err != nil || p.RequestID == nil {
		return
	}
	s.callsMu.Lock()
	cancel, ok := s.calls[callKey(p.RequestID)]
	s.callsMu.Unlock()
	if ok {
		s.logger.Info("tool call cancelled by client", "request_id", p.RequestID, "reason", p.Reason)
		cancel()
	}
}

func (s *Server) trackCall(ctx context.Context, id interface{}) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	s.callsMu.Lock()
	s.calls[callKey(id)] = cancel
	s.callsMu.Unlock()
	return ctx
}

func (s *Server) untrackCall(id interface{}) {
	key := callKey(id)
	s.callsMu.Lock()
	cancel, ok := s.calls[key]
	delete(s.calls, key)
	s.callsMu.Unlock()
	if ok {
		cancel()
	}
}

// callKey normalizes a JSON-RPC id; numbers decode as float64.
func callKey(id interface{}) string {
	return fmt.Sprintf("%T:%v", id, id)
}

func (s *Server) write(v interface{}) {
	if v == nil {
		return
	}
	if resp, ok := v.(*MCPResponse); ok && resp == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.encoder.Encode(v); err != nil {
		s.logger.Warn("failed to encode message", "error", err)
	}
}

func (s *Server) notify(method string, params interface{}) {
	s.write(&MCPNotification{JSONRPC: "2.0", Method: method, Params: params})
}
