package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"call-assistant/internal/apperr"
	"call-assistant/internal/jsonrpc"
)

const ProtocolVersion = "2024-11-05"

// MethodFunc serves a non-tool envelope method.
type MethodFunc func(ctx context.Context, params json.RawMessage) (any, error)

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Server answers JSON-RPC requests: initialize, ping, tools/list, tools/call, tools/<name> and any
// extra methods registered with HandleMethod.
type Server struct {
	tools *Dispatcher
	info  ServerInfo
	log   *slog.Logger

	mu      sync.RWMutex
	methods map[string]MethodFunc
}

func NewServer(d *Dispatcher, info ServerInfo, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{tools: d, info: info, log: log.With("component", "mcp"), methods: make(map[string]MethodFunc)}
}

func (s *Server) HandleMethod(method string, fn MethodFunc) {
	s.mu.Lock()
	s.methods[method] = fn
	s.mu.Unlock()
}

// Methods lists every method name the server answers, tools/<name> aliases included.
func (s *Server) Methods() []string {
	out := []string{"initialize", "notifications/initialized", "ping", "tools/list", "tools/call"}
	for _, t := range s.tools.Tools() {
		out = append(out, "tools/"+t.Name)
	}
	s.mu.RLock()
	for m := range s.methods {
		out = append(out, m)
	}
	s.mu.RUnlock()
	return out
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the tools/call result shape.
type CallResult struct {
	Content           []textContent `json:"content"`
	StructuredContent any           `json:"structuredContent,omitempty"`
	IsError           bool          `json:"isError"`
}

// Handle serves one request. Notifications get a nil response.
func (s *Server) Handle(ctx context.Context, req jsonrpc.Request) *jsonrpc.Response {
	if req.JSONRPC != jsonrpc.Version || req.Method == "" {
		resp := jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidRequest, "Invalid Request", nil)
		return &resp
	}
	result, err := s.call(ctx, req.Method, req.Params)
	if req.IsNotification() {
		if err != nil {
			s.log.Debug("notification failed", "method", req.Method, "err", err)
		}
		return nil
	}
	if err != nil {
		resp := ErrorResponse(req.ID, err)
		return &resp
	}
	resp := jsonrpc.NewResult(req.ID, result)
	return &resp
}

func (s *Server) call(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "initialize":
		return map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{"listChanged": false}},
			"serverInfo":      s.info,
		}, nil
	case "notifications/initialized":
		return nil, nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return map[string]any{"tools": s.tools.Tools()}, nil
	case "tools/call":
		var p callParams
		if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
			return nil, apperr.New(apperr.KindInvalidArguments, "tools/call requires a tool name")
		}
		out, err := s.tools.Invoke(ctx, p.Name, p.Arguments)
		if isToolFailure(err) {
			return CallResult{Content: []textContent{{Type: "text", Text: err.Error()}}, IsError: true}, nil
		}
		if err != nil {
			return nil, err
		}
		return toCallResult(out)
	}

	if name, ok := strings.CutPrefix(method, "tools/"); ok {
		return s.tools.Invoke(ctx, name, params)
	}

	s.mu.RLock()
	fn, ok := s.methods[method]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.KindUnknownTool, "Method not found: %s", method)
	}
	return fn(ctx, params)
}

// isToolFailure reports a handler that ran and failed. Unknown tools and bad arguments stay JSON-RPC errors.
func isToolFailure(err error) bool {
	return apperr.KindOf(err) == apperr.KindToolExecutionFailed && apperr.CauseOf(err) != apperr.KindInvalidArguments
}

func toCallResult(out any) (CallResult, error) {
	text, err := json.Marshal(out)
	if err != nil {
		return CallResult{}, apperr.Wrap(apperr.KindInternal, err, "encode tool result")
	}
	return CallResult{
		Content:           []textContent{{Type: "text", Text: string(text)}},
		StructuredContent: out,
	}, nil
}

// ErrorData travels in the JSON-RPC error's data member.
type ErrorData struct {
	Kind  apperr.Kind `json:"kind"`
	Cause apperr.Kind `json:"cause,omitempty"`
}

// ErrorResponse maps err onto a JSON-RPC error. Messages are the agent-facing text only.
func ErrorResponse(id json.RawMessage, err error) jsonrpc.Response {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return jsonrpc.NewError(id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	}
	kind, cause := apperr.KindOf(err), apperr.CauseOf(err)
	code := jsonrpc.CodeInternalError
	switch {
	case kind == apperr.KindUnknownTool:
		code = jsonrpc.CodeMethodNotFound
	case kind == apperr.KindInvalidArguments, cause == apperr.KindInvalidArguments:
		code = jsonrpc.CodeInvalidParams
	}
	msg := "Internal error"
	var e *apperr.Error
	if errors.As(err, &e) {
		msg = e.Error()
	}
	return jsonrpc.NewError(id, code, msg, ErrorData{Kind: kind, Cause: cause})
}
