package mcp

import (
	"context"

	"call-assistant/internal/stream"
)

// MethodRouter is the part of the socket registry that routes requests by method.
type MethodRouter interface {
	RegisterMethodHandler(method string, h stream.MethodHandler)
}

// Bind answers every server method on the socket transport. Call it after all tools and extra
// methods are registered.
func (s *Server) Bind(r MethodRouter) {
	for _, m := range s.Methods() {
		r.RegisterMethodHandler(m, s.serveSocket)
	}
}

func (s *Server) serveSocket(ctx context.Context, conn *stream.Conn, req stream.RPCRequest) {
	resp := s.Handle(ctx, req.Request)
	if resp == nil {
		return
	}
	if err := conn.Send(resp); err != nil {
		s.log.Warn("socket reply failed", "conn_id", conn.ID, "method", req.Method, "err", err)
	}
}
