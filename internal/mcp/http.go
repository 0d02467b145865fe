package mcp

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"call-assistant/internal/jsonrpc"
	"call-assistant/pkg/logger"
)

const maxRequestBytes = 1 << 20

// HTTPHandler serves single JSON-RPC requests posted to the MCP endpoint.
// Protocol errors still answer 200 with a JSON-RPC error body; notifications answer 202.
func (s *Server) HTTPHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		var req jsonrpc.Request
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusOK, jsonrpc.NewError(nil, jsonrpc.CodeParseError, "Parse error", nil))
			return
		}

		l := logger.FromGin(c)
		resp := s.Handle(c.Request.Context(), req)
		if resp == nil {
			c.Status(http.StatusAccepted)
			return
		}
		if resp.Error != nil {
			l.Info("mcp request failed", "method", req.Method, "code", resp.Error.Code, "message", resp.Error.Message)
		}
		c.JSON(http.StatusOK, resp)
	}
}
