package main

import (
	"net/http"
	"time"

	"call-assistant/internal/audit"
	"call-assistant/internal/auth"
	"call-assistant/internal/telephony"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, app *application) {
	// public
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   app.cfg.App.ServiceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Provider webhooks (public).
	// NOTE: This endpoint should be protected by Twilio signature validation in production.
	{
		h := telephony.StatusWebhookHandler{
			Calls:    app.calls,
			Events:   app.events,
			Releaser: app.releaser,
		}
		r.POST("/webhook/call-status", h.HandleCallStatus)
	}

	// MCP envelope over HTTP. Media streams cannot send bearer headers, so only POST is gated.
	var mcpMW []gin.HandlerFunc
	if app.cfg.Auth.RequireMCPAuth {
		mcpMW = append(mcpMW, auth.RequireAccessToken(app.validator))
	}
	r.POST("/mcp", append(mcpMW, app.server.HTTPHandler())...)

	// Operators read recent tool invocations; always token-gated.
	r.GET("/audit/recent", auth.RequireAccessToken(app.validator), audit.RecentHandler{Service: app.audit}.HandleRecent)

	// Socket endpoint for observers and media streams.
	r.GET("/mcp", gin.WrapH(app.registry))
}
