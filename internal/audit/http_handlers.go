package audit

import (
	"net/http"
	"strconv"

	"call-assistant/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// RecentHandler serves the newest audit events to operators. Mount it behind token auth.
type RecentHandler struct {
	Service *Service
}

func (h RecentHandler) HandleRecent(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecentLimit)
	}

	events, err := h.Service.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("audit read failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
