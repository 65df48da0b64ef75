package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type OutboxStats interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type AdminHandler struct {
	outbox OutboxStats
}

func NewAdminHandler(outbox OutboxStats) *AdminHandler {
	return &AdminHandler{outbox: outbox}
}

func (h *AdminHandler) SystemHealth(c *gin.Context) {
	if h.outbox == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	counts, err := h.outbox.CountByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "outbox_stats_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "outbox": counts})
}
