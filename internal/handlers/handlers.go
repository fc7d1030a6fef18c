package handlers

import (
	"net/http"

	"fleetfix/internal/services"

	"github.com/gin-gonic/gin"
)

// RealtimeHandler 实时推送处理器（规则触发、通知、扫描结果）
type RealtimeHandler struct {
	hub *services.RealtimeHub
}

func NewRealtimeHandler(hub *services.RealtimeHub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

func (h *RealtimeHandler) HandleWebSocket(c *gin.Context) {
	h.hub.HandleWebSocket(c)
}

func (h *RealtimeHandler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"connected_clients": h.hub.GetClientCount(),
		"status":            "running",
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}
