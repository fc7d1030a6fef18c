package handlers

import (
	"net/http"
	"strconv"

	"fleetfix/internal/services"

	"github.com/gin-gonic/gin"
)

// NotificationHandler 通知查询处理器
type NotificationHandler struct {
	service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// ListNotifications 查询通知列表
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	var recipientID *uint
	if v := c.Query("recipient_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			rid := uint(id)
			recipientID = &rid
		}
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	notifications, err := h.service.ListNotifications(c.Request.Context(), recipientID, c.Query("status"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list notifications", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// GetDeliveryStats 查询 webhook 投递熔断状态
func (h *NotificationHandler) GetDeliveryStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.BreakerStats())
}

// RegisterNotificationRoutes 注册通知路由
func RegisterNotificationRoutes(r *gin.RouterGroup, handler *NotificationHandler) {
	r.GET("/notifications", handler.ListNotifications)
	r.GET("/notifications/delivery-stats", handler.GetDeliveryStats)
}
