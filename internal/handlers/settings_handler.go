package handlers

import (
	"net/http"

	"fleetfix/internal/services"

	"github.com/gin-gonic/gin"
)

// SettingsHandler 运行时设置处理器
type SettingsHandler struct {
	service *services.SettingsService
}

func NewSettingsHandler(service *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// GetSetting 读取单个设置
func (h *SettingsHandler) GetSetting(c *gin.Context) {
	key := c.Param("key")
	value, err := h.service.Get(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Setting not found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// SetSetting 写入设置
// sla_monitoring_enabled 置为 false 时，定时升级扫描在下一轮开始前直接跳过。
func (h *SettingsHandler) SetSetting(c *gin.Context) {
	var req struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.service.Set(c.Request.Context(), c.Param("key"), req.Value); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to save setting", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "saved"})
}

// RegisterSettingsRoutes 注册设置路由
func RegisterSettingsRoutes(r *gin.RouterGroup, handler *SettingsHandler) {
	settings := r.Group("/settings")
	{
		settings.GET("/:key", handler.GetSetting)
		settings.PUT("/:key", handler.SetSetting)
	}
}
