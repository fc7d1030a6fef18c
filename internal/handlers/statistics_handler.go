package handlers

import (
	"net/http"
	"strconv"

	"fleetfix/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StatisticsHandler 统计数据处理器
type StatisticsHandler struct {
	service *services.StatisticsService
	logger  *logrus.Logger
}

func NewStatisticsHandler(service *services.StatisticsService, logger *logrus.Logger) *StatisticsHandler {
	return &StatisticsHandler{service: service, logger: logger}
}

// GetDashboard 仪表板统计
func (h *StatisticsHandler) GetDashboard(c *gin.Context) {
	stats, err := h.service.GetDashboardStats(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to get dashboard stats: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get dashboard stats",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetDaily 近N天每日统计
func (h *StatisticsHandler) GetDaily(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	stats, err := h.service.GetTimeRangeStats(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get daily stats",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetCategories 分类统计
func (h *StatisticsHandler) GetCategories(c *gin.Context) {
	stats, err := h.service.GetCategoryStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get category stats",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetPriorities 优先级统计
func (h *StatisticsHandler) GetPriorities(c *gin.Context) {
	stats, err := h.service.GetPriorityStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get priority stats",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RegisterStatisticsRoutes 注册统计路由
func RegisterStatisticsRoutes(r *gin.RouterGroup, handler *StatisticsHandler) {
	stats := r.Group("/statistics")
	{
		stats.GET("/dashboard", handler.GetDashboard)
		stats.GET("/daily", handler.GetDaily)
		stats.GET("/categories", handler.GetCategories)
		stats.GET("/priorities", handler.GetPriorities)
	}
}
