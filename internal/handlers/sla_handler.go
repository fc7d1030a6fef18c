package handlers

import (
	"net/http"
	"time"

	"fleetfix/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SLAHandler SLA状态与升级扫描处理器
type SLAHandler struct {
	snapshots *services.SnapshotProvider
	sweeper   *services.EscalationSweeper
	logger    *logrus.Logger
}

// NewSLAHandler 创建SLA处理器
func NewSLAHandler(snapshots *services.SnapshotProvider, sweeper *services.EscalationSweeper, logger *logrus.Logger) *SLAHandler {
	return &SLAHandler{
		snapshots: snapshots,
		sweeper:   sweeper,
		logger:    logger,
	}
}

// ListActiveSLA 活跃SLA看板
// @Summary 活跃SLA看板
// @Description 列出所有有SLA且未终结的工单及其实时SLA状态
// @Tags SLA
// @Produce json
// @Success 200 {array} services.SLAStatus
// @Failure 500 {object} ErrorResponse
// @Router /api/sla/active [get]
func (h *SLAHandler) ListActiveSLA(c *gin.Context) {
	snaps, err := h.snapshots.ListActiveSLAEntities(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to list active SLA entities: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list active SLA entities",
			Message: err.Error(),
		})
		return
	}

	now := time.Now()
	statuses := make([]services.SLAStatus, 0, len(snaps))
	for _, snap := range snaps {
		statuses = append(statuses, services.ComputeSLAStatus(snap, now))
	}

	c.JSON(http.StatusOK, statuses)
}

// TriggerSweep 手动触发一次升级扫描
// @Summary 手动触发升级扫描
// @Description 与定时扫描互斥；已有扫描在跑时立即返回 skipped
// @Tags SLA
// @Produce json
// @Success 200 {object} services.SweepResult
// @Failure 500 {object} ErrorResponse
// @Router /api/sla/sweep [post]
func (h *SLAHandler) TriggerSweep(c *gin.Context) {
	result, err := h.sweeper.RunSweep(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Manual sweep failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Sweep failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// RegisterSLARoutes 注册SLA路由
func RegisterSLARoutes(r *gin.RouterGroup, handler *SLAHandler) {
	sla := r.Group("/sla")
	{
		sla.GET("/active", handler.ListActiveSLA)
		sla.POST("/sweep", handler.TriggerSweep)
	}
}
