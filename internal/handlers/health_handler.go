package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"fleetfix/internal/config"
	"fleetfix/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	config *config.Config
	db     *gorm.DB
	logger *logrus.Logger
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(cfg *config.Config, db *gorm.DB) *HealthHandler {
	return &HealthHandler{
		config: cfg,
		db:     db,
		logger: logrus.StandardLogger(),
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

// ServiceInfo 服务信息
type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	Uptime    time.Duration `json:"uptime"`
	Version   string        `json:"version"`
	GoVersion string        `json:"go_version"`
}

var startTime = time.Now()

// Health 健康检查端点
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   "1.0.0",
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(startTime),
			Version:   "1.0.0",
			GoVersion: runtime.Version(),
		},
	}

	allHealthy := true
	h.checkDatabase(ctx, &response, &allHealthy)

	// 自动化引擎计数快照
	firings, byStatus, sweeps, checked, escalated := metrics.AutomationSnapshot()
	response.Services["automation"] = ServiceInfo{
		Status: "healthy",
		Details: map[string]interface{}{
			"firings_total":         firings,
			"firings_by_status":     byStatus,
			"sweeps_run":            sweeps,
			"entities_checked":      checked,
			"escalations_triggered": escalated,
		},
	}

	if !allHealthy {
		response.Status = "degraded"
	}

	// 部分服务不可用时仍返回 200，但状态为 degraded
	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// Ready 就绪检查端点
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	ready := true
	services := make(map[string]string)

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			ready = false
			services["database"] = "unavailable: " + err.Error()
		} else {
			services["database"] = "ready"
		}
	} else {
		ready = false
		services["database"] = "not initialized"
	}

	statusCode := http.StatusOK
	status := "ready"
	if !ready {
		statusCode = http.StatusServiceUnavailable
		status = "not ready"
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"services":  services,
		"timestamp": time.Now(),
	})
}

// checkDatabase 检查数据库状态
func (h *HealthHandler) checkDatabase(ctx context.Context, response *HealthResponse, allHealthy *bool) {
	start := time.Now()

	dbHealthy := true
	var dbError string

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			dbHealthy = false
			dbError = err.Error()
		}
	} else {
		dbHealthy = false
		dbError = "database connection not initialized"
	}

	serviceInfo := ServiceInfo{
		Latency: time.Since(start).String(),
		Details: map[string]interface{}{
			"driver": "postgresql",
			"host":   h.config.Database.Host,
			"port":   h.config.Database.Port,
		},
	}

	if dbHealthy {
		serviceInfo.Status = "healthy"
	} else {
		serviceInfo.Status = "unhealthy"
		serviceInfo.Error = dbError
		*allHealthy = false
	}

	response.Services["database"] = serviceInfo
}
