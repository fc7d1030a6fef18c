package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"fleetfix/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AutomationHandler 管理自动化规则与执行日志
type AutomationHandler struct {
	service *services.AutomationService
	logger  *logrus.Logger
}

func NewAutomationHandler(service *services.AutomationService, logger *logrus.Logger) *AutomationHandler {
	return &AutomationHandler{service: service, logger: logger}
}

// ListRules 获取规则列表
func (h *AutomationHandler) ListRules(c *gin.Context) {
	ruleType := c.Query("rule_type")
	activeOnly := c.Query("active") == "true"

	rules, err := h.service.ListRules(c.Request.Context(), ruleType, activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list rules", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// GetRule 获取规则详情
func (h *AutomationHandler) GetRule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "ID must be a valid number"})
		return
	}

	rule, err := h.service.GetRule(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Rule not found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateRule 创建规则
// 条件与动作在保存时校验，坏配置在这里被拒绝而不是在触发时。
func (h *AutomationHandler) CreateRule(c *gin.Context) {
	var req services.AutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	rule, err := h.service.CreateRule(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create rule", Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// UpdateRule 更新规则
func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "ID must be a valid number"})
		return
	}

	var req services.AutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	rule, err := h.service.UpdateRule(c.Request.Context(), id, &req)
	if err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update rule", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeleteRule 删除规则
func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "ID must be a valid number"})
		return
	}

	if err := h.service.DeleteRule(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete rule", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// SetRuleActive 启用/停用规则
func (h *AutomationHandler) SetRuleActive(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "ID must be a valid number"})
		return
	}

	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.service.SetRuleActive(c.Request.Context(), id, *req.Active); err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update rule", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "updated"})
}

// ListExecutionLogs 获取执行日志
func (h *AutomationHandler) ListExecutionLogs(c *gin.Context) {
	req := &services.ExecutionLogListRequest{}
	if v := c.Query("status"); v != "" {
		req.Status = strings.Split(v, ",")
	}
	if v := c.Query("dismissed"); v != "" {
		dismissed := v == "true"
		req.Dismissed = &dismissed
	}
	req.Page, req.PageSize = parsePagination(c)
	if v := c.Query("rule_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			ruleID := uint(id)
			req.RuleID = &ruleID
		}
	}
	if v := c.Query("work_order_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			workOrderID := uint(id)
			req.WorkOrderID = &workOrderID
		}
	}

	logs, total, err := h.service.ListExecutionLogs(c.Request.Context(), req)
	if err != nil {
		h.logger.Errorf("Failed to list execution logs: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list execution logs", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     logs,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Pages:    pageCount(total, req.PageSize),
	})
}

// DismissLog 忽略一条执行日志（解除升级去重）
func (h *AutomationHandler) DismissLog(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "ID must be a valid number"})
		return
	}

	if err := h.service.DismissLog(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to dismiss log", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "dismissed"})
}

// RetryFiring 手动重放一次规则执行
func (h *AutomationHandler) RetryFiring(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "ID must be a valid number"})
		return
	}

	outcome, err := h.service.RetryFiring(c.Request.Context(), id)
	if err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to retry firing", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// RegisterAutomationRoutes 注册路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	auto := r.Group("/automation")
	{
		auto.GET("/rules", handler.ListRules)
		auto.POST("/rules", handler.CreateRule)
		auto.GET("/rules/:id", handler.GetRule)
		auto.PUT("/rules/:id", handler.UpdateRule)
		auto.DELETE("/rules/:id", handler.DeleteRule)
		auto.PUT("/rules/:id/active", handler.SetRuleActive)

		auto.GET("/logs", handler.ListExecutionLogs)
		auto.POST("/logs/:id/dismiss", handler.DismissLog)
		auto.POST("/logs/:id/retry", handler.RetryFiring)
	}
}
