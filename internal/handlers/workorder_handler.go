package handlers

import (
	"net/http"

	"fleetfix/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WorkOrderHandler 工单处理器
type WorkOrderHandler struct {
	workOrderService *services.WorkOrderService
	logger           *logrus.Logger
}

// NewWorkOrderHandler 创建工单处理器
func NewWorkOrderHandler(workOrderService *services.WorkOrderService, logger *logrus.Logger) *WorkOrderHandler {
	return &WorkOrderHandler{
		workOrderService: workOrderService,
		logger:           logger,
	}
}

// CreateWorkOrder 创建工单
// @Summary 创建工单
// @Description 创建新的维修工单
// @Tags 工单
// @Accept json
// @Produce json
// @Param work_order body services.WorkOrderCreateRequest true "工单信息"
// @Success 201 {object} models.WorkOrder
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/work-orders [post]
func (h *WorkOrderHandler) CreateWorkOrder(c *gin.Context) {
	var req services.WorkOrderCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	workOrder, err := h.workOrderService.CreateWorkOrder(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to create work order: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to create work order",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, workOrder)
}

// GetWorkOrder 获取工单详情
// @Summary 获取工单详情
// @Description 根据ID获取工单的详细信息
// @Tags 工单
// @Produce json
// @Param id path int true "工单ID"
// @Success 200 {object} models.WorkOrder
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/work-orders/{id} [get]
func (h *WorkOrderHandler) GetWorkOrder(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid work order ID",
			Message: "ID must be a valid number",
		})
		return
	}

	workOrder, err := h.workOrderService.GetWorkOrderByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Work order not found",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, workOrder)
}

// ListWorkOrders 工单列表
// @Summary 工单列表
// @Description 分页查询工单，支持状态/优先级/分类过滤与搜索
// @Tags 工单
// @Produce json
// @Success 200 {object} PaginatedResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/work-orders [get]
func (h *WorkOrderHandler) ListWorkOrders(c *gin.Context) {
	var req services.WorkOrderListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid query parameters",
			Message: err.Error(),
		})
		return
	}

	workOrders, total, err := h.workOrderService.ListWorkOrders(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to list work orders: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list work orders",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     workOrders,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Pages:    pageCount(total, req.PageSize),
	})
}

// UpdateWorkOrder 更新工单
// @Summary 更新工单
// @Description 更新工单字段；状态/优先级/资产/位置变化会触发自动化规则
// @Tags 工单
// @Accept json
// @Produce json
// @Param id path int true "工单ID"
// @Param work_order body services.WorkOrderUpdateRequest true "更新信息"
// @Success 200 {object} models.WorkOrder
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/work-orders/{id} [put]
func (h *WorkOrderHandler) UpdateWorkOrder(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid work order ID",
			Message: "ID must be a valid number",
		})
		return
	}

	var req services.WorkOrderUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	workOrder, err := h.workOrderService.UpdateWorkOrder(c.Request.Context(), id, &req, currentUserID(c))
	if err != nil {
		h.logger.Errorf("Failed to update work order %d: %v", id, err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to update work order",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, workOrder)
}

// DeleteWorkOrder 删除工单
// @Summary 删除工单
// @Description 软删除工单；历史活动与执行日志保留
// @Tags 工单
// @Produce json
// @Param id path int true "工单ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/work-orders/{id} [delete]
func (h *WorkOrderHandler) DeleteWorkOrder(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid work order ID",
			Message: "ID must be a valid number",
		})
		return
	}

	if err := h.workOrderService.DeleteWorkOrder(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Failed to delete work order",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Work order deleted"})
}

// AssignTechnician 指派技师
func (h *WorkOrderHandler) AssignTechnician(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid work order ID",
			Message: "ID must be a valid number",
		})
		return
	}

	var req struct {
		TechnicianID uint `json:"technician_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	workOrder, err := h.workOrderService.AssignTechnician(c.Request.Context(), id, req.TechnicianID, currentUserID(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to assign technician",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, workOrder)
}

// AddActivity 添加工单活动记录
func (h *WorkOrderHandler) AddActivity(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid work order ID",
			Message: "ID must be a valid number",
		})
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	activity, err := h.workOrderService.AddActivity(c.Request.Context(), id, currentUserID(c), req.Text)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to add activity",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, activity)
}

// GetSLAStatus 获取工单的实时SLA状态
// @Summary 获取工单SLA状态
// @Description 按当前时间实时计算，不落库
// @Tags 工单
// @Produce json
// @Param id path int true "工单ID"
// @Success 200 {object} services.SLAStatus
// @Failure 404 {object} ErrorResponse
// @Router /api/work-orders/{id}/sla [get]
func (h *WorkOrderHandler) GetSLAStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid work order ID",
			Message: "ID must be a valid number",
		})
		return
	}

	status, err := h.workOrderService.GetSLAStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Work order not found",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// currentUserID 从认证中间件取当前用户ID（未认证路由返回0）
func currentUserID(c *gin.Context) uint {
	if v, exists := c.Get("user_id"); exists {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}

// RegisterWorkOrderRoutes 注册工单路由
func RegisterWorkOrderRoutes(r *gin.RouterGroup, handler *WorkOrderHandler) {
	orders := r.Group("/work-orders")
	{
		orders.POST("", handler.CreateWorkOrder)
		orders.GET("", handler.ListWorkOrders)
		orders.GET("/:id", handler.GetWorkOrder)
		orders.PUT("/:id", handler.UpdateWorkOrder)
		orders.DELETE("/:id", handler.DeleteWorkOrder)
		orders.POST("/:id/assign", handler.AssignTechnician)
		orders.POST("/:id/activities", handler.AddActivity)
		orders.GET("/:id/sla", handler.GetSLAStatus)
	}
}
