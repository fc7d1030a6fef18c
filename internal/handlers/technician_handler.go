package handlers

import (
	"net/http"
	"strings"

	"fleetfix/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TechnicianHandler 技师管理处理器
type TechnicianHandler struct {
	service *services.TechnicianService
	logger  *logrus.Logger
}

func NewTechnicianHandler(service *services.TechnicianService, logger *logrus.Logger) *TechnicianHandler {
	return &TechnicianHandler{service: service, logger: logger}
}

// CreateTechnician 创建技师
func (h *TechnicianHandler) CreateTechnician(c *gin.Context) {
	var req services.TechnicianCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	tech, err := h.service.CreateTechnician(c.Request.Context(), &req)
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "not found") {
			status = http.StatusBadRequest
		}
		c.JSON(status, ErrorResponse{Error: "Failed to create technician", Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, tech)
}

// GetTechnician 获取技师详情
func (h *TechnicianHandler) GetTechnician(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "ID must be a valid number"})
		return
	}

	tech, err := h.service.GetTechnician(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Technician not found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, tech)
}

// ListTechnicians 技师列表
func (h *TechnicianHandler) ListTechnicians(c *gin.Context) {
	techs, err := h.service.ListTechnicians(c.Request.Context(), c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list technicians", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, techs)
}

// UpdateTechnician 更新技师
func (h *TechnicianHandler) UpdateTechnician(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "ID must be a valid number"})
		return
	}

	var req services.TechnicianUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	tech, err := h.service.UpdateTechnician(c.Request.Context(), id, &req)
	if err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update technician", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, tech)
}

// RegisterTechnicianRoutes 注册技师路由
func RegisterTechnicianRoutes(r *gin.RouterGroup, handler *TechnicianHandler) {
	techs := r.Group("/technicians")
	{
		techs.POST("", handler.CreateTechnician)
		techs.GET("", handler.ListTechnicians)
		techs.GET("/:id", handler.GetTechnician)
		techs.PUT("/:id", handler.UpdateTechnician)
	}
}
