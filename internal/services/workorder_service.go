package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fleetfix/internal/models"
	"fleetfix/pkg/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Default SLA windows per priority, applied when a work order is created
// without an explicit deadline.
var defaultSLAWindows = map[string]time.Duration{
	"Urgent": 4 * time.Hour,
	"High":   8 * time.Hour,
	"Medium": 24 * time.Hour,
	"Low":    72 * time.Hour,
}

// WorkOrderService 工单管理服务
// Every state change feeds the automation engine synchronously: one event,
// one trigger classification, one selector pass against the pre-change
// snapshot's successor state.
type WorkOrderService struct {
	db         *gorm.DB
	logger     *logrus.Logger
	automation *AutomationService
}

func NewWorkOrderService(db *gorm.DB, logger *logrus.Logger) *WorkOrderService {
	if logger == nil {
		logger = logrus.New()
	}
	return &WorkOrderService{db: db, logger: logger}
}

// SetAutomationService 注入自动化服务
func (s *WorkOrderService) SetAutomationService(automation *AutomationService) {
	s.automation = automation
}

// WorkOrderCreateRequest 创建工单请求
type WorkOrderCreateRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory"`
	LocationID  *uint      `json:"location_id"`
	AssetID     *uint      `json:"asset_id"`
	SLADue      *time.Time `json:"sla_due"`
	SLAHours    int        `json:"sla_hours"` // overrides the priority default when > 0
}

// WorkOrderUpdateRequest 更新工单请求
type WorkOrderUpdateRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Priority    *string    `json:"priority"`
	Category    *string    `json:"category"`
	Subcategory *string    `json:"subcategory"`
	Status      *string    `json:"status"`
	LocationID  *uint      `json:"location_id"`
	AssetID     *uint      `json:"asset_id"`
	SLADue      *time.Time `json:"sla_due"`
}

// WorkOrderListRequest 工单列表请求
type WorkOrderListRequest struct {
	Page      int      `form:"page,default=1"`
	PageSize  int      `form:"page_size,default=20"`
	Status    []string `form:"status"`
	Priority  []string `form:"priority"`
	Category  []string `form:"category"`
	TechID    *uint    `form:"tech_id"`
	AssetID   *uint    `form:"asset_id"`
	Search    string   `form:"search"`
	SortBy    string   `form:"sort_by,default=created_at"`
	SortOrder string   `form:"sort_order,default=desc"`
}

// workOrderSortColumns 列表排序的合法列
var workOrderSortColumns = map[string]bool{
	"id":         true,
	"number":     true,
	"created_at": true,
	"updated_at": true,
	"priority":   true,
	"status":     true,
	"sla_due":    true,
}

// CreateWorkOrder 创建工单
func (s *WorkOrderService) CreateWorkOrder(ctx context.Context, req *WorkOrderCreateRequest) (*models.WorkOrder, error) {
	if req.Priority == "" {
		req.Priority = "Medium"
	}
	if !isValidPriority(req.Priority) {
		return nil, fmt.Errorf("invalid priority: %s", req.Priority)
	}

	wo := &models.WorkOrder{
		Number:      utils.NewWorkOrderNumber(),
		Title:       req.Title,
		Description: req.Description,
		Status:      models.StatusNew,
		Priority:    req.Priority,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		LocationID:  req.LocationID,
		AssetID:     req.AssetID,
	}

	switch {
	case req.SLADue != nil:
		wo.SLADue = req.SLADue
	case req.SLAHours > 0:
		due := time.Now().Add(time.Duration(req.SLAHours) * time.Hour)
		wo.SLADue = &due
	default:
		if window, ok := defaultSLAWindows[req.Priority]; ok {
			due := time.Now().Add(window)
			wo.SLADue = &due
		}
	}

	if err := s.db.WithContext(ctx).Create(wo).Error; err != nil {
		return nil, fmt.Errorf("failed to create work order: %w", err)
	}

	s.appendActivity(ctx, wo.ID, 0, "Work order created", "system")
	s.logger.Infof("Created work order %s (priority=%s, category=%s)", wo.Number, wo.Priority, wo.Category)

	s.emitEvent(ctx, AutomationEvent{
		WorkOrderID: wo.ID,
		Kind:        EventCreated,
		OccurredAt:  time.Now(),
	})

	return s.GetWorkOrderByID(ctx, wo.ID)
}

// GetWorkOrderByID 根据ID获取工单
func (s *WorkOrderService) GetWorkOrderByID(ctx context.Context, id uint) (*models.WorkOrder, error) {
	var wo models.WorkOrder
	err := s.db.WithContext(ctx).
		Preload("AssignedTech").
		Preload("Location").
		Preload("Asset").
		Preload("Activities", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&wo, id).Error
	if err != nil {
		return nil, fmt.Errorf("work order not found: %w", err)
	}
	return &wo, nil
}

// ListWorkOrders 工单列表
func (s *WorkOrderService) ListWorkOrders(ctx context.Context, req *WorkOrderListRequest) ([]models.WorkOrder, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.WorkOrder{})

	if len(req.Status) > 0 {
		query = query.Where("status IN ?", req.Status)
	}
	if len(req.Priority) > 0 {
		query = query.Where("priority IN ?", req.Priority)
	}
	if len(req.Category) > 0 {
		query = query.Where("category IN ?", req.Category)
	}
	if req.TechID != nil {
		query = query.Where("assigned_tech_id = ?", *req.TechID)
	}
	if req.AssetID != nil {
		query = query.Where("asset_id = ?", *req.AssetID)
	}
	if req.Search != "" {
		like := "%" + req.Search + "%"
		query = query.Where("title LIKE ? OR description LIKE ? OR number LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count work orders: %w", err)
	}

	// sort_by 只接受白名单列，避免把用户输入拼进 ORDER BY
	sortField := req.SortBy
	if !workOrderSortColumns[sortField] {
		sortField = "created_at"
	}
	sortOrder := req.SortOrder
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}
	query = query.Order(fmt.Sprintf("%s %s", sortField, sortOrder))

	if req.PageSize > 0 {
		offset := (req.Page - 1) * req.PageSize
		query = query.Offset(offset).Limit(req.PageSize)
	}

	var orders []models.WorkOrder
	if err := query.Preload("AssignedTech").Preload("Asset").Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list work orders: %w", err)
	}
	return orders, total, nil
}

// UpdateWorkOrder 更新工单，并向自动化引擎发布对应事件
func (s *WorkOrderService) UpdateWorkOrder(ctx context.Context, id uint, req *WorkOrderUpdateRequest, userID uint) (*models.WorkOrder, error) {
	old, err := s.GetWorkOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	var events []AutomationEvent
	now := time.Now()

	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.Subcategory != nil {
		updates["subcategory"] = *req.Subcategory
	}
	if req.SLADue != nil {
		updates["sla_due"] = *req.SLADue
	}

	if req.Priority != nil && *req.Priority != old.Priority {
		if !isValidPriority(*req.Priority) {
			return nil, fmt.Errorf("invalid priority: %s", *req.Priority)
		}
		updates["priority"] = *req.Priority
		events = append(events, AutomationEvent{
			WorkOrderID: id,
			Kind:        EventPriorityChanged,
			Before:      old.Priority,
			After:       *req.Priority,
			OccurredAt:  now,
		})
	}

	if req.Status != nil && *req.Status != old.Status {
		if !isValidStatus(*req.Status) {
			return nil, fmt.Errorf("invalid status: %s", *req.Status)
		}
		applyStatusTransition(updates, old, *req.Status, now)
		events = append(events, AutomationEvent{
			WorkOrderID: id,
			Kind:        EventStatusChanged,
			Before:      old.Status,
			After:       *req.Status,
			OccurredAt:  now,
		})
		s.appendActivity(ctx, id, userID,
			fmt.Sprintf("Status changed from %s to %s", old.Status, *req.Status), "system")
	}

	if req.LocationID != nil && !uintPtrEqual(req.LocationID, old.LocationID) {
		updates["location_id"] = *req.LocationID
		events = append(events, AutomationEvent{
			WorkOrderID: id,
			Kind:        EventAssignedToLocation,
			After:       strconv.FormatUint(uint64(*req.LocationID), 10),
			OccurredAt:  now,
		})
	}

	if req.AssetID != nil && !uintPtrEqual(req.AssetID, old.AssetID) {
		updates["asset_id"] = *req.AssetID
		events = append(events, AutomationEvent{
			WorkOrderID: id,
			Kind:        EventAssignedToAsset,
			After:       strconv.FormatUint(uint64(*req.AssetID), 10),
			OccurredAt:  now,
		})
	}

	if len(updates) > 0 {
		updates["updated_at"] = now
		if err := s.db.WithContext(ctx).Model(&models.WorkOrder{}).
			Where("id = ?", id).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update work order: %w", err)
		}
	}

	for _, evt := range events {
		s.emitEvent(ctx, evt)
	}

	return s.GetWorkOrderByID(ctx, id)
}

// AssignTechnician 指派技师
func (s *WorkOrderService) AssignTechnician(ctx context.Context, id uint, techID uint, userID uint) (*models.WorkOrder, error) {
	old, err := s.GetWorkOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var tech models.Technician
	if err := s.db.WithContext(ctx).First(&tech, techID).Error; err != nil {
		return nil, fmt.Errorf("technician not found: %w", err)
	}

	updates := map[string]interface{}{
		"assigned_tech_id": techID,
		"updated_at":       time.Now(),
	}
	statusChanged := old.Status == models.StatusNew
	if statusChanged {
		updates["status"] = models.StatusAssigned
	}
	if err := s.db.WithContext(ctx).Model(&models.WorkOrder{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to assign technician: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Technician{}).
		Where("id = ?", techID).
		UpdateColumn("current_load", gorm.Expr("current_load + 1")).Error; err != nil {
		s.logger.Warnf("failed to bump technician %d load: %v", techID, err)
	}

	s.appendActivity(ctx, id, userID, fmt.Sprintf("Assigned to technician %d", techID), "system")

	now := time.Now()
	s.emitEvent(ctx, AutomationEvent{
		WorkOrderID: id,
		Kind:        EventAssignedToUser,
		After:       strconv.FormatUint(uint64(techID), 10),
		OccurredAt:  now,
	})
	if statusChanged {
		s.emitEvent(ctx, AutomationEvent{
			WorkOrderID: id,
			Kind:        EventStatusChanged,
			Before:      models.StatusNew,
			After:       models.StatusAssigned,
			OccurredAt:  now,
		})
	}

	return s.GetWorkOrderByID(ctx, id)
}

// AddActivity 追加工单活动
func (s *WorkOrderService) AddActivity(ctx context.Context, id uint, userID uint, text string) (*models.WorkOrderActivity, error) {
	if strings.TrimSpace(text) == "" || !utils.ValidateActivityText(text) {
		return nil, fmt.Errorf("invalid activity text")
	}
	if _, err := s.GetWorkOrderByID(ctx, id); err != nil {
		return nil, err
	}
	entry := &models.WorkOrderActivity{
		WorkOrderID: id,
		UserID:      userID,
		Text:        text,
		Kind:        "comment",
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to add activity: %w", err)
	}
	return entry, nil
}

// DeleteWorkOrder 删除工单（软删除）
func (s *WorkOrderService) DeleteWorkOrder(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.WorkOrder{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete work order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("work order not found")
	}
	return nil
}

// GetSLAStatus 计算单个工单当前SLA状态
func (s *WorkOrderService) GetSLAStatus(ctx context.Context, id uint) (*SLAStatus, error) {
	snapshots := NewSnapshotProvider(s.db)
	snap, err := snapshots.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	status := ComputeSLAStatus(snap, time.Now())
	return &status, nil
}

// applyStatusTransition handles pause accounting around On Hold and the
// completion timestamp.
func applyStatusTransition(updates map[string]interface{}, old *models.WorkOrder, newStatus string, now time.Time) {
	updates["status"] = newStatus

	if newStatus == models.StatusOnHold && old.PausedAt == nil {
		updates["paused_at"] = now
	}
	if old.Status == models.StatusOnHold && newStatus != models.StatusOnHold && old.PausedAt != nil {
		paused := old.TotalPausedSeconds + int64(now.Sub(*old.PausedAt).Seconds())
		updates["total_paused_seconds"] = paused
		updates["paused_at"] = nil
	}
	if newStatus == models.StatusCompleted {
		updates["completed_at"] = now
	}
}

// emitEvent feeds the automation engine; engine failures are logged, never
// propagated into the CRUD path.
func (s *WorkOrderService) emitEvent(ctx context.Context, evt AutomationEvent) {
	if s.automation == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := s.automation.HandleEvent(ctx, evt); err != nil {
		s.logger.Warnf("automation event %s for work order %d failed: %v", evt.Kind, evt.WorkOrderID, err)
	}
}

func (s *WorkOrderService) appendActivity(ctx context.Context, workOrderID, userID uint, text, kind string) {
	entry := &models.WorkOrderActivity{
		WorkOrderID: workOrderID,
		UserID:      userID,
		Text:        text,
		Kind:        kind,
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Warnf("failed to append activity for work order %d: %v", workOrderID, err)
	}
}

func uintPtrEqual(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
