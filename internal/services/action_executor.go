package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fleetfix/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ActionHandler performs one bounded external mutation for one action type.
type ActionHandler interface {
	Type() string
	Execute(ctx context.Context, action Action, snap *WorkOrderSnapshot) error
}

// ActionExecutor runs a matched rule's ordered action list. Each action's
// outcome is captured independently: a failing action never aborts the
// remaining actions of the same rule, because later actions (activity log
// entries in particular) must still run for audit completeness.
type ActionExecutor struct {
	db            *gorm.DB
	logger        *logrus.Logger
	notifications *NotificationService
	handlers      map[string]ActionHandler
}

func NewActionExecutor(db *gorm.DB, logger *logrus.Logger, notifications *NotificationService) *ActionExecutor {
	if logger == nil {
		logger = logrus.New()
	}
	e := &ActionExecutor{
		db:            db,
		logger:        logger,
		notifications: notifications,
		handlers:      make(map[string]ActionHandler),
	}
	for _, h := range []ActionHandler{
		&assignTechnicianAction{db: db},
		&updateStatusAction{db: db},
		&updatePriorityAction{db: db},
		&sendNotificationAction{notifications: notifications},
		&addActivityLogAction{db: db},
		&createTaskAction{db: db},
		&addToWatchlistAction{db: db},
	} {
		e.handlers[h.Type()] = h
	}
	return e
}

// Execute runs the actions in order and aggregates per-action outcomes.
// Overall status: success if every action succeeded, partial if some did,
// failed if none did. An unknown action type is a configuration error
// recorded as a failed outcome, not a crash.
func (e *ActionExecutor) Execute(ctx context.Context, rule *models.AutomationRule, actions []Action, snap *WorkOrderSnapshot) ExecutionOutcome {
	start := time.Now()
	results := make([]ActionOutcome, 0, len(actions))
	succeeded := 0

	for _, action := range actions {
		outcome := ActionOutcome{Type: action.Type}
		handler, ok := e.handlers[action.Type]
		if !ok {
			outcome.Message = "action type not implemented"
			results = append(results, outcome)
			e.logger.Warnf("automation: rule %q references unknown action type %q", rule.Name, action.Type)
			continue
		}
		if err := handler.Execute(ctx, action, snap); err != nil {
			outcome.Message = err.Error()
			e.logger.Warnf("automation: rule %q action %s failed on work order %d: %v",
				rule.Name, action.Type, snap.ID, err)
		} else {
			outcome.Success = true
			succeeded++
		}
		results = append(results, outcome)
	}

	status := OutcomeFailed
	switch {
	case len(actions) > 0 && succeeded == len(actions):
		status = OutcomeSuccess
	case succeeded > 0:
		status = OutcomePartial
	}

	return ExecutionOutcome{Results: results, Status: status, Duration: time.Since(start)}
}

// --- parameter helpers ---

func paramString(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	s, _ := params[key].(string)
	return s
}

// paramUint accepts JSON numbers and numeric strings.
func paramUint(params map[string]interface{}, key string) (uint, bool) {
	if params == nil {
		return 0, false
	}
	switch v := params[key].(type) {
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case string:
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return 0, false
		}
		return uint(n), true
	default:
		return 0, false
	}
}

// --- handlers ---

type assignTechnicianAction struct{ db *gorm.DB }

func (a *assignTechnicianAction) Type() string { return ActionAssignTechnician }

// Execute assigns either the technician named in the parameters or, with
// strategy "least_loaded", the available technician with the most headroom.
func (a *assignTechnicianAction) Execute(ctx context.Context, action Action, snap *WorkOrderSnapshot) error {
	var tech models.Technician
	if id, ok := paramUint(action.Parameters, "technician_id"); ok {
		if err := a.db.WithContext(ctx).First(&tech, id).Error; err != nil {
			return fmt.Errorf("technician %d not found", id)
		}
	} else if paramString(action.Parameters, "strategy") == "least_loaded" {
		err := a.db.WithContext(ctx).
			Where("status = ? AND current_load < max_concurrent", "available").
			Order("current_load ASC").
			First(&tech).Error
		if err != nil {
			return fmt.Errorf("no available technician")
		}
	} else {
		return fmt.Errorf("technician_id or strategy parameter required")
	}

	updates := map[string]interface{}{"assigned_tech_id": tech.ID}
	if snap.Status == models.StatusNew {
		updates["status"] = models.StatusAssigned
	}
	if err := a.db.WithContext(ctx).Model(&models.WorkOrder{}).
		Where("id = ?", snap.ID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to assign technician: %w", err)
	}
	return a.db.WithContext(ctx).Model(&models.Technician{}).
		Where("id = ?", tech.ID).
		UpdateColumn("current_load", gorm.Expr("current_load + 1")).Error
}

type updateStatusAction struct{ db *gorm.DB }

func (a *updateStatusAction) Type() string { return ActionUpdateStatus }

func (a *updateStatusAction) Execute(ctx context.Context, action Action, snap *WorkOrderSnapshot) error {
	status := paramString(action.Parameters, "status")
	if status == "" {
		return fmt.Errorf("status parameter required")
	}
	if !isValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}

	// Status changes go through the same transition logic as the CRUD path
	// so pause accounting stays correct when a rule parks or resumes an order.
	var old models.WorkOrder
	if err := a.db.WithContext(ctx).First(&old, snap.ID).Error; err != nil {
		return fmt.Errorf("failed to load work order: %w", err)
	}
	if old.Status == status {
		return nil
	}
	updates := map[string]interface{}{}
	applyStatusTransition(updates, &old, status, time.Now())
	return a.db.WithContext(ctx).Model(&models.WorkOrder{}).
		Where("id = ?", snap.ID).
		Updates(updates).Error
}

type updatePriorityAction struct{ db *gorm.DB }

func (a *updatePriorityAction) Type() string { return ActionUpdatePriority }

func (a *updatePriorityAction) Execute(ctx context.Context, action Action, snap *WorkOrderSnapshot) error {
	priority := paramString(action.Parameters, "priority")
	if priority == "" {
		return fmt.Errorf("priority parameter required")
	}
	if !isValidPriority(priority) {
		return fmt.Errorf("invalid priority %q", priority)
	}
	return a.db.WithContext(ctx).Model(&models.WorkOrder{}).
		Where("id = ?", snap.ID).
		Update("priority", priority).Error
}

type sendNotificationAction struct{ notifications *NotificationService }

func (a *sendNotificationAction) Type() string { return ActionSendNotification }

func (a *sendNotificationAction) Execute(ctx context.Context, action Action, snap *WorkOrderSnapshot) error {
	if a.notifications == nil {
		return fmt.Errorf("notification service not configured")
	}
	kind := paramString(action.Parameters, "kind")
	if !isKnownNotificationKind(kind) {
		return fmt.Errorf("unknown notification kind %q", kind)
	}
	title := paramString(action.Parameters, "title")
	if title == "" {
		title = fmt.Sprintf("Work order %s", snap.Number)
	}
	n := &models.Notification{
		WorkOrderID: snap.ID,
		Kind:        kind,
		Title:       title,
		Body:        paramString(action.Parameters, "message"),
		WebhookURL:  paramString(action.Parameters, "webhook_url"),
	}
	if id, ok := paramUint(action.Parameters, "recipient_id"); ok {
		n.RecipientID = &id
	}
	return a.notifications.Enqueue(ctx, n)
}

type addActivityLogAction struct{ db *gorm.DB }

func (a *addActivityLogAction) Type() string { return ActionAddActivityLog }

func (a *addActivityLogAction) Execute(ctx context.Context, action Action, snap *WorkOrderSnapshot) error {
	text := paramString(action.Parameters, "text")
	if text == "" {
		text = paramString(action.Parameters, "message")
	}
	if text == "" {
		return fmt.Errorf("text parameter required")
	}
	entry := &models.WorkOrderActivity{
		WorkOrderID: snap.ID,
		UserID:      0, // system
		Text:        text,
		Kind:        "automation",
		CreatedAt:   time.Now(),
	}
	return a.db.WithContext(ctx).Create(entry).Error
}

type createTaskAction struct{ db *gorm.DB }

func (a *createTaskAction) Type() string { return ActionCreateTask }

func (a *createTaskAction) Execute(ctx context.Context, action Action, snap *WorkOrderSnapshot) error {
	title := paramString(action.Parameters, "title")
	if title == "" {
		return fmt.Errorf("title parameter required")
	}
	task := &models.Task{WorkOrderID: snap.ID, Title: title}
	if id, ok := paramUint(action.Parameters, "assignee_id"); ok {
		task.AssigneeID = &id
	}
	if hours, ok := paramUint(action.Parameters, "due_hours"); ok {
		due := time.Now().Add(time.Duration(hours) * time.Hour)
		task.DueAt = &due
	}
	return a.db.WithContext(ctx).Create(task).Error
}

type addToWatchlistAction struct{ db *gorm.DB }

func (a *addToWatchlistAction) Type() string { return ActionAddToWatchlist }

func (a *addToWatchlistAction) Execute(ctx context.Context, _ Action, snap *WorkOrderSnapshot) error {
	return a.db.WithContext(ctx).Model(&models.WorkOrder{}).
		Where("id = ?", snap.ID).
		Update("watched", true).Error
}

func isValidStatus(s string) bool {
	switch s {
	case models.StatusNew, models.StatusAssigned, models.StatusInProgress,
		models.StatusOnHold, models.StatusCompleted, models.StatusCancelled:
		return true
	}
	return false
}

func isValidPriority(p string) bool {
	switch p {
	case "Low", "Medium", "High", "Urgent":
		return true
	}
	return false
}

func isKnownNotificationKind(k string) bool {
	switch k {
	case "assignment", "escalation", "status_change", "mention":
		return true
	}
	return false
}
