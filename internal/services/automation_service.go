package services

import (
	"context"
	"fmt"
	"time"

	"fleetfix/internal/metrics"
	"fleetfix/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// AutomationService ties the engine pieces together: trigger classification,
// rule selection, action execution, audit logging and rule bookkeeping. It
// also owns the rule authoring CRUD used by the handlers.
type AutomationService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	tracer    trace.Tracer
	snapshots *SnapshotProvider
	selector  *RuleSelector
	executor  *ActionExecutor
	hub       *RealtimeHub
}

func NewAutomationService(db *gorm.DB, logger *logrus.Logger, snapshots *SnapshotProvider, selector *RuleSelector, executor *ActionExecutor) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationService{
		db:        db,
		logger:    logger,
		tracer:    otel.Tracer("fleetfix.automation"),
		snapshots: snapshots,
		selector:  selector,
		executor:  executor,
	}
}

// SetHub 注入实时推送（可选）
func (s *AutomationService) SetHub(hub *RealtimeHub) {
	s.hub = hub
}

// HandleEvent runs the realtime automation path for one domain event:
// classify, snapshot once, select matching rules, then fire them in
// priority order. Every matched rule fires against the pre-event snapshot;
// a later rule does not observe an earlier rule's mutations within the same
// event cycle.
func (s *AutomationService) HandleEvent(ctx context.Context, evt AutomationEvent) (int, error) {
	ctx, span := s.tracer.Start(ctx, "automation.handle_event")
	defer span.End()

	span.SetAttributes(
		attribute.String("automation.event.kind", evt.Kind),
		attribute.Int64("automation.event.work_order_id", int64(evt.WorkOrderID)),
	)

	matches := ClassifyEvent(evt)
	if len(matches) == 0 {
		return 0, nil
	}

	snap, err := s.snapshots.GetSnapshot(ctx, evt.WorkOrderID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("automation event aborted: %w", err)
	}

	now := evt.OccurredAt
	if now.IsZero() {
		now = time.Now()
	}
	matched, err := s.selector.Select(ctx, matches, snap, EvalContext{Now: now})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("automation event aborted: %w", err)
	}

	fired := 0
	for _, m := range matched {
		outcome := s.FireRule(ctx, m, snap, evt.Kind, nil)
		s.incrementExecution(ctx, m.Rule.ID)
		fired++
		s.logger.Infof("automation: rule %q fired on work order %s (%s)",
			m.Rule.Name, snap.Number, outcome.Status)
	}

	span.SetAttributes(attribute.Int("automation.rules_fired", fired))
	return fired, nil
}

// FireRule executes one (rule, work order) firing and appends exactly one
// execution log entry, whatever the outcome. Rule bookkeeping is left to
// the caller: the event path updates it per firing, the sweeper once per
// rule per sweep.
func (s *AutomationService) FireRule(ctx context.Context, m MatchedRule, snap *WorkOrderSnapshot, triggerContext string, decisionFactors map[string]interface{}) ExecutionOutcome {
	outcome := s.executor.Execute(ctx, &m.Rule, m.Actions, snap)

	entry := &models.RuleExecutionLog{
		RuleID:          m.Rule.ID,
		RuleName:        m.Rule.Name,
		RuleType:        m.Rule.RuleType,
		WorkOrderID:     snap.ID,
		TriggerContext:  triggerContext,
		ActionResults:   marshalJSON(outcome.Results),
		Status:          outcome.Status,
		ExecutionTimeMs: outcome.Duration.Milliseconds(),
		CreatedAt:       time.Now(),
	}
	if decisionFactors != nil {
		entry.DecisionFactors = marshalJSON(decisionFactors)
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Errorf("automation: failed to append execution log for rule %q: %v", m.Rule.Name, err)
	}

	metrics.IncRuleFiring(outcome.Status)
	if s.hub != nil {
		s.hub.BroadcastFiring(entry)
	}
	return outcome
}

// incrementExecution updates a rule's bookkeeping once per firing.
// Last-write-wins; no stronger isolation is needed because a single engine
// process runs the event path and the sweep.
func (s *AutomationService) incrementExecution(ctx context.Context, ruleID uint) {
	if err := s.db.WithContext(ctx).Model(&models.AutomationRule{}).
		Where("id = ?", ruleID).
		Updates(map[string]interface{}{
			"execution_count":  gorm.Expr("execution_count + 1"),
			"last_executed_at": time.Now(),
		}).Error; err != nil {
		s.logger.Warnf("automation: failed to update rule %d bookkeeping: %v", ruleID, err)
	}
}

// --- rule authoring ---

// AutomationRuleRequest 创建/更新规则请求
type AutomationRuleRequest struct {
	Name                 string      `json:"name" binding:"required"`
	RuleType             string      `json:"rule_type" binding:"required"`
	IsActive             *bool       `json:"is_active"`
	Priority             int         `json:"priority"`
	TriggerType          string      `json:"trigger_type" binding:"required"`
	TriggerValue         string      `json:"trigger_value"`
	TriggerProperty      string      `json:"trigger_property"`
	Conditions           []Condition `json:"conditions"`
	ConditionsLogic      string      `json:"conditions_logic"`
	Actions              []Action    `json:"actions"`
	EscalationSLATargets string      `json:"escalation_sla_targets"`
	EscalationStatuses   string      `json:"escalation_statuses"`
}

func isSupportedRuleType(t string) bool {
	switch t {
	case models.RuleTypeAutoAssignment, models.RuleTypeSLAEscalation,
		models.RuleTypeStatusChange, models.RuleTypePriorityChange,
		models.RuleTypeAssetAssignment, models.RuleTypeLocationAssignment,
		models.RuleTypeScheduled:
		return true
	}
	return false
}

func isSupportedTriggerType(t string) bool {
	switch t {
	case TriggerWorkOrderCreated, TriggerStatusChangedTo, TriggerStatusTransition,
		TriggerPriorityChangedTo, TriggerAssignedToUser, TriggerAssignedToLocation,
		TriggerAssignedToAsset, TriggerSLAStatusEscalation:
		return true
	}
	return false
}

// CreateRule 创建自动化规则
// Conditions and actions are validated here, at save time, so the engine
// never has to fail a firing over malformed configuration it could have
// rejected earlier.
func (s *AutomationService) CreateRule(ctx context.Context, req *AutomationRuleRequest) (*models.AutomationRule, error) {
	rule, err := s.ruleFromRequest(req)
	if err != nil {
		return nil, err
	}
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	s.logger.Infof("Created automation rule %q (type=%s, trigger=%s, priority=%d)",
		rule.Name, rule.RuleType, rule.TriggerType, rule.Priority)
	return rule, nil
}

// UpdateRule 更新自动化规则
func (s *AutomationService) UpdateRule(ctx context.Context, id uint, req *AutomationRuleRequest) (*models.AutomationRule, error) {
	var existing models.AutomationRule
	if err := s.db.WithContext(ctx).First(&existing, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("rule not found")
		}
		return nil, fmt.Errorf("failed to find rule: %w", err)
	}

	rule, err := s.ruleFromRequest(req)
	if err != nil {
		return nil, err
	}
	rule.ID = existing.ID
	rule.ExecutionCount = existing.ExecutionCount
	rule.LastExecutedAt = existing.LastExecutedAt
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Save(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	return rule, nil
}

func (s *AutomationService) ruleFromRequest(req *AutomationRuleRequest) (*models.AutomationRule, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	if !isSupportedRuleType(req.RuleType) {
		return nil, fmt.Errorf("unsupported rule type: %s", req.RuleType)
	}
	if !isSupportedTriggerType(req.TriggerType) {
		return nil, fmt.Errorf("unsupported trigger type: %s", req.TriggerType)
	}
	logic := req.ConditionsLogic
	if logic == "" {
		logic = LogicAll
	}
	if logic != LogicAll && logic != LogicAny {
		return nil, fmt.Errorf("conditions_logic must be all or any")
	}
	for i, c := range req.Conditions {
		if err := validateCondition(c); err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
	}
	for i, a := range req.Actions {
		if a.Type == "" {
			return nil, fmt.Errorf("action %d: missing type", i)
		}
		if a.ExecuteOn != "" && a.ExecuteOn != "immediate" {
			return nil, fmt.Errorf("action %d: unsupported execute_on %q", i, a.ExecuteOn)
		}
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &models.AutomationRule{
		Name:                 req.Name,
		RuleType:             req.RuleType,
		IsActive:             active,
		Priority:             req.Priority,
		TriggerType:          req.TriggerType,
		TriggerValue:         req.TriggerValue,
		TriggerProperty:      req.TriggerProperty,
		Conditions:           marshalJSON(req.Conditions),
		ConditionsLogic:      logic,
		Actions:              marshalJSON(req.Actions),
		EscalationSLATargets: req.EscalationSLATargets,
		EscalationStatuses:   req.EscalationStatuses,
	}, nil
}

// ListRules 规则列表（可按类型过滤）
func (s *AutomationService) ListRules(ctx context.Context, ruleType string, activeOnly bool) ([]models.AutomationRule, error) {
	query := s.db.WithContext(ctx).Model(&models.AutomationRule{})
	if ruleType != "" {
		query = query.Where("rule_type = ?", ruleType)
	}
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var rules []models.AutomationRule
	if err := query.Order("priority DESC, id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// GetRule 获取单个规则
func (s *AutomationService) GetRule(ctx context.Context, id uint) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	if err := s.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("rule not found")
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

// DeleteRule 删除规则
func (s *AutomationService) DeleteRule(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.AutomationRule{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("rule not found")
	}
	return nil
}

// SetRuleActive 启用/停用规则
func (s *AutomationService) SetRuleActive(ctx context.Context, id uint, active bool) error {
	result := s.db.WithContext(ctx).Model(&models.AutomationRule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("rule not found")
	}
	return nil
}

// --- execution log ---

// ExecutionLogListRequest 执行日志列表请求
type ExecutionLogListRequest struct {
	Page        int      `form:"page,default=1"`
	PageSize    int      `form:"page_size,default=20"`
	RuleID      *uint    `form:"rule_id"`
	WorkOrderID *uint    `form:"work_order_id"`
	Status      []string `form:"status"`
	Dismissed   *bool    `form:"dismissed"`
}

// ListExecutionLogs 执行日志列表
func (s *AutomationService) ListExecutionLogs(ctx context.Context, req *ExecutionLogListRequest) ([]models.RuleExecutionLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.RuleExecutionLog{})
	if req.RuleID != nil {
		query = query.Where("rule_id = ?", *req.RuleID)
	}
	if req.WorkOrderID != nil {
		query = query.Where("work_order_id = ?", *req.WorkOrderID)
	}
	if len(req.Status) > 0 {
		query = query.Where("status IN ?", req.Status)
	}
	if req.Dismissed != nil {
		query = query.Where("dismissed = ?", *req.Dismissed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count execution logs: %w", err)
	}

	query = query.Order("created_at DESC, id DESC")
	if req.PageSize > 0 {
		offset := (req.Page - 1) * req.PageSize
		query = query.Offset(offset).Limit(req.PageSize)
	}

	var logs []models.RuleExecutionLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list execution logs: %w", err)
	}
	return logs, total, nil
}

// DismissLog marks a log entry dismissed. History itself is never
// rewritten; the tombstone re-arms the sweep's duplicate guard for that
// (rule, work order) pair.
func (s *AutomationService) DismissLog(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Model(&models.RuleExecutionLog{}).
		Where("id = ?", id).
		Update("dismissed", true)
	if result.Error != nil {
		return fmt.Errorf("failed to dismiss log: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("execution log not found")
	}
	return nil
}

// RetryFiring re-runs a previously logged firing against the work order's
// current state. This is the operator-facing retry surface; the engine
// never retries automatically within a firing.
func (s *AutomationService) RetryFiring(ctx context.Context, logID uint) (*ExecutionOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "automation.retry_firing")
	defer span.End()

	var entry models.RuleExecutionLog
	if err := s.db.WithContext(ctx).First(&entry, logID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("execution log not found")
		}
		return nil, fmt.Errorf("failed to load execution log: %w", err)
	}

	rule, err := s.GetRule(ctx, entry.RuleID)
	if err != nil {
		return nil, err
	}
	conds, err := ParseConditions(rule.Conditions)
	if err != nil {
		return nil, fmt.Errorf("rule %q has invalid conditions: %w", rule.Name, err)
	}
	actions, err := ParseActions(rule.Actions)
	if err != nil {
		return nil, fmt.Errorf("rule %q has invalid actions: %w", rule.Name, err)
	}

	snap, err := s.snapshots.GetSnapshot(ctx, entry.WorkOrderID)
	if err != nil {
		return nil, err
	}

	m := MatchedRule{Rule: *rule, Conditions: conds, Actions: actions}
	outcome := s.FireRule(ctx, m, snap, "manual_retry", nil)
	s.incrementExecution(ctx, rule.ID)
	return &outcome, nil
}
