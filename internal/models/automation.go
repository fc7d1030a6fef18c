package models

import "time"

// Automation rule types (closed enumeration).
const (
	RuleTypeAutoAssignment     = "auto_assignment"
	RuleTypeSLAEscalation      = "sla_escalation"
	RuleTypeStatusChange       = "status_change"
	RuleTypePriorityChange     = "priority_change"
	RuleTypeAssetAssignment    = "asset_assignment"
	RuleTypeLocationAssignment = "location_assignment"
	RuleTypeScheduled          = "scheduled"
)

// AutomationRule 自动化规则定义
// The engine treats rules as read-only except for ExecutionCount and
// LastExecutedAt; authoring happens through the handlers.
type AutomationRule struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"unique;not null" json:"name"`
	RuleType string `gorm:"not null;index" json:"rule_type"`
	IsActive bool   `gorm:"default:true;index" json:"is_active"`
	// Higher priority fires first among matches for the same trigger.
	Priority int `gorm:"default:0" json:"priority"`

	TriggerType     string `gorm:"not null;index" json:"trigger_type"`
	TriggerValue    string `json:"trigger_value"`    // e.g. target status for work_order_status_changed_to
	TriggerProperty string `json:"trigger_property"` // e.g. asset ownership_type selector

	Conditions      string `gorm:"type:text" json:"conditions"` // JSON: [{type,value,operator}]
	ConditionsLogic string `gorm:"default:'all'" json:"conditions_logic"` // all, any
	Actions         string `gorm:"type:text" json:"actions"`    // JSON: [{type,parameters,execute_on}]

	// sla_escalation only: set-membership filters for the sweep.
	EscalationSLATargets string `json:"escalation_sla_targets"` // 逗号分隔: at-risk, overdue
	EscalationStatuses   string `json:"escalation_statuses"`    // 逗号分隔工单状态

	ExecutionCount int        `gorm:"default:0" json:"execution_count"`
	LastExecutedAt *time.Time `json:"last_executed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RuleExecutionLog 规则执行审计记录（仅追加）
// History is never rewritten; dismissal is a field update, not a delete.
type RuleExecutionLog struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	RuleID          uint      `gorm:"index" json:"rule_id"`
	RuleName        string    `json:"rule_name"`
	RuleType        string    `gorm:"index" json:"rule_type"`
	WorkOrderID     uint      `gorm:"index" json:"work_order_id"`
	TriggerContext  string    `json:"trigger_context"`
	ActionResults   string    `gorm:"type:text" json:"action_results"`      // JSON: [{type,success,message}]
	Status          string    `gorm:"index" json:"status"`                  // success, partial, failed
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	DecisionFactors string    `gorm:"type:text" json:"decision_factors"`    // JSON, e.g. {"sla_consumed_percent":93.1,"escalation_level":1}
	Dismissed       bool      `gorm:"default:false;index" json:"dismissed"`
	CreatedAt       time.Time `json:"created_at"`

	Rule AutomationRule `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
}
