package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Trigger types a rule can subscribe to. sla_status_escalation is fed only
// by the escalation sweeper, never by realtime events.
const (
	TriggerWorkOrderCreated    = "work_order_created"
	TriggerStatusChangedTo     = "work_order_status_changed_to"
	TriggerStatusTransition    = "work_order_status_transition"
	TriggerPriorityChangedTo   = "work_order_priority_changed_to"
	TriggerAssignedToUser      = "work_order_assigned_to_user"
	TriggerAssignedToLocation  = "work_order_assigned_to_location"
	TriggerAssignedToAsset     = "work_order_assigned_to_asset"
	TriggerSLAStatusEscalation = "sla_status_escalation"
)

// Domain event kinds arriving at the automation ingress.
const (
	EventCreated            = "created"
	EventStatusChanged      = "status_changed"
	EventPriorityChanged    = "priority_changed"
	EventAssignedToUser     = "assigned_to_user"
	EventAssignedToLocation = "assigned_to_location"
	EventAssignedToAsset    = "assigned_to_asset"
	EventSLATick            = "sla_tick"
)

// Condition types understood by the evaluator.
const (
	ConditionCategory            = "category"
	ConditionSubcategory         = "subcategory"
	ConditionPriority            = "priority"
	ConditionStatus              = "status"
	ConditionTechnician          = "technician"
	ConditionLocation            = "location"
	ConditionAssetMileage        = "asset_mileage"
	ConditionDayOfWeek           = "day_of_week"
	ConditionTimeOfDay           = "time_of_day"
	ConditionTitleContains       = "title_contains"
	ConditionDescriptionContains = "description_contains"
)

// Comparison operators for ordered condition types.
const (
	OperatorGreaterThan = "greater_than"
	OperatorLessThan    = "less_than"
	OperatorBefore      = "before"
	OperatorAfter       = "after"
	OperatorBetween     = "between"
)

// Action types (closed enumeration; unknown falls through to a failed
// outcome, never a crash).
const (
	ActionAssignTechnician = "assign_technician"
	ActionUpdateStatus     = "update_status"
	ActionUpdatePriority   = "update_priority"
	ActionSendNotification = "send_notification"
	ActionAddActivityLog   = "add_activity_log"
	ActionCreateTask       = "create_task"
	ActionAddToWatchlist   = "add_to_watchlist"
)

// Overall firing statuses.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// AutomationEvent 领域事件入口
type AutomationEvent struct {
	WorkOrderID uint      `json:"work_order_id"`
	Kind        string    `json:"kind"`
	Before      string    `json:"before,omitempty"`
	After       string    `json:"after,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// TriggerMatch is one trigger type an event satisfies, with the comparison
// value a rule's trigger_value is matched against (empty means any).
type TriggerMatch struct {
	Type  string
	Value string
}

// Condition is the wire shape stored in AutomationRule.Conditions.
type Condition struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Operator string `json:"operator,omitempty"`
}

// Action is the wire shape stored in AutomationRule.Actions.
type Action struct {
	Type       string                 `json:"type"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	ExecuteOn  string                 `json:"execute_on,omitempty"` // only "immediate" today
}

// ActionOutcome 单个动作执行结果
type ActionOutcome struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ExecutionOutcome aggregates one firing's per-action results.
type ExecutionOutcome struct {
	Results  []ActionOutcome
	Status   string // success, partial, failed
	Duration time.Duration
}

// EvalContext carries the ambient inputs of one evaluation pass.
type EvalContext struct {
	Now          time.Time
	TriggerType  string
	TriggerValue string
}

// ParseConditions decodes and validates a rule's condition list. Called at
// rule save/load time so malformed rules are rejected before they can ever
// reach the evaluator.
func ParseConditions(raw string) ([]Condition, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var conds []Condition
	if err := json.Unmarshal([]byte(raw), &conds); err != nil {
		return nil, fmt.Errorf("invalid conditions json: %w", err)
	}
	for i, c := range conds {
		if err := validateCondition(c); err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return conds, nil
}

func validateCondition(c Condition) error {
	switch c.Type {
	case ConditionCategory, ConditionSubcategory, ConditionPriority, ConditionStatus,
		ConditionTechnician, ConditionLocation, ConditionDayOfWeek,
		ConditionTitleContains, ConditionDescriptionContains:
		if strings.TrimSpace(c.Value) == "" {
			return fmt.Errorf("empty value for %s", c.Type)
		}
	case ConditionAssetMileage:
		if c.Operator == "" {
			return fmt.Errorf("asset_mileage requires an operator")
		}
		if c.Operator == OperatorBetween {
			if _, _, err := parseNumericRange(c.Value); err != nil {
				return err
			}
		} else if _, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64); err != nil {
			return fmt.Errorf("asset_mileage value %q is not numeric", c.Value)
		}
	case ConditionTimeOfDay:
		if c.Operator == "" {
			return fmt.Errorf("time_of_day requires an operator")
		}
		if c.Operator == OperatorBetween {
			if _, _, err := parseClockRange(c.Value); err != nil {
				return err
			}
		} else if _, err := parseClock(c.Value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	return nil
}

// ParseActions decodes and validates a rule's action list.
func ParseActions(raw string) ([]Action, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var actions []Action
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		return nil, fmt.Errorf("invalid actions json: %w", err)
	}
	for i, a := range actions {
		if a.Type == "" {
			return nil, fmt.Errorf("action %d: missing type", i)
		}
		if a.ExecuteOn != "" && a.ExecuteOn != "immediate" {
			return nil, fmt.Errorf("action %d: unsupported execute_on %q", i, a.ExecuteOn)
		}
	}
	return actions, nil
}

// parseNumericRange parses "min-max" for between operators.
func parseNumericRange(s string) (float64, float64, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("range value %q must be min-max", s)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("range lower bound %q is not numeric", parts[0])
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("range upper bound %q is not numeric", parts[1])
	}
	return lo, hi, nil
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("time value %q must be HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// parseClockRange parses "HH:MM-HH:MM".
func parseClockRange(s string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time range %q must be HH:MM-HH:MM", s)
	}
	lo, err := parseClock(parts[0])
	if err != nil {
		return 0, 0, err
	}
	hi, err := parseClock(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

// splitSet parses a comma separated set column ("at-risk, overdue").
func splitSet(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func setContains(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// marshalJSON is a best-effort encoder for audit columns; audit writing must
// not fail the firing it records.
func marshalJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
