package services

import (
	"context"
	"fmt"
	"sort"

	"fleetfix/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MatchedRule is a rule that passed trigger and condition matching, with its
// JSON columns already decoded.
type MatchedRule struct {
	Rule       models.AutomationRule
	Conditions []Condition
	Actions    []Action
}

// RuleSelector filters the active rule set for an event and orders the
// matches by priority.
type RuleSelector struct {
	db        *gorm.DB
	evaluator *ConditionEvaluator
	logger    *logrus.Logger
}

func NewRuleSelector(db *gorm.DB, evaluator *ConditionEvaluator, logger *logrus.Logger) *RuleSelector {
	if logger == nil {
		logger = logrus.New()
	}
	return &RuleSelector{db: db, evaluator: evaluator, logger: logger}
}

// Select loads active rules subscribed to any of the trigger matches,
// evaluates each rule's condition tree against the snapshot, and returns
// the survivors ordered by priority descending (ties broken by creation
// order for determinism).
//
// Rules with malformed condition or action JSON are configuration errors:
// they are skipped with a diagnostic, never fatal.
func (s *RuleSelector) Select(ctx context.Context, matches []TriggerMatch, snap *WorkOrderSnapshot, evalCtx EvalContext) ([]MatchedRule, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	types := make([]string, 0, len(matches))
	valueByType := make(map[string]string, len(matches))
	for _, m := range matches {
		types = append(types, m.Type)
		valueByType[m.Type] = m.Value
	}

	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("is_active = ? AND trigger_type IN ?", true, types).
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to load automation rules: %w", err)
	}

	var matched []MatchedRule
	for _, rule := range rules {
		if !s.triggerApplies(rule, valueByType[rule.TriggerType], snap) {
			continue
		}

		conds, err := ParseConditions(rule.Conditions)
		if err != nil {
			s.logger.Warnf("automation: rule %q has invalid conditions, skipping: %v", rule.Name, err)
			continue
		}
		actions, err := ParseActions(rule.Actions)
		if err != nil {
			s.logger.Warnf("automation: rule %q has invalid actions, skipping: %v", rule.Name, err)
			continue
		}

		ec := evalCtx
		ec.TriggerType = rule.TriggerType
		ec.TriggerValue = rule.TriggerValue
		if !s.evaluator.Evaluate(conds, rule.ConditionsLogic, snap, ec) {
			continue
		}

		matched = append(matched, MatchedRule{Rule: rule, Conditions: conds, Actions: actions})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i].Rule, matched[j].Rule
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return matched, nil
}

// triggerApplies checks the rule's trigger value and optional nested
// property selector against the event and snapshot.
func (s *RuleSelector) triggerApplies(rule models.AutomationRule, eventValue string, snap *WorkOrderSnapshot) bool {
	if rule.TriggerValue != "" && rule.TriggerValue != eventValue {
		return false
	}
	// asset_assignment rules may additionally select on ownership type.
	if rule.TriggerType == TriggerAssignedToAsset && rule.TriggerProperty != "" {
		if snap == nil || snap.AssetOwnershipType != rule.TriggerProperty {
			return false
		}
	}
	return true
}
