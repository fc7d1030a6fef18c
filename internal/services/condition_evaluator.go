package services

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logic values for combining a rule's condition list.
const (
	LogicAll = "all"
	LogicAny = "any"
)

// conditionPredicate evaluates a single condition against a snapshot.
type conditionPredicate func(cond Condition, snap *WorkOrderSnapshot, evalCtx EvalContext) bool

// ConditionEvaluator is a pure, side-effect free evaluator; safe for
// concurrent use.
type ConditionEvaluator struct {
	logger     *logrus.Logger
	predicates map[string]conditionPredicate
}

func NewConditionEvaluator(logger *logrus.Logger) *ConditionEvaluator {
	if logger == nil {
		logger = logrus.New()
	}
	e := &ConditionEvaluator{logger: logger}
	e.predicates = map[string]conditionPredicate{
		ConditionCategory:            matchCategory,
		ConditionSubcategory:         matchSubcategory,
		ConditionPriority:            matchPriority,
		ConditionStatus:              matchStatus,
		ConditionTechnician:          matchTechnician,
		ConditionLocation:            matchLocation,
		ConditionAssetMileage:        matchAssetMileage,
		ConditionDayOfWeek:           matchDayOfWeek,
		ConditionTimeOfDay:           matchTimeOfDay,
		ConditionTitleContains:       matchTitleContains,
		ConditionDescriptionContains: matchDescriptionContains,
	}
	return e
}

// Evaluate combines the individual condition results under all/any logic.
// An empty list is vacuously true for "all" and vacuously false for "any".
func (e *ConditionEvaluator) Evaluate(conds []Condition, logic string, snap *WorkOrderSnapshot, evalCtx EvalContext) bool {
	if logic == "" {
		logic = LogicAll
	}
	if len(conds) == 0 {
		return logic == LogicAll
	}
	for _, cond := range conds {
		ok := e.evaluateOne(cond, snap, evalCtx)
		if logic == LogicAny && ok {
			return true
		}
		if logic != LogicAny && !ok {
			return false
		}
	}
	return logic != LogicAny
}

// evaluateOne fails closed: unknown types and empty values never match.
func (e *ConditionEvaluator) evaluateOne(cond Condition, snap *WorkOrderSnapshot, evalCtx EvalContext) bool {
	if strings.TrimSpace(cond.Value) == "" {
		return false
	}
	pred, ok := e.predicates[cond.Type]
	if !ok {
		e.logger.Warnf("automation: unknown condition type %q, treating as no match", cond.Type)
		return false
	}
	return pred(cond, snap, evalCtx)
}

func matchCategory(cond Condition, snap *WorkOrderSnapshot, _ EvalContext) bool {
	return strings.EqualFold(snap.Category, strings.TrimSpace(cond.Value))
}

func matchSubcategory(cond Condition, snap *WorkOrderSnapshot, _ EvalContext) bool {
	return strings.EqualFold(snap.Subcategory, strings.TrimSpace(cond.Value))
}

func matchPriority(cond Condition, snap *WorkOrderSnapshot, _ EvalContext) bool {
	return strings.EqualFold(snap.Priority, strings.TrimSpace(cond.Value))
}

func matchStatus(cond Condition, snap *WorkOrderSnapshot, _ EvalContext) bool {
	return strings.EqualFold(snap.Status, strings.TrimSpace(cond.Value))
}

// Identifier conditions are exact matches on the numeric id.
func matchTechnician(cond Condition, snap *WorkOrderSnapshot, _ EvalContext) bool {
	if snap.AssignedTechID == nil {
		return false
	}
	id, err := strconv.ParseUint(strings.TrimSpace(cond.Value), 10, 32)
	if err != nil {
		return false
	}
	return *snap.AssignedTechID == uint(id)
}

func matchLocation(cond Condition, snap *WorkOrderSnapshot, _ EvalContext) bool {
	if snap.LocationID == nil {
		return false
	}
	id, err := strconv.ParseUint(strings.TrimSpace(cond.Value), 10, 32)
	if err != nil {
		return false
	}
	return *snap.LocationID == uint(id)
}

// matchAssetMileage requires an operator; without one the condition is
// unsatisfiable rather than an error.
func matchAssetMileage(cond Condition, snap *WorkOrderSnapshot, _ EvalContext) bool {
	if snap.AssetID == nil {
		return false
	}
	switch cond.Operator {
	case OperatorGreaterThan:
		v, err := strconv.ParseFloat(strings.TrimSpace(cond.Value), 64)
		return err == nil && snap.AssetMileage > v
	case OperatorLessThan:
		v, err := strconv.ParseFloat(strings.TrimSpace(cond.Value), 64)
		return err == nil && snap.AssetMileage < v
	case OperatorBetween:
		lo, hi, err := parseNumericRange(cond.Value)
		return err == nil && snap.AssetMileage >= lo && snap.AssetMileage <= hi
	default:
		return false
	}
}

// matchDayOfWeek matches the weekday of the ambient evaluation time,
// e.g. "Monday" or "monday,friday".
func matchDayOfWeek(cond Condition, _ *WorkOrderSnapshot, evalCtx EvalContext) bool {
	today := evalCtx.Now.Weekday().String()
	for _, day := range splitSet(cond.Value) {
		if strings.EqualFold(day, today) {
			return true
		}
	}
	return false
}

func matchTimeOfDay(cond Condition, _ *WorkOrderSnapshot, evalCtx EvalContext) bool {
	nowMin := evalCtx.Now.Hour()*60 + evalCtx.Now.Minute()
	switch cond.Operator {
	case OperatorBefore:
		v, err := parseClock(cond.Value)
		return err == nil && nowMin < v
	case OperatorAfter:
		v, err := parseClock(cond.Value)
		return err == nil && nowMin > v
	case OperatorBetween:
		lo, hi, err := parseClockRange(cond.Value)
		return err == nil && nowMin >= lo && nowMin <= hi
	default:
		return false
	}
}

func matchTitleContains(cond Condition, snap *WorkOrderSnapshot, _ EvalContext) bool {
	return strings.Contains(strings.ToLower(snap.Title), strings.ToLower(strings.TrimSpace(cond.Value)))
}

func matchDescriptionContains(cond Condition, snap *WorkOrderSnapshot, _ EvalContext) bool {
	return strings.Contains(strings.ToLower(snap.Description), strings.ToLower(strings.TrimSpace(cond.Value)))
}
