package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"fleetfix/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newAutomationTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Technician{}, &models.Asset{},
		&models.WorkOrder{}, &models.WorkOrderActivity{}, &models.Task{},
		&models.Notification{}, &models.AutomationRule{}, &models.RuleExecutionLog{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestAutomation(t *testing.T, db *gorm.DB) *AutomationService {
	logger := logrus.New()
	snapshots := NewSnapshotProvider(db)
	selector := NewRuleSelector(db, NewConditionEvaluator(logger), logger)
	executor := NewActionExecutor(db, logger, NewNotificationService(db, logger, nil))
	return NewAutomationService(db, logger, snapshots, selector, executor)
}

func TestHandleEvent_LogsFollowRulePriorityOrder(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestAutomation(t, db)

	wo := &models.WorkOrder{Number: "WO-ORD01", Title: "Suspension check", Status: models.StatusNew, Priority: "Medium"}
	if err := db.Create(wo).Error; err != nil {
		t.Fatalf("failed to insert work order: %v", err)
	}

	// Insert in reverse priority order so insertion order can't mask a bug.
	low := &models.AutomationRule{
		Name: "low priority watcher", RuleType: models.RuleTypeStatusChange, IsActive: true,
		Priority: 10, TriggerType: TriggerWorkOrderCreated,
		Conditions: "[]", Actions: `[{"type":"add_to_watchlist"}]`,
	}
	high := &models.AutomationRule{
		Name: "high priority watcher", RuleType: models.RuleTypeStatusChange, IsActive: true,
		Priority: 90, TriggerType: TriggerWorkOrderCreated,
		Conditions: "[]", Actions: `[{"type":"add_to_watchlist"}]`,
	}
	for _, r := range []*models.AutomationRule{low, high} {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("failed to insert rule: %v", err)
		}
	}

	fired, err := svc.HandleEvent(context.Background(), AutomationEvent{
		WorkOrderID: wo.ID, Kind: EventCreated, OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if fired != 2 {
		t.Fatalf("expected two firings, got %d", fired)
	}

	// The higher-priority rule's audit entry must precede the lower one's.
	var logs []models.RuleExecutionLog
	if err := db.Order("id asc").Find(&logs).Error; err != nil {
		t.Fatalf("failed to load logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected two execution logs, got %d", len(logs))
	}
	if logs[0].RuleID != high.ID || logs[1].RuleID != low.ID {
		t.Fatalf("execution logs out of priority order: first=%d second=%d (want %d then %d)",
			logs[0].RuleID, logs[1].RuleID, high.ID, low.ID)
	}
}

func TestHandleEvent_FiresMatchingRule(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestAutomation(t, db)

	wo := &models.WorkOrder{Number: "WO-EVT01", Title: "Engine light", Status: models.StatusNew, Priority: "Medium", Category: "Engine"}
	if err := db.Create(wo).Error; err != nil {
		t.Fatalf("failed to insert work order: %v", err)
	}
	rule := &models.AutomationRule{
		Name: "urgent engine", RuleType: models.RuleTypePriorityChange, IsActive: true,
		TriggerType: TriggerWorkOrderCreated,
		Conditions:  `[{"type":"category","value":"Engine"}]`,
		Actions:     `[{"type":"update_priority","parameters":{"priority":"High"}}]`,
	}
	if err := db.Create(rule).Error; err != nil {
		t.Fatalf("failed to insert rule: %v", err)
	}

	fired, err := svc.HandleEvent(context.Background(), AutomationEvent{
		WorkOrderID: wo.ID, Kind: EventCreated, OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected one firing, got %d", fired)
	}

	var fresh models.WorkOrder
	db.First(&fresh, wo.ID)
	if fresh.Priority != "High" {
		t.Fatalf("action not applied: %+v", fresh)
	}

	// Exactly one audit entry per firing, and per-firing bookkeeping.
	var logs []models.RuleExecutionLog
	db.Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("expected one execution log, got %d", len(logs))
	}
	if logs[0].TriggerContext != EventCreated || logs[0].Status != OutcomeSuccess {
		t.Fatalf("unexpected log: %+v", logs[0])
	}
	var freshRule models.AutomationRule
	db.First(&freshRule, rule.ID)
	if freshRule.ExecutionCount != 1 || freshRule.LastExecutedAt == nil {
		t.Fatalf("bookkeeping not updated: %+v", freshRule)
	}
}

func TestHandleEvent_NoMatchesIsQuiet(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestAutomation(t, db)

	wo := &models.WorkOrder{Number: "WO-EVT02", Title: "Quiet", Status: models.StatusNew}
	if err := db.Create(wo).Error; err != nil {
		t.Fatalf("failed to insert work order: %v", err)
	}

	fired, err := svc.HandleEvent(context.Background(), AutomationEvent{
		WorkOrderID: wo.ID, Kind: EventCreated,
	})
	if err != nil || fired != 0 {
		t.Fatalf("expected quiet no-op, got fired=%d err=%v", fired, err)
	}
	// Unknown event kinds degrade to nothing rather than erroring.
	fired, err = svc.HandleEvent(context.Background(), AutomationEvent{WorkOrderID: wo.ID, Kind: "mystery"})
	if err != nil || fired != 0 {
		t.Fatalf("unknown kind should be a no-op, got fired=%d err=%v", fired, err)
	}
}

func TestHandleEvent_MissingWorkOrder(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestAutomation(t, db)

	_, err := svc.HandleEvent(context.Background(), AutomationEvent{WorkOrderID: 999, Kind: EventCreated})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestCreateRule_Validation(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestAutomation(t, db)
	ctx := context.Background()

	// Valid rule round-trips with encoded JSON columns.
	rule, err := svc.CreateRule(ctx, &AutomationRuleRequest{
		Name:        "assign brakes",
		RuleType:    models.RuleTypeAutoAssignment,
		TriggerType: TriggerWorkOrderCreated,
		Conditions:  []Condition{{Type: ConditionCategory, Value: "Brakes"}},
		Actions:     []Action{{Type: ActionAssignTechnician, Parameters: map[string]interface{}{"strategy": "least_loaded"}}},
	})
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if !rule.IsActive {
		t.Fatal("rules default to active")
	}
	if rule.ConditionsLogic != LogicAll {
		t.Fatalf("logic should default to all, got %q", rule.ConditionsLogic)
	}
	if _, err := ParseConditions(rule.Conditions); err != nil {
		t.Fatalf("stored conditions should parse back: %v", err)
	}

	bad := []*AutomationRuleRequest{
		{Name: "x", RuleType: "quantum", TriggerType: TriggerWorkOrderCreated},
		{Name: "x", RuleType: models.RuleTypeStatusChange, TriggerType: "big_bang"},
		{Name: "x", RuleType: models.RuleTypeStatusChange, TriggerType: TriggerWorkOrderCreated, ConditionsLogic: "most"},
		{Name: "x", RuleType: models.RuleTypeStatusChange, TriggerType: TriggerWorkOrderCreated,
			Conditions: []Condition{{Type: "weather", Value: "rain"}}},
		{Name: "x", RuleType: models.RuleTypeStatusChange, TriggerType: TriggerWorkOrderCreated,
			Actions: []Action{{Type: ActionUpdateStatus, ExecuteOn: "tomorrow"}}},
	}
	for i, req := range bad {
		if _, err := svc.CreateRule(ctx, req); err == nil {
			t.Fatalf("request %d should have been rejected", i)
		}
	}
}

func TestUpdateRule_PreservesBookkeeping(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestAutomation(t, db)
	ctx := context.Background()

	created, err := svc.CreateRule(ctx, &AutomationRuleRequest{
		Name: "v1", RuleType: models.RuleTypeStatusChange, TriggerType: TriggerWorkOrderCreated,
	})
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	lastRun := time.Now().Add(-time.Hour)
	db.Model(created).Updates(map[string]interface{}{"execution_count": 7, "last_executed_at": lastRun})

	updated, err := svc.UpdateRule(ctx, created.ID, &AutomationRuleRequest{
		Name: "v2", RuleType: models.RuleTypeStatusChange, TriggerType: TriggerStatusTransition, Priority: 3,
	})
	if err != nil {
		t.Fatalf("UpdateRule failed: %v", err)
	}
	if updated.Name != "v2" || updated.TriggerType != TriggerStatusTransition || updated.Priority != 3 {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.ExecutionCount != 7 || updated.LastExecutedAt == nil {
		t.Fatalf("bookkeeping should survive updates: %+v", updated)
	}

	if _, err := svc.UpdateRule(ctx, 999, &AutomationRuleRequest{
		Name: "ghost", RuleType: models.RuleTypeStatusChange, TriggerType: TriggerWorkOrderCreated,
	}); err == nil {
		t.Fatal("updating a missing rule should fail")
	}
}

func TestSetRuleActiveAndDelete(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestAutomation(t, db)
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, &AutomationRuleRequest{
		Name: "toggle", RuleType: models.RuleTypeStatusChange, TriggerType: TriggerWorkOrderCreated,
	})
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	if err := svc.SetRuleActive(ctx, rule.ID, false); err != nil {
		t.Fatalf("SetRuleActive failed: %v", err)
	}
	fresh, err := svc.GetRule(ctx, rule.ID)
	if err != nil || fresh.IsActive {
		t.Fatalf("rule should be inactive: %+v %v", fresh, err)
	}

	if err := svc.DeleteRule(ctx, rule.ID); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}
	if err := svc.DeleteRule(ctx, rule.ID); err == nil {
		t.Fatal("deleting twice should fail")
	}
	if err := svc.SetRuleActive(ctx, rule.ID, true); err == nil {
		t.Fatal("toggling a deleted rule should fail")
	}
}

func TestListExecutionLogs_Filters(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestAutomation(t, db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	rows := []models.RuleExecutionLog{
		{RuleID: 1, WorkOrderID: 10, Status: OutcomeSuccess, CreatedAt: base},
		{RuleID: 1, WorkOrderID: 11, Status: OutcomeFailed, CreatedAt: base.Add(time.Minute)},
		{RuleID: 2, WorkOrderID: 10, Status: OutcomePartial, Dismissed: true, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("failed to insert log: %v", err)
		}
	}

	ruleID := uint(1)
	logs, total, err := svc.ListExecutionLogs(ctx, &ExecutionLogListRequest{Page: 1, PageSize: 20, RuleID: &ruleID})
	if err != nil || total != 2 || len(logs) != 2 {
		t.Fatalf("rule filter failed: %d %d %v", total, len(logs), err)
	}
	// Newest first.
	if logs[0].WorkOrderID != 11 {
		t.Fatalf("expected newest log first, got %+v", logs[0])
	}

	dismissed := false
	logs, total, err = svc.ListExecutionLogs(ctx, &ExecutionLogListRequest{
		Page: 1, PageSize: 20, Status: []string{OutcomeSuccess, OutcomePartial}, Dismissed: &dismissed,
	})
	if err != nil || total != 1 || logs[0].Status != OutcomeSuccess {
		t.Fatalf("status/dismissed filter failed: %d %v %+v", total, err, logs)
	}

	if err := svc.DismissLog(ctx, 999); err == nil {
		t.Fatal("dismissing a missing log should fail")
	}
}

func TestRetryFiring_RunsAgainstCurrentState(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestAutomation(t, db)
	ctx := context.Background()

	wo := &models.WorkOrder{Number: "WO-RETRY1", Title: "Retry", Status: models.StatusNew, Priority: "Low"}
	if err := db.Create(wo).Error; err != nil {
		t.Fatalf("failed to insert work order: %v", err)
	}
	rule := &models.AutomationRule{
		Name: "bump priority", RuleType: models.RuleTypePriorityChange, IsActive: true,
		TriggerType: TriggerWorkOrderCreated,
		Actions:     `[{"type":"update_priority","parameters":{"priority":"Urgent"}}]`,
	}
	if err := db.Create(rule).Error; err != nil {
		t.Fatalf("failed to insert rule: %v", err)
	}
	entry := &models.RuleExecutionLog{RuleID: rule.ID, WorkOrderID: wo.ID, Status: OutcomeFailed}
	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("failed to insert log: %v", err)
	}

	outcome, err := svc.RetryFiring(ctx, entry.ID)
	if err != nil {
		t.Fatalf("RetryFiring failed: %v", err)
	}
	if outcome.Status != OutcomeSuccess {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	var fresh models.WorkOrder
	db.First(&fresh, wo.ID)
	if fresh.Priority != "Urgent" {
		t.Fatalf("retry did not apply action: %+v", fresh)
	}

	// The retry appends a new audit entry; the original is untouched.
	var logs []models.RuleExecutionLog
	db.Order("id ASC").Find(&logs)
	if len(logs) != 2 || logs[1].TriggerContext != "manual_retry" {
		t.Fatalf("expected manual_retry entry, got %+v", logs)
	}

	if _, err := svc.RetryFiring(ctx, 999); err == nil {
		t.Fatal("retrying a missing log should fail")
	}
}
