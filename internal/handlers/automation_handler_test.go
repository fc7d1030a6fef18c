package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"fleetfix/internal/models"
	"fleetfix/internal/services"
)

func newAutomationHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Technician{}, &models.Location{}, &models.Asset{},
		&models.WorkOrder{}, &models.WorkOrderActivity{}, &models.Task{},
		&models.Notification{}, &models.AppSetting{},
		&models.AutomationRule{}, &models.RuleExecutionLog{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newAutomationRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	snapshots := services.NewSnapshotProvider(db)
	evaluator := services.NewConditionEvaluator(logger)
	selector := services.NewRuleSelector(db, evaluator, logger)
	notifications := services.NewNotificationService(db, logger, nil)
	executor := services.NewActionExecutor(db, logger, notifications)
	svc := services.NewAutomationService(db, logger, snapshots, selector, executor)

	r := gin.New()
	RegisterAutomationRoutes(r.Group("/api"), NewAutomationHandler(svc, logger))
	return r
}

func validRuleBody(name string) map[string]any {
	return map[string]any{
		"name":         name,
		"rule_type":    models.RuleTypeStatusChange,
		"trigger_type": services.TriggerWorkOrderCreated,
		"conditions": []map[string]any{
			{"type": "priority", "value": "High"},
		},
		"actions": []map[string]any{
			{"type": "update_priority", "parameters": map[string]any{"priority": "Urgent"}},
		},
	}
}

func TestAutomationHandler_RuleLifecycle(t *testing.T) {
	db := newAutomationHandlerDB(t)
	r := newAutomationRouter(t, db)

	w := doJSON(t, r, http.MethodPost, "/api/automation/rules", validRuleBody("bump urgent"))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	var rule models.AutomationRule
	if err := json.Unmarshal(w.Body.Bytes(), &rule); err != nil {
		t.Fatalf("unmarshal rule: %v", err)
	}
	if rule.ID == 0 || !rule.IsActive || rule.ConditionsLogic != "all" {
		t.Fatalf("unexpected defaults: %+v", rule)
	}

	path := fmt.Sprintf("/api/automation/rules/%d", rule.ID)

	w = doJSON(t, r, http.MethodGet, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status=%d body=%s", w.Code, w.Body.String())
	}

	body := validRuleBody("bump urgent v2")
	body["priority"] = 50
	w = doJSON(t, r, http.MethodPut, path, body)
	if w.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", w.Code, w.Body.String())
	}
	var updated models.AutomationRule
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal updated: %v", err)
	}
	if updated.Name != "bump urgent v2" || updated.Priority != 50 {
		t.Fatalf("update not applied: %+v", updated)
	}

	w = doJSON(t, r, http.MethodPut, path+"/active", map[string]any{"active": false})
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate status=%d body=%s", w.Code, w.Body.String())
	}

	// active=true filter hides the deactivated rule
	w = doJSON(t, r, http.MethodGet, "/api/automation/rules?active=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d", w.Code)
	}
	var active []models.AutomationRule
	if err := json.Unmarshal(w.Body.Bytes(), &active); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("deactivated rule should be filtered out, got %d", len(active))
	}

	w = doJSON(t, r, http.MethodDelete, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodGet, path, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d, want 404", w.Code)
	}
}

func TestAutomationHandler_CreateRejectsBadConfig(t *testing.T) {
	db := newAutomationHandlerDB(t)
	r := newAutomationRouter(t, db)

	// unknown condition type is rejected at save time, not trigger time
	body := validRuleBody("bad condition")
	body["conditions"] = []map[string]any{{"type": "astrological_sign", "value": "leo"}}
	w := doJSON(t, r, http.MethodPost, "/api/automation/rules", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad condition status=%d, want 400", w.Code)
	}

	body = validRuleBody("bad rule type")
	body["rule_type"] = "time_travel"
	w = doJSON(t, r, http.MethodPost, "/api/automation/rules", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad rule type status=%d, want 400", w.Code)
	}

	// binding: name is required
	body = validRuleBody("")
	delete(body, "name")
	w = doJSON(t, r, http.MethodPost, "/api/automation/rules", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing name status=%d, want 400", w.Code)
	}
}

func TestAutomationHandler_ExecutionLogs(t *testing.T) {
	db := newAutomationHandlerDB(t)
	r := newAutomationRouter(t, db)

	rule := &models.AutomationRule{
		Name: "log source", RuleType: models.RuleTypeStatusChange, IsActive: true,
		TriggerType: services.TriggerWorkOrderCreated,
		Conditions:  "[]", Actions: `[{"type":"add_to_watchlist"}]`, ConditionsLogic: "all",
	}
	if err := db.Create(rule).Error; err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	wo := &models.WorkOrder{Number: "WO-LOGS1", Title: "Tire rotation", Status: models.StatusNew, Priority: "Medium"}
	if err := db.Create(wo).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	log := &models.RuleExecutionLog{
		RuleID: rule.ID, RuleName: rule.Name, RuleType: rule.RuleType,
		WorkOrderID: wo.ID, Status: services.OutcomeSuccess, TriggerContext: "work_order_created",
	}
	if err := db.Create(log).Error; err != nil {
		t.Fatalf("seed log: %v", err)
	}

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/automation/logs?rule_id=%d", rule.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list logs status=%d body=%s", w.Code, w.Body.String())
	}
	var page PaginatedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected one log, got total=%d", page.Total)
	}

	// dismiss clears the duplicate-escalation guard
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/automation/logs/%d/dismiss", log.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dismiss status=%d body=%s", w.Code, w.Body.String())
	}
	var dismissed models.RuleExecutionLog
	if err := db.First(&dismissed, log.ID).Error; err != nil {
		t.Fatalf("reload log: %v", err)
	}
	if !dismissed.Dismissed {
		t.Fatalf("log should be marked dismissed")
	}

	w = doJSON(t, r, http.MethodPost, "/api/automation/logs/9999/dismiss", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("dismiss missing log status=%d, want 404", w.Code)
	}
}

func TestAutomationHandler_RetryFiring(t *testing.T) {
	db := newAutomationHandlerDB(t)
	r := newAutomationRouter(t, db)

	rule := &models.AutomationRule{
		Name: "retry target", RuleType: models.RuleTypeStatusChange, IsActive: true,
		TriggerType: services.TriggerWorkOrderCreated,
		Conditions:  "[]", Actions: `[{"type":"update_priority","parameters":{"priority":"High"}}]`, ConditionsLogic: "all",
	}
	if err := db.Create(rule).Error; err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	wo := &models.WorkOrder{Number: "WO-RETRY1", Title: "Alignment check", Status: models.StatusNew, Priority: "Low"}
	if err := db.Create(wo).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	log := &models.RuleExecutionLog{
		RuleID: rule.ID, RuleName: rule.Name, RuleType: rule.RuleType,
		WorkOrderID: wo.ID, Status: services.OutcomeFailed, TriggerContext: "work_order_created",
	}
	if err := db.Create(log).Error; err != nil {
		t.Fatalf("seed log: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/automation/logs/%d/retry", log.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("retry status=%d body=%s", w.Code, w.Body.String())
	}
	var outcome services.ExecutionOutcome
	if err := json.Unmarshal(w.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("unmarshal outcome: %v", err)
	}
	if outcome.Status != services.OutcomeSuccess {
		t.Fatalf("retry outcome=%q, want success", outcome.Status)
	}

	var reloaded models.WorkOrder
	if err := db.First(&reloaded, wo.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Priority != "High" {
		t.Fatalf("retry should re-apply the action, priority=%q", reloaded.Priority)
	}
}
