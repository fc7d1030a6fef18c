package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"fleetfix/internal/models"
	"fleetfix/internal/services"
)

func newWorkOrderHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Technician{}, &models.Location{}, &models.Asset{},
		&models.WorkOrder{}, &models.WorkOrderActivity{}, &models.Task{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newWorkOrderRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	h := NewWorkOrderHandler(services.NewWorkOrderService(db, logger), logger)
	r := gin.New()
	RegisterWorkOrderRoutes(r.Group("/api"), h)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestWorkOrderHandler_CreateGetUpdateDelete(t *testing.T) {
	db := newWorkOrderHandlerDB(t)
	r := newWorkOrderRouter(t, db)

	w := doJSON(t, r, http.MethodPost, "/api/work-orders", map[string]any{
		"title":    "Replace brake pads",
		"priority": "High",
		"category": "Brakes",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	var created models.WorkOrder
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}
	if created.ID == 0 || !strings.HasPrefix(created.Number, "WO-") {
		t.Fatalf("unexpected created order: %+v", created)
	}
	if created.SLADue == nil {
		t.Fatalf("high-priority order should get a default SLA deadline")
	}

	path := fmt.Sprintf("/api/work-orders/%d", created.ID)

	w = doJSON(t, r, http.MethodGet, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status=%d body=%s", w.Code, w.Body.String())
	}

	newStatus := models.StatusInProgress
	w = doJSON(t, r, http.MethodPut, path, map[string]any{"status": newStatus})
	if w.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", w.Code, w.Body.String())
	}
	var updated models.WorkOrder
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal updated: %v", err)
	}
	if updated.Status != newStatus {
		t.Fatalf("status not updated: got %q", updated.Status)
	}

	w = doJSON(t, r, http.MethodDelete, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", w.Code, w.Body.String())
	}

	// Soft-deleted orders are gone from the read path.
	w = doJSON(t, r, http.MethodGet, path, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d, want 404", w.Code)
	}
	w = doJSON(t, r, http.MethodDelete, path, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("double delete status=%d, want 404", w.Code)
	}
}

func TestWorkOrderHandler_Validation(t *testing.T) {
	db := newWorkOrderHandlerDB(t)
	r := newWorkOrderRouter(t, db)

	// title is required
	w := doJSON(t, r, http.MethodPost, "/api/work-orders", map[string]any{"priority": "High"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing title status=%d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/work-orders/not-a-number", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status=%d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/work-orders/9999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing order status=%d, want 404", w.Code)
	}
}

func TestWorkOrderHandler_ListPagination(t *testing.T) {
	db := newWorkOrderHandlerDB(t)
	r := newWorkOrderRouter(t, db)

	for i := 0; i < 5; i++ {
		w := doJSON(t, r, http.MethodPost, "/api/work-orders", map[string]any{
			"title":    fmt.Sprintf("Oil change %d", i),
			"category": "Maintenance",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("seed create %d status=%d", i, w.Code)
		}
	}

	w := doJSON(t, r, http.MethodGet, "/api/work-orders?page=1&page_size=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d body=%s", w.Code, w.Body.String())
	}
	var page PaginatedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if page.Total != 5 || page.PageSize != 2 || page.Pages != 3 {
		t.Fatalf("pagination envelope mismatch: %+v", page)
	}

	// status filter that matches nothing
	w = doJSON(t, r, http.MethodGet, "/api/work-orders?status=Completed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("filtered list status=%d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("unmarshal filtered page: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected empty filtered page, got total=%d", page.Total)
	}
}

func TestWorkOrderHandler_AssignAndActivities(t *testing.T) {
	db := newWorkOrderHandlerDB(t)
	r := newWorkOrderRouter(t, db)

	if err := db.Create(&models.User{Username: "tech1", Name: "Tech One", Email: "tech1@example.com", Role: "technician"}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	tech := &models.Technician{UserID: 1, Status: "available", MaxConcurrent: 5}
	if err := db.Create(tech).Error; err != nil {
		t.Fatalf("seed technician: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/api/work-orders", map[string]any{"title": "Coolant leak"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d", w.Code)
	}
	var wo models.WorkOrder
	if err := json.Unmarshal(w.Body.Bytes(), &wo); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/work-orders/%d/assign", wo.ID), map[string]any{"technician_id": tech.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("assign status=%d body=%s", w.Code, w.Body.String())
	}
	var assigned models.WorkOrder
	if err := json.Unmarshal(w.Body.Bytes(), &assigned); err != nil {
		t.Fatalf("unmarshal assigned: %v", err)
	}
	if assigned.Status != models.StatusAssigned {
		t.Fatalf("assign should move New to Assigned, got %q", assigned.Status)
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/work-orders/%d/activities", wo.ID), map[string]any{"text": "ordered replacement hose"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add activity status=%d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/work-orders/%d/activities", wo.ID), map[string]any{"text": "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank activity status=%d, want 400", w.Code)
	}
}

func TestWorkOrderHandler_GetSLAStatus(t *testing.T) {
	db := newWorkOrderHandlerDB(t)
	r := newWorkOrderRouter(t, db)

	w := doJSON(t, r, http.MethodPost, "/api/work-orders", map[string]any{"title": "Battery swap", "priority": "Urgent"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d", w.Code)
	}
	var wo models.WorkOrder
	if err := json.Unmarshal(w.Body.Bytes(), &wo); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/work-orders/%d/sla", wo.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sla status=%d body=%s", w.Code, w.Body.String())
	}
	var status services.SLAStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal sla: %v", err)
	}
	if status.Status != services.SLAOnTrack {
		t.Fatalf("fresh urgent order should be on-track, got %q", status.Status)
	}
	if status.TimeRemainingHours == nil || *status.TimeRemainingHours <= 0 {
		t.Fatalf("expected positive time remaining, got %+v", status)
	}
}
