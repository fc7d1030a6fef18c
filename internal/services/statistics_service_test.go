package services

import (
	"context"
	"testing"
	"time"

	"fleetfix/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newStatsTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Technician{}, &models.Asset{},
		&models.WorkOrder{}, &models.AutomationRule{}, &models.RuleExecutionLog{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestGetDashboardStats(t *testing.T) {
	db := newStatsTestDB(t)
	svc := NewStatisticsService(db, logrus.New())
	ctx := context.Background()

	now := time.Now()
	overdueDue := now.Add(-time.Hour)
	onTrackDue := now.Add(20 * time.Hour)
	orders := []models.WorkOrder{
		{Number: "WO-ST1", Title: "a", Status: models.StatusNew, Priority: "High", CreatedAt: now.Add(-2 * time.Hour), SLADue: &overdueDue},
		{Number: "WO-ST2", Title: "b", Status: models.StatusInProgress, Priority: "Low", CreatedAt: now.Add(-2 * time.Hour), SLADue: &onTrackDue},
		{Number: "WO-ST3", Title: "c", Status: models.StatusCompleted, Priority: "Low", CreatedAt: now.Add(-2 * time.Hour), SLADue: &overdueDue},
	}
	for i := range orders {
		if err := db.Create(&orders[i]).Error; err != nil {
			t.Fatalf("failed to insert work order: %v", err)
		}
	}
	db.Create(&models.Technician{UserID: 1, Status: "available", MaxConcurrent: 5})
	db.Create(&models.Technician{UserID: 2, Status: "busy", MaxConcurrent: 5})
	db.Create(&models.AutomationRule{Name: "active", RuleType: models.RuleTypeSLAEscalation, IsActive: true, TriggerType: TriggerSLAStatusEscalation})
	db.Create(&models.AutomationRule{Name: "dormant", RuleType: models.RuleTypeStatusChange, IsActive: false, TriggerType: TriggerStatusTransition})
	db.Create(&models.RuleExecutionLog{RuleID: 1, RuleType: models.RuleTypeSLAEscalation, WorkOrderID: 1, Status: OutcomeSuccess, CreatedAt: now})
	db.Create(&models.RuleExecutionLog{RuleID: 1, RuleType: models.RuleTypeSLAEscalation, WorkOrderID: 2, Status: OutcomeFailed, CreatedAt: now})

	stats, err := svc.GetDashboardStats(ctx)
	if err != nil {
		t.Fatalf("GetDashboardStats failed: %v", err)
	}
	if stats.TotalWorkOrders != 3 || stats.NewWorkOrders != 1 || stats.CompletedWorkOrders != 1 {
		t.Fatalf("unexpected work order counts: %+v", stats)
	}
	if stats.AvailableTechnicians != 1 || stats.BusyTechnicians != 1 {
		t.Fatalf("unexpected technician counts: %+v", stats)
	}
	if stats.TotalRules != 2 || stats.ActiveRules != 1 {
		t.Fatalf("unexpected rule counts: %+v", stats)
	}
	if stats.FiringsToday != 2 || stats.FailedFiringsToday != 1 {
		t.Fatalf("unexpected firing counts: %+v", stats)
	}
	// The completed overdue order is terminal and excluded from live SLA
	// classification.
	if stats.SLAOverdueCount != 1 || stats.SLAOnTrackCount != 1 || stats.SLAAtRiskCount != 0 {
		t.Fatalf("unexpected SLA counts: %+v", stats)
	}
}

func TestGetTimeRangeStats(t *testing.T) {
	db := newStatsTestDB(t)
	svc := NewStatisticsService(db, logrus.New())
	ctx := context.Background()

	today := time.Now()
	yesterday := today.AddDate(0, 0, -1)
	db.Create(&models.WorkOrder{Number: "WO-TR1", Title: "a", Status: models.StatusNew, CreatedAt: today})
	db.Create(&models.WorkOrder{Number: "WO-TR2", Title: "b", Status: models.StatusNew, CreatedAt: yesterday})

	stats, err := svc.GetTimeRangeStats(ctx, 3)
	if err != nil {
		t.Fatalf("GetTimeRangeStats failed: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("expected 3 days, got %d", len(stats))
	}
	// Oldest day first, today last.
	if stats[2].WorkOrders != 1 || stats[1].WorkOrders != 1 || stats[0].WorkOrders != 0 {
		t.Fatalf("unexpected daily counts: %+v", stats)
	}

	// Non-positive input falls back to a week.
	stats, err = svc.GetTimeRangeStats(ctx, 0)
	if err != nil || len(stats) != 7 {
		t.Fatalf("expected 7-day fallback, got %d %v", len(stats), err)
	}
}

func TestCategoryAndPriorityStats(t *testing.T) {
	db := newStatsTestDB(t)
	svc := NewStatisticsService(db, logrus.New())
	ctx := context.Background()

	orders := []models.WorkOrder{
		{Number: "WO-CP1", Title: "a", Category: "Brakes", Priority: "High"},
		{Number: "WO-CP2", Title: "b", Category: "Brakes", Priority: "Low"},
		{Number: "WO-CP3", Title: "c", Category: "Tires", Priority: "High"},
		{Number: "WO-CP4", Title: "d", Category: "", Priority: "High"},
	}
	for i := range orders {
		if err := db.Create(&orders[i]).Error; err != nil {
			t.Fatalf("failed to insert work order: %v", err)
		}
	}

	cats, err := svc.GetCategoryStats(ctx)
	if err != nil {
		t.Fatalf("GetCategoryStats failed: %v", err)
	}
	if len(cats) != 2 || cats[0].Category != "Brakes" || cats[0].Count != 2 {
		t.Fatalf("unexpected category stats: %+v", cats)
	}

	prios, err := svc.GetPriorityStats(ctx)
	if err != nil {
		t.Fatalf("GetPriorityStats failed: %v", err)
	}
	if len(prios) != 2 || prios[0].Priority != "High" || prios[0].Count != 3 {
		t.Fatalf("unexpected priority stats: %+v", prios)
	}
}
