package services

import (
	"context"
	"time"

	"fleetfix/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StatisticsService 数据统计服务
type StatisticsService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(db *gorm.DB, logger *logrus.Logger) *StatisticsService {
	if logger == nil {
		logger = logrus.New()
	}

	return &StatisticsService{
		db:     db,
		logger: logger,
	}
}

// DashboardStats 仪表板统计数据
type DashboardStats struct {
	// 总体统计
	TotalWorkOrders  int64 `json:"total_work_orders"`
	TotalTechnicians int64 `json:"total_technicians"`
	TotalAssets      int64 `json:"total_assets"`
	TotalRules       int64 `json:"total_rules"`

	// 今日统计
	TodayWorkOrders  int64 `json:"today_work_orders"`
	TodayCompleted   int64 `json:"today_completed"`
	TodayEscalations int64 `json:"today_escalations"`

	// 状态统计
	NewWorkOrders        int64 `json:"new_work_orders"`
	AssignedWorkOrders   int64 `json:"assigned_work_orders"`
	InProgressWorkOrders int64 `json:"in_progress_work_orders"`
	OnHoldWorkOrders     int64 `json:"on_hold_work_orders"`
	CompletedWorkOrders  int64 `json:"completed_work_orders"`

	// SLA 状态（基于当前时间实时计算）
	SLAOnTrackCount int64 `json:"sla_on_track_count"`
	SLAAtRiskCount  int64 `json:"sla_at_risk_count"`
	SLAOverdueCount int64 `json:"sla_overdue_count"`

	// 技师状态
	AvailableTechnicians int64 `json:"available_technicians"`
	BusyTechnicians      int64 `json:"busy_technicians"`

	// 自动化统计
	ActiveRules        int64 `json:"active_rules"`
	FiringsToday       int64 `json:"firings_today"`
	FailedFiringsToday int64 `json:"failed_firings_today"`
}

// TimeRangeStats 时间范围统计
type TimeRangeStats struct {
	Date       string `json:"date"`
	WorkOrders int64  `json:"work_orders"`
	Completed  int64  `json:"completed"`
	Escalated  int64  `json:"escalated"`
}

// CategoryStats 分类统计
type CategoryStats struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// PriorityStats 优先级统计
type PriorityStats struct {
	Priority string `json:"priority"`
	Count    int64  `json:"count"`
}

// GetDashboardStats 获取仪表板统计数据
func (s *StatisticsService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}
	today := time.Now().Truncate(24 * time.Hour)
	db := s.db.WithContext(ctx)

	// 总体统计
	db.Model(&models.WorkOrder{}).Count(&stats.TotalWorkOrders)
	db.Model(&models.Technician{}).Count(&stats.TotalTechnicians)
	db.Model(&models.Asset{}).Count(&stats.TotalAssets)
	db.Model(&models.AutomationRule{}).Count(&stats.TotalRules)

	// 今日统计
	db.Model(&models.WorkOrder{}).Where("created_at >= ?", today).Count(&stats.TodayWorkOrders)
	db.Model(&models.WorkOrder{}).Where("completed_at >= ?", today).Count(&stats.TodayCompleted)
	db.Model(&models.RuleExecutionLog{}).
		Where("rule_type = ? AND created_at >= ?", models.RuleTypeSLAEscalation, today).
		Count(&stats.TodayEscalations)

	// 状态统计
	db.Model(&models.WorkOrder{}).Where("status = ?", models.StatusNew).Count(&stats.NewWorkOrders)
	db.Model(&models.WorkOrder{}).Where("status = ?", models.StatusAssigned).Count(&stats.AssignedWorkOrders)
	db.Model(&models.WorkOrder{}).Where("status = ?", models.StatusInProgress).Count(&stats.InProgressWorkOrders)
	db.Model(&models.WorkOrder{}).Where("status = ?", models.StatusOnHold).Count(&stats.OnHoldWorkOrders)
	db.Model(&models.WorkOrder{}).Where("status = ?", models.StatusCompleted).Count(&stats.CompletedWorkOrders)

	// 技师状态
	db.Model(&models.Technician{}).Where("status = ?", "available").Count(&stats.AvailableTechnicians)
	db.Model(&models.Technician{}).Where("status = ?", "busy").Count(&stats.BusyTechnicians)

	// 自动化统计
	db.Model(&models.AutomationRule{}).Where("is_active = ?", true).Count(&stats.ActiveRules)
	db.Model(&models.RuleExecutionLog{}).Where("created_at >= ?", today).Count(&stats.FiringsToday)
	db.Model(&models.RuleExecutionLog{}).
		Where("status = ? AND created_at >= ?", OutcomeFailed, today).
		Count(&stats.FailedFiringsToday)

	if err := s.countSLAStatuses(ctx, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// countSLAStatuses classifies every active SLA-bound order at the current
// instant. Counts are derived, never stored.
func (s *StatisticsService) countSLAStatuses(ctx context.Context, stats *DashboardStats) error {
	var orders []models.WorkOrder
	err := s.db.WithContext(ctx).
		Where("sla_due IS NOT NULL AND status NOT IN ?", models.TerminalStatuses).
		Find(&orders).Error
	if err != nil {
		return err
	}
	now := time.Now()
	for i := range orders {
		snap := snapshotFromModel(&orders[i])
		switch ComputeSLAStatus(snap, now).Status {
		case SLAOnTrack:
			stats.SLAOnTrackCount++
		case SLAAtRisk:
			stats.SLAAtRiskCount++
		case SLAOverdue:
			stats.SLAOverdueCount++
		}
	}
	return nil
}

// GetTimeRangeStats 获取时间范围内的每日统计
func (s *StatisticsService) GetTimeRangeStats(ctx context.Context, days int) ([]TimeRangeStats, error) {
	if days <= 0 {
		days = 7
	}
	var results []TimeRangeStats
	db := s.db.WithContext(ctx)

	for i := days - 1; i >= 0; i-- {
		dayStart := time.Now().Truncate(24 * time.Hour).AddDate(0, 0, -i)
		dayEnd := dayStart.Add(24 * time.Hour)
		stat := TimeRangeStats{Date: dayStart.Format("2006-01-02")}

		db.Model(&models.WorkOrder{}).
			Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
			Count(&stat.WorkOrders)
		db.Model(&models.WorkOrder{}).
			Where("completed_at >= ? AND completed_at < ?", dayStart, dayEnd).
			Count(&stat.Completed)
		db.Model(&models.RuleExecutionLog{}).
			Where("rule_type = ? AND created_at >= ? AND created_at < ?", models.RuleTypeSLAEscalation, dayStart, dayEnd).
			Count(&stat.Escalated)

		results = append(results, stat)
	}
	return results, nil
}

// GetCategoryStats 获取分类统计
func (s *StatisticsService) GetCategoryStats(ctx context.Context) ([]CategoryStats, error) {
	var results []CategoryStats
	err := s.db.WithContext(ctx).Model(&models.WorkOrder{}).
		Select("category, COUNT(*) as count").
		Where("category != ''").
		Group("category").
		Order("count DESC").
		Scan(&results).Error
	return results, err
}

// GetPriorityStats 获取优先级统计
func (s *StatisticsService) GetPriorityStats(ctx context.Context) ([]PriorityStats, error) {
	var results []PriorityStats
	err := s.db.WithContext(ctx).Model(&models.WorkOrder{}).
		Select("priority, COUNT(*) as count").
		Group("priority").
		Order("count DESC").
		Scan(&results).Error
	return results, err
}
