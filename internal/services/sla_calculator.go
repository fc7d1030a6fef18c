package services

import "time"

// SLA phases.
const (
	SLAOnTrack = "on-track"
	SLAAtRisk  = "at-risk"
	SLAOverdue = "overdue"
	SLANoSLA   = "no-sla"
)

// Percentage of the SLA window at which a work order becomes at-risk.
const slaAtRiskThreshold = 75.0

// SLAStatus is the derived SLA phase for one work order. It is computed
// fresh on every sweep tick and never persisted or cached.
type SLAStatus struct {
	WorkOrderID        uint     `json:"work_order_id"`
	Status             string   `json:"status"`
	ConsumedPercent    float64  `json:"sla_consumed_percent"`
	TimeRemainingHours *float64 `json:"time_remaining_hours,omitempty"`
	TimeOverdueHours   *float64 `json:"time_overdue_hours,omitempty"`
}

// ComputeSLAStatus derives the SLA phase for a snapshot at the given time.
// Pure and deterministic given now.
//
// Effective elapsed time subtracts accumulated pause time from the wall
// clock. The consumed percentage is intentionally unclamped: overdue orders
// legitimately report >100%, and malformed pause data (paused longer than
// the order has existed) surfaces as a negative value rather than being
// silently corrected.
func ComputeSLAStatus(snap *WorkOrderSnapshot, now time.Time) SLAStatus {
	status := SLAStatus{WorkOrderID: snap.ID}

	if snap.SLADue == nil {
		status.Status = SLANoSLA
		status.ConsumedPercent = 0
		return status
	}

	due := *snap.SLADue
	window := due.Sub(snap.CreatedAt)
	elapsed := now.Sub(snap.CreatedAt) - time.Duration(snap.TotalPausedSeconds)*time.Second

	if window > 0 {
		status.ConsumedPercent = elapsed.Hours() / window.Hours() * 100
	} else {
		// Zero or inverted window: every consumed second is overtime.
		status.ConsumedPercent = 100
	}

	if now.After(due) {
		status.Status = SLAOverdue
		overdue := now.Sub(due).Hours()
		status.TimeOverdueHours = &overdue
		return status
	}

	remaining := due.Sub(now).Hours()
	status.TimeRemainingHours = &remaining
	if status.ConsumedPercent >= slaAtRiskThreshold {
		status.Status = SLAAtRisk
	} else {
		status.Status = SLAOnTrack
	}
	return status
}
