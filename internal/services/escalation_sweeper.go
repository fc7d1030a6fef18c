package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleetfix/internal/metrics"
	"fleetfix/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const defaultSweepWorkers = 4

// SweepEntityOutcome 单个工单在一次巡检中的结果
type SweepEntityOutcome struct {
	WorkOrderID     uint    `json:"work_order_id"`
	Number          string  `json:"number"`
	SLAStatus       string  `json:"sla_status"`
	ConsumedPercent float64 `json:"sla_consumed_percent"`
	RuleID          uint    `json:"rule_id,omitempty"`
	RuleName        string  `json:"rule_name,omitempty"`
	Outcome         string  `json:"outcome,omitempty"` // success, partial, failed, skipped_duplicate
}

// SweepResult aggregates one sweep invocation.
type SweepResult struct {
	Skipped              bool                 `json:"skipped"`
	Message              string               `json:"message,omitempty"`
	EntitiesChecked      int                  `json:"entities_checked"`
	EscalationsTriggered int                  `json:"escalations_triggered"`
	DurationMs           int64                `json:"duration_ms"`
	Outcomes             []SweepEntityOutcome `json:"outcomes,omitempty"`
}

// EscalationSweeper periodically recomputes SLA status across all active
// work orders and fires sla_escalation rules on the ones that slipped.
type EscalationSweeper struct {
	db         *gorm.DB
	logger     *logrus.Logger
	tracer     trace.Tracer
	settings   *SettingsService
	snapshots  *SnapshotProvider
	automation *AutomationService
	workers    int
	hub        *RealtimeHub

	// Guards against overlapping ticks in-process. One active sweeper per
	// deployment is an external invariant; this mutex only covers this
	// process's own scheduler.
	running sync.Mutex
}

func NewEscalationSweeper(db *gorm.DB, logger *logrus.Logger, settings *SettingsService, snapshots *SnapshotProvider, automation *AutomationService, workers int) *EscalationSweeper {
	if logger == nil {
		logger = logrus.New()
	}
	if workers <= 0 {
		workers = defaultSweepWorkers
	}
	return &EscalationSweeper{
		db:         db,
		logger:     logger,
		tracer:     otel.Tracer("fleetfix.sweeper"),
		settings:   settings,
		snapshots:  snapshots,
		automation: automation,
		workers:    workers,
	}
}

// SetHub 注入实时推送（可选）
func (s *EscalationSweeper) SetHub(hub *RealtimeHub) {
	s.hub = hub
}

// RunSweep executes one sweep tick. The guard check and rule/entity loading
// are fatal on store failure; per-entity action failures are recorded and
// never stop the remaining entities.
func (s *EscalationSweeper) RunSweep(ctx context.Context) (*SweepResult, error) {
	if !s.running.TryLock() {
		return &SweepResult{Skipped: true, Message: "sweep already in progress"}, nil
	}
	defer s.running.Unlock()

	ctx, span := s.tracer.Start(ctx, "sweeper.run")
	defer span.End()

	start := time.Now()

	enabled, err := s.settings.GetBool(ctx, SettingSLAMonitoringEnabled, true)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sweep aborted: %w", err)
	}
	if !enabled {
		return &SweepResult{
			Skipped:    true,
			Message:    "SLA monitoring is disabled",
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}

	rules, err := s.loadEscalationRules(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sweep aborted: %w", err)
	}
	if len(rules) == 0 {
		return &SweepResult{
			Message:    "no active escalation rules",
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}

	snaps, err := s.snapshots.ListActiveSLAEntities(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sweep aborted: %w", err)
	}

	now := time.Now()
	result := &SweepResult{EntitiesChecked: len(snaps)}

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		firedRules = make(map[uint]struct{})
	)
	jobs := make(chan *WorkOrderSnapshot)

	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snap := range jobs {
				outcomes, fired := s.sweepEntity(ctx, rules, snap, now)
				mu.Lock()
				result.Outcomes = append(result.Outcomes, outcomes...)
				result.EscalationsTriggered += len(fired)
				for _, id := range fired {
					firedRules[id] = struct{}{}
				}
				mu.Unlock()
			}
		}()
	}

	// Cancellation is observed between entities, never mid-action.
feed:
	for _, snap := range snaps {
		select {
		case <-ctx.Done():
			s.logger.Warnf("sweep cancelled after feeding part of the batch: %v", ctx.Err())
			break feed
		case jobs <- snap:
		}
	}
	close(jobs)
	wg.Wait()

	// Bookkeeping once per fired rule per sweep, not once per entity.
	for ruleID := range firedRules {
		if err := s.db.WithContext(ctx).Model(&models.AutomationRule{}).
			Where("id = ?", ruleID).
			Updates(map[string]interface{}{
				"execution_count":  gorm.Expr("execution_count + 1"),
				"last_executed_at": now,
			}).Error; err != nil {
			s.logger.Warnf("sweep: failed to update rule %d bookkeeping: %v", ruleID, err)
		}
	}

	// Deterministic aggregate regardless of worker interleaving.
	sort.Slice(result.Outcomes, func(i, j int) bool {
		a, b := result.Outcomes[i], result.Outcomes[j]
		if a.WorkOrderID != b.WorkOrderID {
			return a.WorkOrderID < b.WorkOrderID
		}
		return a.RuleID < b.RuleID
	})

	result.DurationMs = time.Since(start).Milliseconds()
	metrics.RecordSweep(result.EntitiesChecked, result.EscalationsTriggered)
	span.SetAttributes(
		attribute.Int("sweep.entities_checked", result.EntitiesChecked),
		attribute.Int("sweep.escalations_triggered", result.EscalationsTriggered),
	)
	s.logger.Infof("SLA sweep completed: checked %d work orders, triggered %d escalations in %dms",
		result.EntitiesChecked, result.EscalationsTriggered, result.DurationMs)
	if s.hub != nil {
		s.hub.BroadcastSweepResult(result)
	}

	return result, nil
}

// sweepEntity computes one work order's SLA status and fires every
// escalation rule whose target sets admit it. Returns the per-pair outcomes
// and the ids of rules that actually fired.
func (s *EscalationSweeper) sweepEntity(ctx context.Context, rules []escalationRule, snap *WorkOrderSnapshot, now time.Time) ([]SweepEntityOutcome, []uint) {
	status := ComputeSLAStatus(snap, now)
	base := SweepEntityOutcome{
		WorkOrderID:     snap.ID,
		Number:          snap.Number,
		SLAStatus:       status.Status,
		ConsumedPercent: status.ConsumedPercent,
	}
	if status.Status == SLANoSLA {
		return []SweepEntityOutcome{base}, nil
	}

	var outcomes []SweepEntityOutcome
	var fired []uint
	matchedAny := false

	for _, er := range rules {
		// Escalation rules match on derived SLA status and lifecycle
		// status via simple set membership, not condition trees.
		if !setContains(er.slaTargets, status.Status) {
			continue
		}
		if len(er.statuses) > 0 && !setContains(er.statuses, snap.Status) {
			continue
		}
		matchedAny = true

		o := base
		o.RuleID = er.rule.ID
		o.RuleName = er.rule.Name

		dup, err := s.alreadyEscalated(ctx, er.rule.ID, snap.ID)
		if err != nil {
			o.Outcome = OutcomeFailed
			s.logger.Warnf("sweep: duplicate check failed for rule %d / work order %d: %v",
				er.rule.ID, snap.ID, err)
			outcomes = append(outcomes, o)
			continue
		}
		if dup {
			o.Outcome = "skipped_duplicate"
			outcomes = append(outcomes, o)
			continue
		}

		m := MatchedRule{Rule: er.rule, Conditions: nil, Actions: er.actions}
		res := s.automation.FireRule(ctx, m, snap, "sla_sweep", map[string]interface{}{
			"sla_consumed_percent": status.ConsumedPercent,
			"escalation_level":     1,
		})
		o.Outcome = res.Status
		outcomes = append(outcomes, o)
		fired = append(fired, er.rule.ID)
	}

	if !matchedAny {
		outcomes = append(outcomes, base)
	}
	return outcomes, fired
}

// escalationRule is an active sla_escalation rule with its set columns and
// actions predecoded for the sweep.
type escalationRule struct {
	rule       models.AutomationRule
	slaTargets []string
	statuses   []string
	actions    []Action
}

func (s *EscalationSweeper) loadEscalationRules(ctx context.Context) ([]escalationRule, error) {
	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("rule_type = ? AND is_active = ?", models.RuleTypeSLAEscalation, true).
		Order("priority DESC, created_at ASC, id ASC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to load escalation rules: %w", err)
	}

	out := make([]escalationRule, 0, len(rules))
	for _, rule := range rules {
		actions, err := ParseActions(rule.Actions)
		if err != nil {
			s.logger.Warnf("sweep: rule %q has invalid actions, skipping: %v", rule.Name, err)
			continue
		}
		targets := splitSet(rule.EscalationSLATargets)
		if len(targets) == 0 {
			// Without explicit targets an escalation rule covers both
			// degraded phases.
			targets = []string{SLAAtRisk, SLAOverdue}
		}
		out = append(out, escalationRule{
			rule:       rule,
			slaTargets: targets,
			statuses:   splitSet(rule.EscalationStatuses),
			actions:    actions,
		})
	}
	return out, nil
}

// alreadyEscalated reports whether a non-dismissed execution log already
// exists for this (rule, work order) pair at the current escalation tier,
// which suppresses redundant re-firing on every subsequent tick.
func (s *EscalationSweeper) alreadyEscalated(ctx context.Context, ruleID, workOrderID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RuleExecutionLog{}).
		Where("rule_id = ? AND work_order_id = ? AND dismissed = ?", ruleID, workOrderID, false).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// StartSweepLoop 周期性SLA巡检（time.Ticker 驱动；cron 调度见 cmd/server）
func (s *EscalationSweeper) StartSweepLoop(ctx context.Context, interval time.Duration) {
	s.logger.Info("Starting SLA escalation sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SLA escalation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunSweep(ctx); err != nil {
				s.logger.Errorf("SLA sweep error: %v", err)
			}
		}
	}
}
