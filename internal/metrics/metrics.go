package metrics

import (
	"sync"
	"sync/atomic"
)

// rateLimitStats holds counters for rate limit drops (HTTP 429).
// Kept simple/thread-safe for use from middlewares and exposition.
type rateLimitStats struct {
	total    uint64
	mu       sync.Mutex
	byPrefix map[string]uint64
}

var rl rateLimitStats

// IncRateLimitDrop increments drop counters for the given prefix.
// Use prefix "global" for global limiter rejections.
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	atomic.AddUint64(&rl.total, 1)
	rl.mu.Lock()
	if rl.byPrefix == nil {
		rl.byPrefix = make(map[string]uint64)
	}
	rl.byPrefix[prefix]++
	rl.mu.Unlock()
}

// RateLimitSnapshot returns a copy of the current counters.
func RateLimitSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&rl.total)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	by = make(map[string]uint64, len(rl.byPrefix))
	for k, v := range rl.byPrefix {
		by[k] = v
	}
	return total, by
}

// automationStats counts rule firings by overall status plus sweep totals.
type automationStats struct {
	firingsTotal  uint64
	mu            sync.Mutex
	firingsByStat map[string]uint64

	sweepsRun            uint64
	entitiesChecked      uint64
	escalationsTriggered uint64
}

var auto automationStats

// IncRuleFiring records one rule firing with its overall status
// (success/partial/failed).
func IncRuleFiring(status string) {
	atomic.AddUint64(&auto.firingsTotal, 1)
	auto.mu.Lock()
	if auto.firingsByStat == nil {
		auto.firingsByStat = make(map[string]uint64)
	}
	auto.firingsByStat[status]++
	auto.mu.Unlock()
}

// RecordSweep accumulates one sweep tick's totals.
func RecordSweep(entitiesChecked, escalationsTriggered int) {
	atomic.AddUint64(&auto.sweepsRun, 1)
	atomic.AddUint64(&auto.entitiesChecked, uint64(entitiesChecked))
	atomic.AddUint64(&auto.escalationsTriggered, uint64(escalationsTriggered))
}

// AutomationSnapshot returns a copy of the automation counters.
func AutomationSnapshot() (firingsTotal uint64, byStatus map[string]uint64, sweepsRun, entitiesChecked, escalationsTriggered uint64) {
	firingsTotal = atomic.LoadUint64(&auto.firingsTotal)
	auto.mu.Lock()
	byStatus = make(map[string]uint64, len(auto.firingsByStat))
	for k, v := range auto.firingsByStat {
		byStatus[k] = v
	}
	auto.mu.Unlock()
	sweepsRun = atomic.LoadUint64(&auto.sweepsRun)
	entitiesChecked = atomic.LoadUint64(&auto.entitiesChecked)
	escalationsTriggered = atomic.LoadUint64(&auto.escalationsTriggered)
	return
}
