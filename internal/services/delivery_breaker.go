package services

import (
	"sync"
	"time"
)

// DeliveryState 投递熔断器状态
type DeliveryState int

const (
	DeliveryClosed   DeliveryState = iota // 正常投递
	DeliveryOpen                          // 熔断，跳过 webhook 投递
	DeliveryHalfOpen                      // 冷却后试探
)

func (s DeliveryState) String() string {
	switch s {
	case DeliveryClosed:
		return "closed"
	case DeliveryOpen:
		return "open"
	case DeliveryHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// DeliveryBreakerConfig webhook 投递熔断配置
type DeliveryBreakerConfig struct {
	MaxFailures    int           `yaml:"max_failures"`     // 连续失败阈值
	CoolOff        time.Duration `yaml:"cool_off"`         // 熔断后冷却时间
	HalfOpenProbes int           `yaml:"half_open_probes"` // 半开状态放行的试探投递数
}

func DefaultDeliveryBreakerConfig() *DeliveryBreakerConfig {
	return &DeliveryBreakerConfig{
		MaxFailures:    5,
		CoolOff:        60 * time.Second,
		HalfOpenProbes: 3,
	}
}

// DeliveryBreaker guards the notification dispatcher against a dead webhook
// endpoint. After MaxFailures consecutive delivery errors the breaker opens
// and dispatch ticks leave rows pending instead of burning retries; once
// CoolOff elapses a bounded number of probe deliveries decide whether the
// endpoint recovered.
type DeliveryBreaker struct {
	config       *DeliveryBreakerConfig
	state        DeliveryState
	failureCount int
	lastFailTime time.Time
	probes       int
	mutex        sync.RWMutex
}

func NewDeliveryBreaker(config *DeliveryBreakerConfig) *DeliveryBreaker {
	if config == nil {
		config = DefaultDeliveryBreakerConfig()
	}
	return &DeliveryBreaker{
		config: config,
		state:  DeliveryClosed,
	}
}

// Allow 检查本次投递是否放行
func (b *DeliveryBreaker) Allow() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case DeliveryClosed:
		return true

	case DeliveryOpen:
		// 冷却结束转半开
		if time.Since(b.lastFailTime) > b.config.CoolOff {
			b.state = DeliveryHalfOpen
			b.probes = 0
			return true
		}
		return false

	case DeliveryHalfOpen:
		// 半开状态限制试探数量
		if b.probes < b.config.HalfOpenProbes {
			b.probes++
			return true
		}
		return false

	default:
		return false
	}
}

// OnSuccess 记录一次成功投递
func (b *DeliveryBreaker) OnSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case DeliveryClosed:
		b.failureCount = 0

	case DeliveryHalfOpen:
		// 试探成功，端点恢复
		b.state = DeliveryClosed
		b.failureCount = 0
		b.probes = 0
	}
}

// OnFailure 记录一次投递失败
func (b *DeliveryBreaker) OnFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failureCount++
	b.lastFailTime = time.Now()

	switch b.state {
	case DeliveryClosed:
		if b.failureCount >= b.config.MaxFailures {
			b.state = DeliveryOpen
		}

	case DeliveryHalfOpen:
		// 试探失败，立即重新熔断
		b.state = DeliveryOpen
		b.probes = 0
	}
}

// State 当前状态
func (b *DeliveryBreaker) State() DeliveryState {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.state
}

// FailureCount 当前连续失败计数
func (b *DeliveryBreaker) FailureCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.failureCount
}

// Reset 人工复位（例如修复 webhook 端点之后）
func (b *DeliveryBreaker) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.state = DeliveryClosed
	b.failureCount = 0
	b.probes = 0
}

// Stats 投递熔断快照（运维可见）
func (b *DeliveryBreaker) Stats() map[string]interface{} {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return map[string]interface{}{
		"state":            b.state.String(),
		"failure_count":    b.failureCount,
		"last_fail_time":   b.lastFailTime,
		"half_open_probes": b.probes,
		"max_failures":     b.config.MaxFailures,
		"cool_off":         b.config.CoolOff,
	}
}
