package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/flowstate/types"
	"go.uber.org/zap"
)

// CircuitState 熔断器状态
type CircuitState int

const (
	// CircuitClosed 正常放行
	CircuitClosed CircuitState = iota
	// CircuitOpen 拒绝调用，等待恢复
	CircuitOpen
	// CircuitHalfOpen 允许有限次探测调用
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	// FailureThreshold 连续失败多少次后打开熔断器，<=0 表示不启用
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`
	// RecoveryTimeout 打开后多久进入半开状态
	RecoveryTimeout time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	// HalfOpenMaxProbes 半开状态允许的探测次数
	HalfOpenMaxProbes int `yaml:"half_open_max_probes" json:"half_open_max_probes"`
	// SuccessThreshold 半开状态下连续成功多少次后关闭
	SuccessThreshold int `yaml:"success_threshold" json:"success_threshold"`
}

// DefaultCircuitBreakerConfig 默认熔断器配置
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		RecoveryTimeout:   30 * time.Second,
		HalfOpenMaxProbes: 3,
		SuccessThreshold:  2,
	}
}

// CircuitBreakerEvent 状态变更事件
type CircuitBreakerEvent struct {
	Stage     string       `json:"stage"`
	From      CircuitState `json:"from"`
	To        CircuitState `json:"to"`
	Timestamp time.Time    `json:"timestamp"`
	Reason    string       `json:"reason"`
	Failures  int          `json:"failures"`
}

// StateChangeFunc 接收状态变更事件，在熔断器锁外同步调用
type StateChangeFunc func(event CircuitBreakerEvent)

// CircuitBreaker 保护单个 stage 的外部调用
type CircuitBreaker struct {
	stage    string
	config   CircuitBreakerConfig
	onChange StateChangeFunc
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	probes    int
	openedAt  time.Time
}

// NewCircuitBreaker 创建熔断器，onChange 可以为 nil
func NewCircuitBreaker(stage string, config CircuitBreakerConfig, onChange StateChangeFunc, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		stage:    stage,
		config:   config,
		onChange: onChange,
		logger:   logger.With(zap.String("component", "circuit_breaker"), zap.String("stage", stage)),
		now:      time.Now,
	}
}

// AllowRequest 判断本次调用能否放行。拒绝时返回 CIRCUIT_OPEN 错误。
func (cb *CircuitBreaker) AllowRequest() (bool, error) {
	cb.mu.Lock()
	var event *CircuitBreakerEvent
	defer func() {
		cb.mu.Unlock()
		cb.emit(event)
	}()

	switch cb.state {
	case CircuitOpen:
		waited := cb.now().Sub(cb.openedAt)
		if waited < cb.config.RecoveryTimeout {
			return false, types.NewError(types.ErrCircuitOpen, fmt.Sprintf(
				"circuit open after %d consecutive failures, retry in %v",
				cb.failures, cb.config.RecoveryTimeout-waited)).WithStage(cb.stage)
		}
		event = cb.transition(CircuitHalfOpen, "recovery timeout elapsed")
		cb.probes, cb.successes = 1, 0
		return true, nil
	case CircuitHalfOpen:
		if cb.probes >= cb.config.HalfOpenMaxProbes {
			return false, types.NewError(types.ErrCircuitOpen, fmt.Sprintf(
				"circuit half-open, %d probes in flight", cb.probes)).WithStage(cb.stage)
		}
		cb.probes++
		return true, nil
	default:
		return true, nil
	}
}

// RecordSuccess 记录一次成功调用
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var event *CircuitBreakerEvent
	defer func() {
		cb.mu.Unlock()
		cb.emit(event)
	}()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.failures, cb.successes, cb.probes = 0, 0, 0
			event = cb.transition(CircuitClosed, "probes succeeded")
		}
	}
}

// RecordFailure 记录一次失败调用
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	var event *CircuitBreakerEvent
	defer func() {
		cb.mu.Unlock()
		cb.emit(event)
	}()

	cb.failures++
	switch cb.state {
	case CircuitClosed:
		if cb.config.FailureThreshold > 0 && cb.failures >= cb.config.FailureThreshold {
			cb.openedAt = cb.now()
			event = cb.transition(CircuitOpen, fmt.Sprintf("%d consecutive failures", cb.failures))
		}
	case CircuitHalfOpen:
		cb.successes = 0
		cb.openedAt = cb.now()
		event = cb.transition(CircuitOpen, "probe failed")
	}
}

// State 返回当前状态
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures 返回当前连续失败次数
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset 强制关闭熔断器
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	var event *CircuitBreakerEvent
	if cb.state != CircuitClosed {
		event = cb.transition(CircuitClosed, "manual reset")
	}
	cb.failures, cb.successes, cb.probes = 0, 0, 0
	cb.mu.Unlock()
	cb.emit(event)
}

// transition 必须持有锁
func (cb *CircuitBreaker) transition(to CircuitState, reason string) *CircuitBreakerEvent {
	from := cb.state
	cb.state = to
	cb.logger.Info("circuit breaker state change",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("reason", reason),
		zap.Int("failures", cb.failures))
	return &CircuitBreakerEvent{
		Stage:     cb.stage,
		From:      from,
		To:        to,
		Timestamp: cb.now(),
		Reason:    reason,
		Failures:  cb.failures,
	}
}

func (cb *CircuitBreaker) emit(event *CircuitBreakerEvent) {
	if event != nil && cb.onChange != nil {
		cb.onChange(*event)
	}
}

// CircuitBreakerRegistry 按 stage 名称维护熔断器
type CircuitBreakerRegistry struct {
	config   CircuitBreakerConfig
	onChange StateChangeFunc
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerRegistry 创建熔断器注册表
func NewCircuitBreakerRegistry(config CircuitBreakerConfig, onChange StateChangeFunc, logger *zap.Logger) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		config:   config,
		onChange: onChange,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get 返回 stage 的熔断器，不存在时创建
func (r *CircuitBreakerRegistry) Get(stage string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[stage]
	if !ok {
		cb = NewCircuitBreaker(stage, r.config, r.onChange, r.logger)
		r.breakers[stage] = cb
	}
	return cb
}

// States 返回所有熔断器的当前状态
func (r *CircuitBreakerRegistry) States() map[string]CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make(map[string]CircuitState, len(r.breakers))
	for stage, cb := range r.breakers {
		states[stage] = cb.State()
	}
	return states
}

type registryKey struct{}

// ContextWithCircuitBreakers 把熔断器注册表放入 ctx，供 WithRunCircuitBreaker 使用
func ContextWithCircuitBreakers(ctx context.Context, r *CircuitBreakerRegistry) context.Context {
	return context.WithValue(ctx, registryKey{}, r)
}

// CircuitBreakersFromContext 返回 ctx 中的熔断器注册表，不存在时返回 nil
func CircuitBreakersFromContext(ctx context.Context) *CircuitBreakerRegistry {
	r, _ := ctx.Value(registryKey{}).(*CircuitBreakerRegistry)
	return r
}
