// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/BaSui01/flowstate/types"
	"github.com/BaSui01/flowstate/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，实现 workflow.MetricsRecorder
type Collector struct {
	// 阶段指标
	stageInvocationsTotal *prometheus.CounterVec
	stageDuration         *prometheus.HistogramVec
	stageErrorsTotal      *prometheus.CounterVec

	// 运行指标
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runIterations *prometheus.HistogramVec

	// 模型调用指标
	completionsTotal   *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec

	// 熔断器指标
	circuitState       *prometheus.GaugeVec
	circuitTransitions *prometheus.CounterVec

	logger *zap.Logger
}

var _ workflow.MetricsRecorder = (*Collector)(nil)

// NewCollector 创建指标收集器。reg 为 nil 时注册到 prometheus.DefaultRegisterer。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 阶段指标
	c.stageInvocationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_invocations_total",
			Help:      "Total number of stage invocations",
		},
		[]string{"graph", "stage", "parallel", "status"},
	)

	c.stageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Stage invocation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"graph", "stage"},
	)

	c.stageErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Total number of contained stage failures",
		},
		[]string{"graph", "stage", "code"},
	)

	// 运行指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"graph", "outcome"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"graph"},
	)

	c.runIterations = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_iterations",
			Help:      "Stage invocations per workflow run",
			Buckets:   prometheus.LinearBuckets(5, 5, 10),
		},
		[]string{"graph"},
	)

	// 模型调用指标
	c.completionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Total number of model completions",
		},
		[]string{"stage", "status"},
	)

	c.completionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Model completion duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	// 熔断器指标
	c.circuitState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per stage (0 closed, 1 open, 2 half-open)",
		},
		[]string{"stage"},
	)

	c.circuitTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"stage", "from_state", "to_state"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 引擎指标记录
// =============================================================================

// ObserveStage 记录一次阶段调用
func (c *Collector) ObserveStage(graph, stage string, parallel bool, err error, duration time.Duration) {
	c.stageInvocationsTotal.WithLabelValues(graph, stage, boolLabel(parallel), status(err)).Inc()
	c.stageDuration.WithLabelValues(graph, stage).Observe(duration.Seconds())
	if err != nil {
		c.stageErrorsTotal.WithLabelValues(graph, stage, errorCode(err)).Inc()
	}
}

// ObserveRun 记录一次完整运行
func (c *Collector) ObserveRun(graph string, outcome workflow.RunOutcome, iterations int, duration time.Duration) {
	c.runsTotal.WithLabelValues(graph, string(outcome)).Inc()
	c.runDuration.WithLabelValues(graph).Observe(duration.Seconds())
	c.runIterations.WithLabelValues(graph).Observe(float64(iterations))
}

// =============================================================================
// 🤖 模型调用指标记录
// =============================================================================

// RecordCompletion 记录一次模型调用
func (c *Collector) RecordCompletion(stage string, err error, duration time.Duration) {
	c.completionsTotal.WithLabelValues(stage, status(err)).Inc()
	c.completionDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// =============================================================================
// 🔌 熔断器指标记录
// =============================================================================

// RecordCircuitChange 记录熔断器状态转换，可直接作为 workflow.StateChangeFunc 使用
func (c *Collector) RecordCircuitChange(event workflow.CircuitBreakerEvent) {
	c.circuitState.WithLabelValues(event.Stage).Set(float64(event.To))
	c.circuitTransitions.WithLabelValues(event.Stage, event.From.String(), event.To.String()).Inc()
	c.logger.Warn("circuit breaker state changed",
		zap.String("stage", event.Stage),
		zap.String("from", event.From.String()),
		zap.String("to", event.To.String()),
		zap.String("reason", event.Reason))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// errorCode 提取结构化错误码，非结构化错误归为 unknown
func errorCode(err error) string {
	if code := types.GetErrorCode(err); code != "" {
		return string(code)
	}
	return "unknown"
}
