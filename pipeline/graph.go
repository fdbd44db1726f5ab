package pipeline

import (
	"github.com/BaSui01/flowstate/config"
	"github.com/BaSui01/flowstate/workflow"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GraphName identifies the summary graph in logs, metrics and exports.
const GraphName = "flowstate"

// Option configures NewGraph and NewSummarizer.
type Option func(*options)

type options struct {
	cfg             config.Config
	logger          *zap.Logger
	metrics         workflow.MetricsRecorder
	onCircuitChange workflow.StateChangeFunc
	tracer          trace.Tracer
	runOpts         []RunOption
}

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithLogger sets the logger shared by the engine and the stages.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics attaches an engine metrics recorder.
func WithMetrics(m workflow.MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer emits a span per stage invocation.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithRunOptions forwards per-run options through the package-level
// Summarize. Summarizer.Summarize ignores them; pass RunOptions there directly.
func WithRunOptions(opts ...RunOption) Option {
	return func(o *options) {
		o.runOpts = append(o.runOpts, opts...)
	}
}

// WithCircuitChange observes circuit breaker transitions of the LLM stages.
func WithCircuitChange(fn workflow.StateChangeFunc) Option {
	return func(o *options) {
		o.onCircuitChange = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{cfg: *config.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// NewGraph compiles the summary graph:
//
//	navigator → security → {compassionate_writer ∥ technical_writer} → arbiter → guardian
//	guardian ─revise→ compassionate_writer
//	guardian ─assemble→ assemble → END
//
// Every LLM stage is wrapped with the configured boundary policies. Circuit
// breakers are scoped to one run. In lenient decode mode a failed call
// degrades to the stage's default result; in strict mode it is recorded as a
// stage error.
func NewGraph(completer Completer, opts ...Option) (*workflow.Graph[AgentState, Update], error) {
	o := buildOptions(opts)
	pc := o.cfg.Pipeline
	a := newAgents(completer, pc, o.logger)

	var limiter *rate.Limiter
	if pc.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(pc.RateLimitRPS), max(pc.RateLimitBurst, 1))
	}
	breakers := workflow.CircuitBreakerConfig{
		FailureThreshold:  pc.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:   pc.CircuitBreaker.RecoveryTimeout,
		HalfOpenMaxProbes: pc.CircuitBreaker.HalfOpenMaxProbes,
		SuccessThreshold:  pc.CircuitBreaker.SuccessThreshold,
	}

	guard := func(name string, stage workflow.Stage[AgentState, Update], fallback workflow.FallbackFunc[AgentState, Update]) workflow.Stage[AgentState, Update] {
		var mws []workflow.Middleware[AgentState, Update]
		if pc.DecodeMode != config.DecodeStrict {
			mws = append(mws, workflow.WithFallback(fallback))
		}
		mws = append(mws,
			workflow.WithRetry[AgentState, Update](pc.MaxRetries, pc.RetryDelay),
			workflow.WithRunCircuitBreaker[AgentState, Update](name),
			workflow.WithRateLimit[AgentState, Update](limiter),
			workflow.WithTimeout[AgentState, Update](pc.StageTimeout),
		)
		return workflow.Chain(stage, mws...)
	}

	router := workflow.RevisionRouter(workflow.RevisionPolicy[AgentState]{
		NeedsRevision: func(s AgentState) bool { return s.NeedsRevision },
		RevisionCount: func(s AgentState) int { return s.RevisionCount },
		Ceiling:       pc.RevisionCeiling,
		Forward:       StageAssemble,
	})

	return workflow.NewBuilder(GraphName, Schema()).
		WithLogger(o.logger).
		WithMaxIterations(o.cfg.Engine.MaxIterations).
		WithMaxParallelism(o.cfg.Engine.MaxParallelism).
		WithMetrics(o.metrics).
		WithTracer(o.tracer).
		WithCircuitBreakers(breakers, o.onCircuitChange).
		AddStage(StageNavigator, guard(StageNavigator, a.navigator, a.navigatorFallback)).
		AddStage(StageSecurity, guard(StageSecurity, a.security, a.securityFallback)).
		AddStage(StageCompassionate, guard(StageCompassionate, a.write(compassionateWriter), a.writeFallback(compassionateWriter))).
		AddStage(StageTechnical, guard(StageTechnical, a.write(technicalWriter), a.writeFallback(technicalWriter))).
		AddStage(StageArbiter, guard(StageArbiter, a.arbiter, a.arbiterFallback)).
		AddStage(StageGuardian, guard(StageGuardian, a.guardian, a.guardianFallback)).
		AddStage(StageAssemble, assemble).
		SetEntry(StageNavigator).
		AddEdge(StageNavigator, StageSecurity).
		AddParallelEdges(StageSecurity, StageArbiter, StageCompassionate, StageTechnical).
		AddEdge(StageCompassionate, StageArbiter).
		AddEdge(StageTechnical, StageArbiter).
		AddEdge(StageArbiter, StageGuardian).
		AddConditionalEdges(StageGuardian, router, map[string]string{
			workflow.LabelRevise: StageCompassionate,
			StageAssemble:        StageAssemble,
		}).
		AddEdge(StageAssemble, workflow.END).
		Compile()
}
