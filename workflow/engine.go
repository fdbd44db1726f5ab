package workflow

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/BaSui01/flowstate/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InvokeOption configures one run.
type InvokeOption[S any] func(*invokeConfig[S])

type invokeConfig[S any] struct {
	callbacks *Callbacks[S]
	history   *ExecutionHistory
	runID     string
}

// WithCallbacks attaches observation hooks to the run.
func WithCallbacks[S any](cb Callbacks[S]) InvokeOption[S] {
	return func(c *invokeConfig[S]) {
		c.callbacks = &cb
	}
}

// WithHistory records every stage invocation of the run into h.
func WithHistory[S any](h *ExecutionHistory) InvokeOption[S] {
	return func(c *invokeConfig[S]) {
		c.history = h
	}
}

// WithRunID sets the run identifier used in logs, spans and history.
func WithRunID[S any](id string) InvokeOption[S] {
	return func(c *invokeConfig[S]) {
		c.runID = id
	}
}

type visitKey struct {
	stage    string
	revision int
}

// run owns the state, queue and visited set of one Invoke call.
type run[S, P any] struct {
	graph  *Graph[S, P]
	cfg    invokeConfig[S]
	logger *zap.Logger

	state       S
	queue       []string
	visited     map[visitKey]struct{}
	invocations int
	halted      bool
}

// Invoke executes the graph from its entry stage over initial and returns the
// final state. Stage failures, unmapped router labels and the iteration
// ceiling are recorded in the state's error list instead of being returned;
// the error is non-nil only when ctx ends the run early, and the best-effort
// state is returned alongside it.
//
// A stage runs at most once per schema revision. The iteration ceiling
// therefore only fires for cycles whose stages advance the revision counter;
// a cycle that leaves the revision unchanged stops after one pass.
func (g *Graph[S, P]) Invoke(ctx context.Context, initial S, opts ...InvokeOption[S]) (S, error) {
	cfg := invokeConfig[S]{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}

	r := &run[S, P]{
		graph:   g,
		cfg:     cfg,
		logger:  g.logger.With(zap.String("run_id", cfg.runID)),
		state:   initial,
		queue:   []string{g.entry},
		visited: make(map[visitKey]struct{}),
	}
	if g.breakers != nil {
		registry := NewCircuitBreakerRegistry(g.breakers.config, g.breakers.onChange, r.logger)
		ctx = ContextWithCircuitBreakers(ctx, registry)
	}
	return r.execute(ctx)
}

func (r *run[S, P]) execute(ctx context.Context) (S, error) {
	g := r.graph
	start := time.Now()
	r.cfg.history.start(r.cfg.runID, g.name)
	r.logger.Info("workflow run started", zap.String("entry", g.entry))

	var ctxErr error
	for len(r.queue) > 0 && !r.halted {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}

		name := r.queue[0]
		r.queue = r.queue[1:]

		key := visitKey{stage: name, revision: g.schema.revision(r.state)}
		if _, seen := r.visited[key]; seen {
			r.logger.Debug("stage already ran in this revision, skipping",
				zap.String("stage", name), zap.Int("revision", key.revision))
			continue
		}
		stage, ok := g.stages[name]
		if !ok {
			r.logger.Warn("unknown stage in queue, skipping", zap.String("stage", name))
			continue
		}
		if !r.reserve(1) {
			break
		}
		r.visited[key] = struct{}{}

		r.observe(name, func() { r.cfg.callbacks.stageStart(name) })
		update, err := r.call(ctx, name, stage, g.schema.snapshot(r.state), key.revision, false)
		r.apply(update, err)
		r.observe(name, func() { r.cfg.callbacks.stageEnd(name, g.schema.snapshot(r.state)) })

		next := r.route(name)
		if group, ok := g.parallel[name]; ok {
			r.fanOut(ctx, name, group)
			if !r.halted {
				r.enqueue(next...)
				if !slices.Contains(r.queue, group.join) {
					r.queue = append(r.queue, group.join)
				}
			}
			continue
		}
		r.enqueue(next...)
	}

	outcome, status := RunCompleted, ExecutionStatusCompleted
	switch {
	case ctxErr != nil:
		outcome, status = RunCancelled, ExecutionStatusCancelled
	case r.halted:
		outcome, status = RunIterationCeiling, ExecutionStatusHalted
	}
	duration := time.Since(start)
	r.cfg.history.complete(status, r.invocations)
	if g.metrics != nil {
		g.metrics.ObserveRun(g.name, outcome, r.invocations, duration)
	}
	r.logger.Info("workflow run finished",
		zap.String("outcome", string(outcome)),
		zap.Int("iterations", r.invocations),
		zap.Duration("duration", duration),
	)
	return r.state, ctxErr
}

// reserve claims n invocations against the iteration ceiling. When the
// ceiling would be exceeded the run halts with one terminal error entry.
func (r *run[S, P]) reserve(n int) bool {
	if r.invocations+n <= r.graph.maxIterations {
		r.invocations += n
		return true
	}
	r.logger.Warn("iteration ceiling reached, stopping run",
		zap.Int("max_iterations", r.graph.maxIterations),
		zap.Int("pending", len(r.queue)+n),
	)
	r.state = r.graph.schema.Merge(r.state, r.graph.schema.ErrorUpdate(ErrIterationCeiling.Error()))
	r.halted = true
	return false
}

// call invokes one stage. Panics are recovered and every failure is wrapped
// in a StageExecutionError.
func (r *run[S, P]) call(ctx context.Context, name string, stage Stage[S, P], snapshot S, revision int, parallel bool) (update P, err error) {
	g := r.graph
	ctx, span := g.tracer.Start(ctx, "workflow.stage",
		trace.WithAttributes(
			attribute.String("workflow.graph", g.name),
			attribute.String("workflow.stage", name),
			attribute.String("workflow.run_id", r.cfg.runID),
			attribute.Int("workflow.revision", revision),
			attribute.Bool("workflow.parallel", parallel),
		),
	)
	defer span.End()
	ctx = types.WithStage(types.WithRunID(ctx, r.cfg.runID), name)

	rec := r.cfg.history.recordStageStart(name, revision, parallel)
	start := time.Now()
	r.logger.Debug("executing stage", zap.String("stage", name), zap.Bool("parallel", parallel))

	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
		if err != nil {
			err = &StageExecutionError{Stage: name, Cause: err}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		duration := time.Since(start)
		r.cfg.history.recordStageEnd(rec, err)
		if g.metrics != nil {
			g.metrics.ObserveStage(g.name, name, parallel, err, duration)
		}
		if err != nil {
			r.logger.Error("stage failed", zap.String("stage", name), zap.Duration("duration", duration), zap.Error(err))
			return
		}
		r.logger.Debug("stage completed", zap.String("stage", name), zap.Duration("duration", duration))
	}()

	return stage(ctx, snapshot)
}

// apply merges a stage result. A failed stage contributes exactly one error
// entry and nothing else.
func (r *run[S, P]) apply(update P, err error) {
	schema := r.graph.schema
	if err != nil {
		r.state = schema.Merge(r.state, schema.ErrorUpdate(err.Error()))
		return
	}
	r.state = schema.Merge(r.state, update)
}

// route computes the successors of a stage from the post-merge state.
func (r *run[S, P]) route(name string) []string {
	g := r.graph
	cond, ok := g.conditional[name]
	if !ok {
		next := make([]string, 0, len(g.edges[name]))
		for _, to := range g.edges[name] {
			if to != END {
				next = append(next, to)
			}
		}
		return next
	}

	label, err := r.evalRouter(cond.router)
	if err != nil {
		r.logger.Error("router failed, routing to end", zap.String("stage", name), zap.Error(err))
		r.apply(*new(P), &StageExecutionError{Stage: name + " router", Cause: err})
		return nil
	}
	target, ok := cond.routes[label]
	if !ok {
		r.logger.Warn("router returned unmapped label, routing to end",
			zap.String("stage", name), zap.String("label", label))
		r.apply(*new(P), fmt.Errorf("%s: %w %q", name, ErrUnroutableLabel, label))
		return nil
	}
	r.logger.Debug("routed", zap.String("stage", name), zap.String("label", label), zap.String("target", target))
	if target == END {
		return nil
	}
	return []string{target}
}

func (r *run[S, P]) evalRouter(router Router[S]) (label string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()
	return router(r.state), nil
}

// enqueue appends successors in edge declaration order.
func (r *run[S, P]) enqueue(names ...string) {
	r.queue = append(r.queue, names...)
}

// observe runs a callback. Callback panics are logged and swallowed so an
// observer cannot change the course of the run.
func (r *run[S, P]) observe(stage string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("callback panicked", zap.String("stage", stage), zap.Any("panic", p))
		}
	}()
	fn()
}
