package workflow

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/BaSui01/flowstate/workflow"

// Builder assembles a Graph. Methods may be called in any order; referential
// integrity is checked by Compile. A builder compiles once.
type Builder[S, P any] struct {
	name   string
	schema Schema[S, P]

	stages      map[string]Stage[S, P]
	order       []string
	edges       map[string][]string
	edgeOrder   []string
	conditional map[string]conditionalEdges[S]
	condOrder   []string
	parallel    map[string]parallelGroup
	parOrder    []string
	entry       string

	maxIterations  int
	maxParallelism int
	logger         *zap.Logger
	metrics        MetricsRecorder
	tracer         trace.Tracer
	breakers       *breakerSpec

	err      *GraphValidationError
	compiled bool
}

// NewBuilder creates a builder for a graph over state S and partial update P.
func NewBuilder[S, P any](name string, schema Schema[S, P]) *Builder[S, P] {
	return &Builder[S, P]{
		name:          name,
		schema:        schema,
		stages:        make(map[string]Stage[S, P]),
		edges:         make(map[string][]string),
		conditional:   make(map[string]conditionalEdges[S]),
		parallel:      make(map[string]parallelGroup),
		maxIterations: DefaultMaxIterations,
		logger:        zap.NewNop(),
	}
}

// WithLogger sets the logger used by the builder and by runs of the graph.
func (b *Builder[S, P]) WithLogger(logger *zap.Logger) *Builder[S, P] {
	if logger == nil {
		logger = zap.NewNop()
	}
	b.logger = logger
	return b
}

// WithMaxIterations overrides the per-run iteration ceiling. Non-positive
// values keep the default.
func (b *Builder[S, P]) WithMaxIterations(n int) *Builder[S, P] {
	if n > 0 {
		b.maxIterations = n
	}
	return b
}

// WithMaxParallelism caps concurrent stages in one fan-out. Zero means no cap.
func (b *Builder[S, P]) WithMaxParallelism(n int) *Builder[S, P] {
	if n >= 0 {
		b.maxParallelism = n
	}
	return b
}

// WithMetrics attaches a metrics recorder.
func (b *Builder[S, P]) WithMetrics(m MetricsRecorder) *Builder[S, P] {
	b.metrics = m
	return b
}

// WithTracer overrides the tracer. The global otel tracer is used otherwise.
func (b *Builder[S, P]) WithTracer(t trace.Tracer) *Builder[S, P] {
	b.tracer = t
	return b
}

// WithCircuitBreakers gives every run a fresh CircuitBreakerRegistry built
// from config. Stages wrapped with WithRunCircuitBreaker take their breaker
// from it, so one run's failures never reject the next run's calls.
func (b *Builder[S, P]) WithCircuitBreakers(config CircuitBreakerConfig, onChange StateChangeFunc) *Builder[S, P] {
	b.breakers = &breakerSpec{config: config, onChange: onChange}
	return b
}

// AddStage registers a stage. Registration order is the merge order of
// parallel groups.
func (b *Builder[S, P]) AddStage(name string, fn Stage[S, P]) *Builder[S, P] {
	switch {
	case name == "" || name == END:
		b.fail("invalid stage name", name)
	case fn == nil:
		b.fail("stage has no function", name)
	default:
		if _, dup := b.stages[name]; dup {
			b.fail("duplicate stage", name)
			return b
		}
		b.stages[name] = fn
		b.order = append(b.order, name)
	}
	return b
}

// SetEntry sets the first stage of every run.
func (b *Builder[S, P]) SetEntry(name string) *Builder[S, P] {
	b.entry = name
	return b
}

// AddEdge adds an unconditional transition. A source may carry several.
func (b *Builder[S, P]) AddEdge(from, to string) *Builder[S, P] {
	if _, seen := b.edges[from]; !seen {
		b.edgeOrder = append(b.edgeOrder, from)
	}
	b.edges[from] = append(b.edges[from], to)
	return b
}

// AddParallelEdges declares that members run concurrently after from, all
// against the same state snapshot, and that join runs once they are merged.
func (b *Builder[S, P]) AddParallelEdges(from, join string, members ...string) *Builder[S, P] {
	if _, dup := b.parallel[from]; dup {
		b.fail("duplicate parallel group", from)
		return b
	}
	b.parallel[from] = parallelGroup{members: slices.Clone(members), join: join}
	b.parOrder = append(b.parOrder, from)
	return b
}

// AddConditionalEdges routes from through router. routes maps each label the
// router may return to a stage or END.
func (b *Builder[S, P]) AddConditionalEdges(from string, router Router[S], routes map[string]string) *Builder[S, P] {
	if _, dup := b.conditional[from]; dup {
		b.fail("duplicate conditional edges", from)
		return b
	}
	b.conditional[from] = conditionalEdges[S]{router: router, routes: maps.Clone(routes)}
	b.condOrder = append(b.condOrder, from)
	return b
}

func (b *Builder[S, P]) fail(reason, ref string) {
	if b.err == nil {
		b.err = &GraphValidationError{Graph: b.name, Reason: reason, Reference: ref}
	}
}

// Compile validates the declarations and freezes them into a Graph.
func (b *Builder[S, P]) Compile() (*Graph[S, P], error) {
	if b.compiled {
		return nil, &GraphValidationError{Graph: b.name, Reason: "builder already compiled"}
	}
	if err := b.validate(); err != nil {
		b.logger.Error("graph validation failed", zap.String("graph", b.name), zap.Error(err))
		return nil, err
	}
	b.compiled = true

	g := &Graph[S, P]{
		name:           b.name,
		schema:         b.schema,
		stages:         maps.Clone(b.stages),
		order:          slices.Clone(b.order),
		rank:           make(map[string]int, len(b.order)),
		edges:          make(map[string][]string, len(b.edges)),
		conditional:    make(map[string]conditionalEdges[S], len(b.conditional)),
		parallel:       make(map[string]parallelGroup, len(b.parallel)),
		entry:          b.entry,
		maxIterations:  b.maxIterations,
		maxParallelism: b.maxParallelism,
		logger:         b.logger.With(zap.String("component", "workflow"), zap.String("graph", b.name)),
		metrics:        b.metrics,
		tracer:         b.tracer,
		breakers:       b.breakers,
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer(tracerName)
	}
	for i, name := range g.order {
		g.rank[name] = i
	}
	for from, to := range b.edges {
		g.edges[from] = slices.Clone(to)
	}
	for from, c := range b.conditional {
		g.conditional[from] = conditionalEdges[S]{router: c.router, routes: maps.Clone(c.routes)}
	}
	for from, p := range b.parallel {
		members := slices.Clone(p.members)
		sort.SliceStable(members, func(i, j int) bool { return g.rank[members[i]] < g.rank[members[j]] })
		g.parallel[from] = parallelGroup{members: members, join: p.join}
	}

	b.logger.Info("workflow graph compiled",
		zap.String("graph", b.name),
		zap.Int("stages", len(g.order)),
		zap.String("entry", g.entry),
	)
	return g, nil
}

// MustCompile is Compile for graphs built at program start. A dangling
// reference is a programmer error, so it panics.
func (b *Builder[S, P]) MustCompile() *Graph[S, P] {
	g, err := b.Compile()
	if err != nil {
		panic(err)
	}
	return g
}

func (b *Builder[S, P]) validate() *GraphValidationError {
	invalid := func(reason, ref string) *GraphValidationError {
		return &GraphValidationError{Graph: b.name, Reason: reason, Reference: ref}
	}

	if err := b.schema.validate(); err != nil {
		return invalid(err.Error(), "")
	}
	if b.err != nil {
		return b.err
	}
	if len(b.stages) == 0 {
		return invalid("graph has no stages", "")
	}
	if b.entry == "" {
		return invalid("entry stage not set", "")
	}
	if !b.registered(b.entry) {
		return invalid("entry references unregistered stage", b.entry)
	}

	for _, from := range b.edgeOrder {
		if !b.registered(from) {
			return invalid("edge references unregistered source", from)
		}
		for _, to := range b.edges[from] {
			if to != END && !b.registered(to) {
				return invalid("edge references unregistered target", fmt.Sprintf("%s -> %s", from, to))
			}
		}
	}

	for _, from := range b.parOrder {
		p := b.parallel[from]
		if !b.registered(from) {
			return invalid("parallel group references unregistered source", from)
		}
		if len(p.members) < 2 {
			return invalid("parallel group needs at least two members", from)
		}
		seen := make(map[string]bool, len(p.members))
		for _, m := range p.members {
			if !b.registered(m) {
				return invalid("parallel group references unregistered member", fmt.Sprintf("%s -> %s", from, m))
			}
			if m == from || seen[m] {
				return invalid("parallel group member repeated", fmt.Sprintf("%s -> %s", from, m))
			}
			seen[m] = true
		}
		if !b.registered(p.join) {
			return invalid("parallel group references unregistered join", fmt.Sprintf("%s -> %s", from, p.join))
		}
	}

	for _, from := range b.condOrder {
		c := b.conditional[from]
		if !b.registered(from) {
			return invalid("conditional edges reference unregistered source", from)
		}
		if c.router == nil {
			return invalid("conditional edges have no router", from)
		}
		if len(c.routes) == 0 {
			return invalid("conditional edges have no routes", from)
		}
		labels := slices.Sorted(maps.Keys(c.routes))
		for _, label := range labels {
			to := c.routes[label]
			if to != END && !b.registered(to) {
				return invalid("conditional edge references unregistered target", fmt.Sprintf("%s[%s] -> %s", from, label, to))
			}
		}
		if _, mixed := b.edges[from]; mixed {
			return invalid("ambiguous routing: stage has both conditional and unconditional edges", from)
		}
		if _, mixed := b.parallel[from]; mixed {
			return invalid("ambiguous routing: stage has both conditional edges and a parallel group", from)
		}
	}

	return nil
}

func (b *Builder[S, P]) registered(name string) bool {
	_, ok := b.stages[name]
	return ok
}
