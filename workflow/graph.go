package workflow

import (
	"slices"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxIterations bounds the stage invocations of one run.
const DefaultMaxIterations = 50

type conditionalEdges[S any] struct {
	router Router[S]
	routes map[string]string
}

// parallelGroup is a set of stages fanned out from one source and joined at
// a single successor.
type parallelGroup struct {
	members []string
	join    string
}

// Graph is a compiled, read-only workflow. It holds no per-run state and may
// be invoked concurrently.
type Graph[S, P any] struct {
	name   string
	schema Schema[S, P]

	stages      map[string]Stage[S, P]
	order       []string
	rank        map[string]int
	edges       map[string][]string
	conditional map[string]conditionalEdges[S]
	parallel    map[string]parallelGroup
	entry       string

	maxIterations  int
	maxParallelism int
	logger         *zap.Logger
	metrics        MetricsRecorder
	tracer         trace.Tracer
	breakers       *breakerSpec
}

// breakerSpec configures the per-run circuit breaker registry.
type breakerSpec struct {
	config   CircuitBreakerConfig
	onChange StateChangeFunc
}

// Name returns the graph name.
func (g *Graph[S, P]) Name() string {
	return g.name
}

// Entry returns the entry stage.
func (g *Graph[S, P]) Entry() string {
	return g.entry
}

// Stages returns stage names in registration order.
func (g *Graph[S, P]) Stages() []string {
	return slices.Clone(g.order)
}

// MaxIterations returns the iteration ceiling applied to each run.
func (g *Graph[S, P]) MaxIterations() int {
	return g.maxIterations
}

// HasStage reports whether name is a registered stage.
func (g *Graph[S, P]) HasStage(name string) bool {
	_, ok := g.stages[name]
	return ok
}
