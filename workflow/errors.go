package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrIterationCeiling marks a run that was stopped by the engine's
	// iteration bound.
	ErrIterationCeiling = errors.New("Orchestration max iterations reached")
	// ErrUnroutableLabel marks a router result with no mapped target.
	ErrUnroutableLabel = errors.New("unroutable label")

	errSchemaMerge       = errors.New("schema has no merge function")
	errSchemaErrorUpdate = errors.New("schema has no error update function")
)

// GraphValidationError reports a graph that cannot be compiled: a dangling
// edge target, a missing entry stage or an ambiguous routing declaration.
type GraphValidationError struct {
	Graph     string
	Reason    string
	Reference string
}

func (e *GraphValidationError) Error() string {
	if e.Reference != "" {
		return fmt.Sprintf("graph %q invalid: %s: %s", e.Graph, e.Reason, e.Reference)
	}
	return fmt.Sprintf("graph %q invalid: %s", e.Graph, e.Reason)
}

// StageExecutionError wraps a stage failure. The engine contains it by
// recording Error() in the run's error list.
type StageExecutionError struct {
	Stage string
	Cause error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Cause)
}

func (e *StageExecutionError) Unwrap() error {
	return e.Cause
}

// panicError carries a recovered stage panic.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
