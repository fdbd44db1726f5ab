package workflow

import (
	"context"
)

// END is the reserved terminal marker. Edges and routes may target it;
// it never names a stage.
const END = "__end__"

// Stage is a named unit of work. It receives a snapshot of the run state and
// returns the sparse update it wants merged. A stage may run more than once per
// run (revision loops re-invoke stages), so it must not assume single execution.
type Stage[S, P any] func(ctx context.Context, state S) (P, error)

// Router picks the outgoing label of a conditional edge set from the
// post-merge state. It must be pure.
type Router[S any] func(state S) string

// Schema declares how a state type absorbs partial updates.
type Schema[S, P any] struct {
	// Merge combines the current state with a partial update. It must be pure
	// and total, and must not modify current in place.
	Merge func(current S, update P) S
	// ErrorUpdate builds a partial update that appends one entry to the
	// state's error list.
	ErrorUpdate func(message string) P
	// Revision reports the revision generation of a state. Used to key the
	// visited set; nil means every state is generation 0.
	Revision func(state S) int
	// Clone, when set, produces the snapshot handed to each stage so that a
	// stage cannot reach the engine's copy through shared slices or maps.
	Clone func(state S) S
}

func (s Schema[S, P]) validate() error {
	if s.Merge == nil {
		return errSchemaMerge
	}
	if s.ErrorUpdate == nil {
		return errSchemaErrorUpdate
	}
	return nil
}

func (s Schema[S, P]) revision(state S) int {
	if s.Revision == nil {
		return 0
	}
	return s.Revision(state)
}

func (s Schema[S, P]) snapshot(state S) S {
	if s.Clone == nil {
		return state
	}
	return s.Clone(state)
}

// Callbacks observe a run. They cannot influence scheduling.
type Callbacks[S any] struct {
	OnStageStart func(stage string)
	OnStageEnd   func(stage string, state S)
}

func (c *Callbacks[S]) stageStart(stage string) {
	if c != nil && c.OnStageStart != nil {
		c.OnStageStart(stage)
	}
}

func (c *Callbacks[S]) stageEnd(stage string, state S) {
	if c != nil && c.OnStageEnd != nil {
		c.OnStageEnd(stage, state)
	}
}
