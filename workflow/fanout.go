package workflow

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// branchResult is the outcome of one parallel member.
type branchResult[P any] struct {
	update P
	err    error
}

// fanOut runs the members of a parallel group concurrently against one state
// snapshot and merges their updates in registration order once all of them
// have returned. Members that already ran in the current revision are left
// out.
func (r *run[S, P]) fanOut(ctx context.Context, source string, group parallelGroup) {
	g := r.graph
	revision := g.schema.revision(r.state)

	members := make([]string, 0, len(group.members))
	for _, m := range group.members {
		if _, seen := r.visited[visitKey{stage: m, revision: revision}]; seen {
			continue
		}
		members = append(members, m)
	}
	if len(members) == 0 {
		return
	}
	if !r.reserve(len(members)) {
		return
	}

	r.logger.Debug("fanning out",
		zap.String("source", source),
		zap.Strings("members", members),
		zap.String("join", group.join),
	)

	snapshots := make([]S, len(members))
	for i, m := range members {
		r.visited[visitKey{stage: m, revision: revision}] = struct{}{}
		snapshots[i] = g.schema.snapshot(r.state)
		r.observe(m, func() { r.cfg.callbacks.stageStart(m) })
	}

	results := make([]branchResult[P], len(members))
	var eg errgroup.Group
	if g.maxParallelism > 0 {
		eg.SetLimit(g.maxParallelism)
	}
	for i, m := range members {
		stage := g.stages[m]
		eg.Go(func() error {
			update, err := r.call(ctx, m, stage, snapshots[i], revision, true)
			results[i] = branchResult[P]{update: update, err: err}
			// Failures stay in results; the group never short-circuits.
			return nil
		})
	}
	_ = eg.Wait()

	for i, m := range members {
		r.apply(results[i].update, results[i].err)
		r.observe(m, func() { r.cfg.callbacks.stageEnd(m, g.schema.snapshot(r.state)) })
	}
}
