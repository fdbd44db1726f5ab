package workflow

import "time"

// RunOutcome classifies how a run ended.
type RunOutcome string

const (
	RunCompleted        RunOutcome = "completed"
	RunIterationCeiling RunOutcome = "iteration_ceiling"
	RunCancelled        RunOutcome = "cancelled"
)

// MetricsRecorder receives engine measurements. Implementations must be safe
// for concurrent use; parallel stages report from their own goroutines.
type MetricsRecorder interface {
	ObserveStage(graph, stage string, parallel bool, err error, duration time.Duration)
	ObserveRun(graph string, outcome RunOutcome, iterations int, duration time.Duration)
}
