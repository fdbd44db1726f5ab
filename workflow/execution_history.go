package workflow

import (
	"sync"
	"time"
)

// ExecutionStatus represents the status of a run or a stage invocation
type ExecutionStatus string

const (
	// ExecutionStatusRunning indicates the execution is in progress
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusCompleted indicates the execution completed successfully
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusFailed indicates the stage failed and its error was recorded
	ExecutionStatusFailed ExecutionStatus = "failed"
	// ExecutionStatusHalted indicates the run hit the iteration ceiling
	ExecutionStatusHalted ExecutionStatus = "halted"
	// ExecutionStatusCancelled indicates the caller's context ended the run
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// StageExecution records one invocation of a stage
type StageExecution struct {
	Stage     string          `json:"stage" yaml:"stage"`
	Revision  int             `json:"revision" yaml:"revision"`
	Parallel  bool            `json:"parallel" yaml:"parallel"`
	StartTime time.Time       `json:"start_time" yaml:"start_time"`
	EndTime   time.Time       `json:"end_time" yaml:"end_time"`
	Duration  time.Duration   `json:"duration" yaml:"duration"`
	Status    ExecutionStatus `json:"status" yaml:"status"`
	Error     string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// ExecutionHistory records the invocation path of one run. It is filled by
// the engine when passed to Invoke through WithHistory.
type ExecutionHistory struct {
	RunID      string            `json:"run_id" yaml:"run_id"`
	Graph      string            `json:"graph" yaml:"graph"`
	StartTime  time.Time         `json:"start_time" yaml:"start_time"`
	EndTime    time.Time         `json:"end_time" yaml:"end_time"`
	Duration   time.Duration     `json:"duration" yaml:"duration"`
	Status     ExecutionStatus   `json:"status" yaml:"status"`
	Iterations int               `json:"iterations" yaml:"iterations"`
	Stages     []*StageExecution `json:"stages" yaml:"stages"`
	mu         sync.RWMutex
}

// NewExecutionHistory creates an empty history.
func NewExecutionHistory() *ExecutionHistory {
	return &ExecutionHistory{
		Stages: make([]*StageExecution, 0),
	}
}

func (h *ExecutionHistory) start(runID, graph string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.RunID = runID
	h.Graph = graph
	h.StartTime = time.Now()
	h.Status = ExecutionStatusRunning
}

// recordStageStart records the start of a stage invocation.
func (h *ExecutionHistory) recordStageStart(stage string, revision int, parallel bool) *StageExecution {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := &StageExecution{
		Stage:     stage,
		Revision:  revision,
		Parallel:  parallel,
		StartTime: time.Now(),
		Status:    ExecutionStatusRunning,
	}
	h.Stages = append(h.Stages, rec)
	return rec
}

// recordStageEnd records the end of a stage invocation.
func (h *ExecutionHistory) recordStageEnd(rec *StageExecution, err error) {
	if h == nil || rec == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	rec.EndTime = time.Now()
	rec.Duration = rec.EndTime.Sub(rec.StartTime)
	if err != nil {
		rec.Status = ExecutionStatusFailed
		rec.Error = err.Error()
	} else {
		rec.Status = ExecutionStatusCompleted
	}
}

func (h *ExecutionHistory) complete(status ExecutionStatus, iterations int) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.EndTime = time.Now()
	h.Duration = h.EndTime.Sub(h.StartTime)
	h.Status = status
	h.Iterations = iterations
}

// GetStages returns a copy of the stage records in start order
func (h *ExecutionHistory) GetStages() []StageExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]StageExecution, len(h.Stages))
	for i, rec := range h.Stages {
		out[i] = *rec
	}
	return out
}

// CountStage returns how many times a stage was invoked
func (h *ExecutionHistory) CountStage(stage string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, rec := range h.Stages {
		if rec.Stage == stage {
			n++
		}
	}
	return n
}

// GetStatus returns the run status
func (h *ExecutionHistory) GetStatus() ExecutionStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.Status
}
