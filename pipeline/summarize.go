package pipeline

import (
	"context"
	"errors"

	"github.com/BaSui01/flowstate/workflow"
	"go.uber.org/zap"
)

const failedSummary = "Failed to generate summary"

// Result is the outcome of one summary run.
type Result struct {
	Summary          string              `json:"summary"`
	Errors           []string            `json:"errors"`
	CommunicationLog []workflow.LogEntry `json:"communicationLog"`
	FormattedLog     string              `json:"formattedLog"`
	// State is the final state of the run.
	State AgentState `json:"-"`
}

// RunOption configures one Summarize call.
type RunOption func(*runOptions)

type runOptions struct {
	customPrompt string
	onProgress   func(stage string, state AgentState)
	history      *workflow.ExecutionHistory
	runID        string
}

// WithCustomPrompt adds caller instructions to both writers' prompts.
func WithCustomPrompt(prompt string) RunOption {
	return func(o *runOptions) {
		o.customPrompt = prompt
	}
}

// WithProgress is called with the merged state after every stage.
func WithProgress(fn func(stage string, state AgentState)) RunOption {
	return func(o *runOptions) {
		o.onProgress = fn
	}
}

// WithHistory records the run's stage invocations into h.
func WithHistory(h *workflow.ExecutionHistory) RunOption {
	return func(o *runOptions) {
		o.history = h
	}
}

// WithRunID sets the run identifier.
func WithRunID(id string) RunOption {
	return func(o *runOptions) {
		o.runID = id
	}
}

// Summarizer runs the summary graph. It is safe for concurrent use; each call
// owns its own state.
type Summarizer struct {
	graph  *workflow.Graph[AgentState, Update]
	logger *zap.Logger
}

// NewSummarizer compiles the summary graph over completer.
func NewSummarizer(completer Completer, opts ...Option) (*Summarizer, error) {
	if completer == nil {
		return nil, errors.New("pipeline: completer is required")
	}
	o := buildOptions(opts)
	graph, err := NewGraph(completer, opts...)
	if err != nil {
		return nil, err
	}
	return &Summarizer{
		graph:  graph,
		logger: o.logger.With(zap.String("component", "summarizer")),
	}, nil
}

// Graph returns the compiled graph.
func (s *Summarizer) Graph() *workflow.Graph[AgentState, Update] {
	return s.graph
}

// Summarize produces a reader-friendly summary of page. Stage failures are
// reported in Result.Errors; the returned error is non-nil only when ctx ends
// the run early, in which case the partial result is still returned.
func (s *Summarizer) Summarize(ctx context.Context, page Page, opts ...RunOption) (Result, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	invokeOpts := []workflow.InvokeOption[AgentState]{
		workflow.WithCallbacks(workflow.Callbacks[AgentState]{
			OnStageStart: func(stage string) {
				s.logger.Debug("agent starting", zap.String("stage", stage))
			},
			OnStageEnd: func(stage string, state AgentState) {
				s.logger.Debug("agent completed", zap.String("stage", stage))
				if ro.onProgress != nil {
					ro.onProgress(stage, state)
				}
			},
		}),
	}
	if ro.history != nil {
		invokeOpts = append(invokeOpts, workflow.WithHistory[AgentState](ro.history))
	}
	if ro.runID != "" {
		invokeOpts = append(invokeOpts, workflow.WithRunID[AgentState](ro.runID))
	}

	final, err := s.graph.Invoke(ctx, NewState(page, ro.customPrompt), invokeOpts...)

	result := Result{
		Summary:          orDefault(final.FinalSummary, failedSummary),
		Errors:           orEmpty(final.Errors),
		CommunicationLog: orEmpty(final.CommunicationLog),
		FormattedLog:     workflow.FormatLog(final.CommunicationLog),
		State:            final,
	}
	s.logger.Info("summary finished",
		zap.Int("errors", len(result.Errors)),
		zap.Int("revisions", final.RevisionCount),
		zap.Int("log_entries", len(result.CommunicationLog)))
	return result, err
}

// Summarize compiles the summary graph and runs it once over page. Per-run
// settings are passed with WithRunOptions.
func Summarize(ctx context.Context, completer Completer, page Page, opts ...Option) (Result, error) {
	s, err := NewSummarizer(completer, opts...)
	if err != nil {
		return Result{Summary: failedSummary, Errors: []string{err.Error()}}, err
	}
	return s.Summarize(ctx, page, buildOptions(opts).runOpts...)
}
