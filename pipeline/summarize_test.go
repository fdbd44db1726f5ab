package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/BaSui01/flowstate/config"
	"github.com/BaSui01/flowstate/testutil"
	"github.com/BaSui01/flowstate/types"
	"github.com/BaSui01/flowstate/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func loadPage(t *testing.T) Page {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "page.json"))
	require.NoError(t, err)
	var page Page
	require.NoError(t, json.Unmarshal(data, &page))
	return page
}

func loadReplay(t *testing.T) *ReplayCompleter {
	t.Helper()
	c, err := LoadReplay(filepath.Join("testdata", "replay.yaml"))
	require.NoError(t, err)
	return c
}

func newTestSummarizer(t *testing.T, completer Completer, cfg config.Config) *Summarizer {
	t.Helper()
	s, err := NewSummarizer(completer, WithConfig(cfg), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return s
}

func TestSummarize_ReplayRun(t *testing.T) {
	completer := loadReplay(t)
	s := newTestSummarizer(t, completer, testConfig())
	history := workflow.NewExecutionHistory()

	result, err := s.Summarize(testutil.TestContext(t), loadPage(t), WithHistory(history), WithRunID("run-1"))
	require.NoError(t, err)

	assert.Empty(t, result.Errors)
	assert.True(t, strings.HasPrefix(result.Summary, "# Yearly plan\nYou are about to pay $120 for a year."))
	assert.Contains(t, result.Summary, "**HIGH RISK**")
	assert.Contains(t, result.Summary, "• **Subscribe** - Renews automatically (⚠️ Cannot be undone)")
	assert.Contains(t, result.Summary, "• **urgency**: Countdown timer pushes a quick decision")
	assert.NotContains(t, result.Summary, "confirmshaming")
	assert.Contains(t, result.Summary, "• It keeps charging you every year until you cancel")
	assert.NotContains(t, result.Summary, "Tax is included")
	assert.NotContains(t, result.Summary, "*Note:")

	// The first review asks for a rewrite, the second approves it.
	assert.Equal(t, 1, completer.Calls(StageNavigator))
	assert.Equal(t, 1, completer.Calls(StageSecurity))
	assert.Equal(t, 2, completer.Calls(StageCompassionate))
	assert.Equal(t, 1, completer.Calls(StageTechnical))
	assert.Equal(t, 2, completer.Calls(StageArbiter))
	assert.Equal(t, 2, completer.Calls(StageGuardian))
	assert.Equal(t, 2, result.State.RevisionCount)
	assert.False(t, result.State.NeedsRevision)

	assert.Equal(t, workflow.ExecutionStatusCompleted, history.GetStatus())
	assert.Equal(t, 1, history.CountStage(StageAssemble))

	// The CTA matched the scanned "Subscribe now" button.
	require.NotEmpty(t, result.State.IdentifiedCTAs)
	assert.Equal(t, "Subscribe now", result.State.IdentifiedCTAs[0].Original.Label)

	// Log order follows the stage order; the assemble entry is last.
	log := result.CommunicationLog
	require.NotEmpty(t, log)
	assert.Equal(t, RoleNavigator, log[0].From)
	assert.Equal(t, "Assembling final output", log[len(log)-1].Summary)
	assert.Contains(t, result.FormattedLog, "AGENT COMMUNICATION LOG")
	assert.Contains(t, result.FormattedLog, "┌─ GUARDIAN")
}

func TestSummarize_RevisionCeiling(t *testing.T) {
	completer := loadReplay(t)
	completer.responses[StageGuardian] = []string{`{"approved": false, "missingCriticalInfo": ["x"], "revisionInstructions": "again"}`}
	s := newTestSummarizer(t, completer, testConfig())

	result, err := s.Summarize(testutil.TestContext(t), loadPage(t))
	require.NoError(t, err)

	// Ceiling 2: two rewrites, so three compassionate drafts in total.
	assert.Equal(t, 3, completer.Calls(StageCompassionate))
	assert.Equal(t, 1, completer.Calls(StageTechnical))
	assert.Equal(t, 3, completer.Calls(StageGuardian))
	assert.Equal(t, 3, result.State.RevisionCount)
	assert.Contains(t, result.Summary, "*Note: This summary may be incomplete. Please review the original page carefully.*")
	assert.Empty(t, result.Errors)
}

func TestSummarize_RevisionCeilingFromConfig(t *testing.T) {
	completer := loadReplay(t)
	completer.responses[StageGuardian] = []string{`{"approved": false}`}
	cfg := testConfig()
	cfg.Pipeline.RevisionCeiling = 0

	result, err := newTestSummarizer(t, completer, cfg).Summarize(testutil.TestContext(t), loadPage(t))
	require.NoError(t, err)
	assert.Equal(t, 1, completer.Calls(StageCompassionate))
	assert.Equal(t, 1, completer.Calls(StageGuardian))
	assert.Contains(t, result.Summary, "*Note:")
}

func TestSummarize_WriterPromptsCarryFeedback(t *testing.T) {
	rec := &recorder{Completer: loadReplay(t)}
	s := newTestSummarizer(t, rec, testConfig())

	_, err := s.Summarize(testutil.TestContext(t), loadPage(t), WithCustomPrompt("Explain like I am new to this"))
	require.NoError(t, err)

	prompts := rec.prompts(StageCompassionate)
	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[0], "REVIEWER FEEDBACK")
	assert.Contains(t, prompts[1], "REVIEWER FEEDBACK ON THE PREVIOUS DRAFT:\nSay when the plan renews")
	for _, p := range append(prompts, rec.prompts(StageTechnical)...) {
		assert.Contains(t, p, "Explain like I am new to this")
	}
}

func TestSummarize_LenientCompletionFailure(t *testing.T) {
	replayed := loadReplay(t)
	completer := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		if req.Stage == StageSecurity {
			return "", errors.New("upstream unavailable")
		}
		return replayed.Complete(ctx, req)
	})

	result, err := newTestSummarizer(t, completer, testConfig()).Summarize(testutil.TestContext(t), loadPage(t))
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "Security Sentinel error: "))
	assert.Contains(t, result.Errors[0], "upstream unavailable")
	require.NotNil(t, result.State.SecurityAnalysis)
	assert.Equal(t, RiskMedium, result.State.SecurityAnalysis.RiskLevel)
	assert.NotContains(t, result.Summary, "RISK**")
	assert.True(t, strings.HasPrefix(result.Summary, "# Yearly plan"))
}

func TestSummarize_RetriesTransientFailures(t *testing.T) {
	replayed := loadReplay(t)
	var failures atomic.Int32
	completer := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		if req.Stage == StageNavigator && failures.Add(1) == 1 {
			return "", types.NewError(types.ErrCompletionFailed, "overloaded").WithRetryable(true)
		}
		return replayed.Complete(ctx, req)
	})
	cfg := testConfig()
	cfg.Pipeline.MaxRetries = 2

	result, err := newTestSummarizer(t, completer, cfg).Summarize(testutil.TestContext(t), loadPage(t))
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int32(2), failures.Load())
}

func TestSummarize_StrictDecodeFailure(t *testing.T) {
	completer := loadReplay(t)
	completer.responses[StageNavigator] = []string{"I could not read that page."}
	cfg := testConfig()
	cfg.Pipeline.DecodeMode = config.DecodeStrict

	result, err := newTestSummarizer(t, completer, cfg).Summarize(testutil.TestContext(t), loadPage(t))
	require.NoError(t, err)

	require.NotEmpty(t, result.Errors)
	assert.True(t, strings.HasPrefix(result.Errors[0], "navigator failed: [DECODE_FAILED]"), result.Errors[0])
	assert.Nil(t, result.State.PageStructure)
	// Downstream stages still run on what is available.
	assert.Equal(t, 1, completer.Calls(StageSecurity))
	assert.NotEqual(t, failedSummary, result.Summary)
}

func TestSummarize_StrictCompletionFailure(t *testing.T) {
	replayed := loadReplay(t)
	completer := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		if req.Stage == StageTechnical {
			return "", errors.New("boom")
		}
		return replayed.Complete(ctx, req)
	})
	cfg := testConfig()
	cfg.Pipeline.DecodeMode = config.DecodeStrict

	result, err := newTestSummarizer(t, completer, cfg).Summarize(testutil.TestContext(t), loadPage(t))
	require.NoError(t, err)
	require.NotEmpty(t, result.Errors)
	assert.True(t, strings.HasPrefix(result.Errors[0], "technical_writer failed: "), result.Errors[0])
	_, ok := result.State.Writer(WriterTechnical)
	assert.False(t, ok)
	// With one draft the arbiter uses it without a model call.
	assert.Equal(t, WriterCompassionate, result.State.ArbiterDecision.ChosenWriter)
}

func TestSummarize_ProgressCallback(t *testing.T) {
	var (
		mu     sync.Mutex
		stages []string
	)
	s := newTestSummarizer(t, loadReplay(t), testConfig())
	_, err := s.Summarize(testutil.TestContext(t), loadPage(t), WithProgress(func(stage string, _ AgentState) {
		mu.Lock()
		stages = append(stages, stage)
		mu.Unlock()
	}))
	require.NoError(t, err)

	assert.Equal(t, StageNavigator, stages[0])
	assert.Equal(t, StageSecurity, stages[1])
	assert.ElementsMatch(t, []string{StageCompassionate, StageTechnical}, stages[2:4])
	assert.Equal(t, StageAssemble, stages[len(stages)-1])
}

func TestSummarize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	completer := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		cancel()
		return "", ctx.Err()
	})

	result, err := newTestSummarizer(t, completer, testConfig()).Summarize(ctx, loadPage(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, failedSummary, result.Summary)
}

func TestSummarize_PackageLevel(t *testing.T) {
	result, err := Summarize(testutil.TestContext(t), loadReplay(t), loadPage(t), WithConfig(testConfig()))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Summary, "# Yearly plan"))

	_, err = Summarize(context.Background(), nil, Page{})
	assert.Error(t, err)
}

func TestSummarize_PackageLevelRunOptions(t *testing.T) {
	completer := loadReplay(t)
	rec := &recorder{Completer: completer}
	var stages []string

	result, err := Summarize(testutil.TestContext(t), rec, loadPage(t),
		WithConfig(testConfig()),
		WithRunOptions(
			WithCustomPrompt("Explain it to a teenager."),
			WithProgress(func(stage string, _ AgentState) {
				stages = append(stages, stage)
			}),
		),
		WithRunOptions(WithRunID("package-run")),
	)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Summary, "# Yearly plan"))
	assert.Equal(t, StageNavigator, stages[0])
	assert.Equal(t, StageAssemble, stages[len(stages)-1])

	var writerPrompts int
	for _, req := range rec.requests {
		if req.Stage == StageCompassionate || req.Stage == StageTechnical {
			writerPrompts++
			assert.Contains(t, req.Messages[1].Content, "Explain it to a teenager.")
		}
	}
	assert.Equal(t, 3, writerPrompts)
}

func TestSummarizer_CircuitBreakersResetBetweenRuns(t *testing.T) {
	replayed := loadReplay(t)
	var down atomic.Bool
	down.Store(true)
	completer := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		if down.Load() {
			return "", errors.New("down")
		}
		return replayed.Complete(ctx, req)
	})

	var opened atomic.Int32
	cfg := testConfig()
	cfg.Pipeline.CircuitBreaker.FailureThreshold = 1
	s, err := NewSummarizer(completer, WithConfig(cfg), WithLogger(zaptest.NewLogger(t)),
		WithCircuitChange(func(e workflow.CircuitBreakerEvent) {
			if e.To == workflow.CircuitOpen {
				opened.Add(1)
			}
		}))
	require.NoError(t, err)

	first, err := s.Summarize(testutil.TestContext(t), loadPage(t))
	require.NoError(t, err)
	assert.NotEmpty(t, first.Errors)
	assert.Positive(t, opened.Load())

	// The model is healthy again; the next run must not inherit open breakers.
	down.Store(false)
	second, err := s.Summarize(testutil.TestContext(t), loadPage(t))
	require.NoError(t, err)
	assert.Empty(t, second.Errors)
	assert.True(t, strings.HasPrefix(second.Summary, "# Yearly plan"))
}

func TestNewGraph_Shape(t *testing.T) {
	g, err := NewGraph(NewReplayCompleter(nil))
	require.NoError(t, err)

	def := g.Definition()
	assert.Equal(t, GraphName, def.Name)
	assert.Equal(t, StageNavigator, def.Entry)
	assert.Equal(t, []string{
		StageNavigator, StageSecurity, StageCompassionate, StageTechnical,
		StageArbiter, StageGuardian, StageAssemble,
	}, g.Stages())

	security, ok := def.Stage(StageSecurity)
	require.True(t, ok)
	require.NotNil(t, security.Parallel)
	assert.Equal(t, []string{StageCompassionate, StageTechnical}, security.Parallel.Members)
	assert.Equal(t, StageArbiter, security.Parallel.Join)

	guardian, ok := def.Stage(StageGuardian)
	require.True(t, ok)
	assert.Equal(t, map[string]string{
		workflow.LabelRevise: StageCompassionate,
		StageAssemble:        StageAssemble,
	}, guardian.Routes)
}

func TestNewGraph_CircuitBreakerOpens(t *testing.T) {
	var (
		mu     sync.Mutex
		events []workflow.CircuitBreakerEvent
	)
	completer := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		return "", errors.New("down")
	})
	cfg := testConfig()
	cfg.Pipeline.CircuitBreaker.FailureThreshold = 1

	s, err := NewSummarizer(completer, WithConfig(cfg), WithCircuitChange(func(e workflow.CircuitBreakerEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))
	require.NoError(t, err)

	_, err = s.Summarize(testutil.TestContext(t), loadPage(t))
	require.NoError(t, err)
	_, err = s.Summarize(testutil.TestContext(t), loadPage(t))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, workflow.CircuitOpen, events[0].To)
}
