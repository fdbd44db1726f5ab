package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/flowstate/config"
	"github.com/BaSui01/flowstate/types"
	"github.com/BaSui01/flowstate/workflow"
	"go.uber.org/zap"
)

// Sampling temperatures per stage.
const (
	navigatorTemperature     = 0.2
	securityTemperature      = 0.1
	compassionateTemperature = 0.5
	technicalTemperature     = 0.2
	arbiterTemperature       = 0.3
	guardianTemperature      = 0.1
)

// primaryActionLimit caps the scanned actions shown to the navigator when the
// page has no primary actions.
const primaryActionLimit = 20

// agents holds the LLM-backed stages. Each method is a workflow.Stage.
type agents struct {
	completer Completer
	decoder   decoder
	cfg       config.PipelineConfig
	logger    *zap.Logger
}

func newAgents(completer Completer, cfg config.PipelineConfig, logger *zap.Logger) *agents {
	return &agents{
		completer: completer,
		decoder:   decoder{mode: cfg.DecodeMode},
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "agents")),
	}
}

// ask sends one system/user exchange for stage and returns the raw response.
func (a *agents) ask(ctx context.Context, stage string, p prompt, temperature float64, vars map[string]string) (string, error) {
	resp, err := a.completer.Complete(ctx, Request{
		Stage: stage,
		Messages: []types.Message{
			types.NewSystemMessage(p.system),
			types.NewUserMessage(p.render(vars)),
		},
		Temperature: temperature,
		JSON:        true,
	})
	if err != nil {
		if _, ok := types.AsError(err); ok {
			return "", err
		}
		return "", types.NewError(types.ErrCompletionFailed, "completion failed").
			WithCause(err).
			WithStage(stage).
			WithRetryable(ctx.Err() == nil)
	}
	return resp, nil
}

// rejected logs a response the lenient decoder could not use.
func (a *agents) rejected(stage, response string) {
	a.logger.Warn("structured result rejected, using defaults",
		zap.String("stage", stage),
		zap.String("response", clip(response, 200)))
}

// =============================================================================
// Navigator
// =============================================================================

func navigatorStart(s AgentState) workflow.LogEntry {
	return workflow.NewLogEntry(RoleNavigator, workflow.ToState, workflow.ActionAnalyze,
		"Beginning page structure analysis",
		"Analyzing page: "+orDefault(s.Page.Title, "Untitled"))
}

func (a *agents) navigator(ctx context.Context, s AgentState) (Update, error) {
	logs := []workflow.LogEntry{navigatorStart(s)}

	resp, err := a.ask(ctx, StageNavigator, navigatorPrompt, navigatorTemperature, map[string]string{
		"title":   orDefault(s.Page.Title, "Untitled"),
		"content": clip(s.Page.TextContent, a.cfg.MaxContentChars),
		"actions": formatActions(s.Page),
	})
	if err != nil {
		return Update{}, err
	}

	var parsed struct {
		PageType       string          `json:"pageType"`
		MainPurpose    string          `json:"mainPurpose"`
		Complexity     string          `json:"complexity"`
		Sections       []Section       `json:"sections"`
		IdentifiedCTAs []IdentifiedCTA `json:"identifiedCTAs"`
	}
	ok, err := a.decoder.decode(StageNavigator, resp, &parsed)
	if err != nil {
		return Update{}, err
	}
	if !ok {
		a.rejected(StageNavigator, resp)
		logs = append(logs, workflow.NewLogEntry(RoleNavigator, workflow.ToState, workflow.ActionOutput,
			"Failed to parse response", clip(resp, 200)))
		return Update{
			CommunicationLog: logs,
			Errors:           []string{"Navigator failed to parse response"},
		}, nil
	}

	ctas := make([]IdentifiedCTA, 0, len(parsed.IdentifiedCTAs))
	for _, cta := range parsed.IdentifiedCTAs {
		cta.Original = matchAction(s.Page.Actions, cta.Label)
		ctas = append(ctas, cta)
	}

	logs = append(logs, workflow.NewLogEntry(RoleNavigator, RoleSecurity, workflow.ActionOutput,
		fmt.Sprintf("Identified %d CTAs, page type: %s", len(ctas), parsed.PageType),
		fmt.Sprintf("Complexity: %s, Purpose: %s", parsed.Complexity, parsed.MainPurpose)))

	return Update{
		PageStructure: &PageStructure{
			PageType:    orDefault(parsed.PageType, "unknown"),
			MainPurpose: orDefault(parsed.MainPurpose, "Unknown purpose"),
			Complexity:  orDefault(parsed.Complexity, "moderate"),
			Sections:    orEmpty(parsed.Sections),
		},
		IdentifiedCTAs:   &ctas,
		CommunicationLog: logs,
	}, nil
}

func (a *agents) navigatorFallback(s AgentState, err error) Update {
	return Update{
		CommunicationLog: []workflow.LogEntry{navigatorStart(s), errorEntry(RoleNavigator, err)},
		Errors:           []string{"Navigator error: " + err.Error()},
	}
}

// matchAction finds the scanned action a CTA label refers to. Labels match
// case-insensitively when either contains the other.
func matchAction(actions []Action, label string) Action {
	want := strings.ToLower(label)
	for _, action := range actions {
		have := strings.ToLower(action.Label)
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return action
		}
	}
	return Action{Type: "button", Label: label, Importance: "unknown"}
}

// =============================================================================
// Security sentinel
// =============================================================================

func securityStart(s AgentState) workflow.LogEntry {
	return workflow.NewLogEntry(RoleSecurity, workflow.ToState, workflow.ActionAnalyze,
		"Beginning security analysis",
		fmt.Sprintf("Analyzing %d actions for risks", len(s.IdentifiedCTAs)))
}

func cautiousAnalysis(recommendation string) *SecurityAnalysis {
	return &SecurityAnalysis{
		RiskLevel:              RiskMedium,
		FinancialActions:       []FinancialAction{},
		DataCollectionWarnings: []string{},
		DarkPatterns:           []DarkPattern{},
		Recommendations:        []string{recommendation},
	}
}

func (a *agents) security(ctx context.Context, s AgentState) (Update, error) {
	logs := []workflow.LogEntry{securityStart(s)}

	resp, err := a.ask(ctx, StageSecurity, securityPrompt, securityTemperature, map[string]string{
		"structure": pretty(s.PageStructure),
		"content":   clip(s.Page.TextContent, a.cfg.MaxContentChars),
		"ctas":      formatCTAs(s.IdentifiedCTAs),
	})
	if err != nil {
		return Update{}, err
	}

	var parsed SecurityAnalysis
	ok, err := a.decoder.decode(StageSecurity, resp, &parsed)
	if err != nil {
		return Update{}, err
	}
	if !ok {
		a.rejected(StageSecurity, resp)
		logs = append(logs, workflow.NewLogEntry(RoleSecurity, workflow.ToState, workflow.ActionOutput,
			"Failed to parse security analysis"))
		return Update{
			SecurityAnalysis: cautiousAnalysis("Unable to complete security analysis - proceed with caution"),
			CommunicationLog: logs,
		}, nil
	}

	logs = append(logs, workflow.NewLogEntry(RoleSecurity, RoleCompassionate, workflow.ActionOutput,
		"Security analysis complete. Risk level: "+parsed.RiskLevel,
		fmt.Sprintf("Found %d dark patterns, %d financial actions", len(parsed.DarkPatterns), len(parsed.FinancialActions))))

	return Update{
		SecurityAnalysis: &SecurityAnalysis{
			RiskLevel:              orDefault(parsed.RiskLevel, RiskLow),
			FinancialActions:       orEmpty(parsed.FinancialActions),
			DataCollectionWarnings: orEmpty(parsed.DataCollectionWarnings),
			DarkPatterns:           orEmpty(parsed.DarkPatterns),
			Recommendations:        orEmpty(parsed.Recommendations),
		},
		CommunicationLog: logs,
	}, nil
}

func (a *agents) securityFallback(s AgentState, err error) Update {
	return Update{
		SecurityAnalysis: cautiousAnalysis("Security analysis failed - proceed with caution"),
		CommunicationLog: []workflow.LogEntry{securityStart(s), errorEntry(RoleSecurity, err)},
		Errors:           []string{"Security Sentinel error: " + err.Error()},
	}
}

// =============================================================================
// Writers
// =============================================================================

// writer describes one of the two drafting stages.
type writer struct {
	id          string
	stage       string
	role        string
	name        string
	prompt      prompt
	temperature float64
	tone        string
	task        string
	summaryHint string
}

var (
	compassionateWriter = writer{
		id:          WriterCompassionate,
		stage:       StageCompassionate,
		role:        RoleCompassionate,
		name:        "Compassionate Writer",
		prompt:      compassionatePrompt,
		temperature: compassionateTemperature,
		tone:        "warm",
		task:        "Write a warm, easy-to-read summary of this page.",
		summaryHint: "2-3 short, calm sentences",
	}
	technicalWriter = writer{
		id:          WriterTechnical,
		stage:       StageTechnical,
		role:        RoleTechnical,
		name:        "Technical Writer",
		prompt:      technicalPrompt,
		temperature: technicalTemperature,
		tone:        "direct",
		task:        "Write a precise, fact-first summary of this page.",
		summaryHint: "2-3 sentences carrying the key facts",
	}
)

func (w writer) start(s AgentState) []workflow.LogEntry {
	var logs []workflow.LogEntry
	if s.RevisionCount > 0 && s.QualityReport != nil && !s.QualityReport.Approved {
		logs = append(logs, workflow.NewLogEntry(w.role, RoleArbiter, workflow.ActionRevise,
			fmt.Sprintf("Revising %s summary (revision %d)", w.id, s.RevisionCount),
			s.QualityReport.RevisionInstructions))
	}
	if w.id == WriterTechnical {
		return append(logs, workflow.NewLogEntry(w.role, workflow.ToState, workflow.ActionAnalyze,
			"Crafting technical summary",
			"Page type: "+pageType(s)))
	}
	return append(logs, workflow.NewLogEntry(w.role, workflow.ToState, workflow.ActionAnalyze,
		"Crafting compassionate summary",
		fmt.Sprintf("Page complexity: %s, Risk: %s", complexity(s), riskLevel(s))))
}

// guidance renders the caller's instructions and the reviewer's feedback on
// the previous draft, if any.
func (w writer) guidance(s AgentState) string {
	var sb strings.Builder
	if s.CustomPrompt != "" {
		sb.WriteString("\nADDITIONAL INSTRUCTIONS:\n" + s.CustomPrompt + "\n")
	}
	if r := s.QualityReport; r != nil && !r.Approved && r.RevisionInstructions != "" {
		sb.WriteString("\nREVIEWER FEEDBACK ON THE PREVIOUS DRAFT:\n" + r.RevisionInstructions + "\n")
	}
	return sb.String()
}

func (a *agents) write(w writer) workflow.Stage[AgentState, Update] {
	return func(ctx context.Context, s AgentState) (Update, error) {
		logs := w.start(s)

		resp, err := a.ask(ctx, w.stage, w.prompt, w.temperature, map[string]string{
			"task":        w.task,
			"purpose":     purpose(s, "Unknown"),
			"pageType":    pageType(s),
			"complexity":  complexity(s),
			"security":    pretty(s.SecurityAnalysis),
			"content":     clip(s.Page.TextContent, a.cfg.WriterContentChars),
			"ctas":        formatCTAs(s.IdentifiedCTAs),
			"guidance":    w.guidance(s),
			"summaryHint": w.summaryHint,
		})
		if err != nil {
			return Update{}, err
		}

		var parsed WriterOutput
		ok, err := a.decoder.decode(w.stage, resp, &parsed)
		if err != nil {
			return Update{}, err
		}
		if !ok {
			a.rejected(w.stage, resp)
			logs = append(logs, workflow.NewLogEntry(w.role, workflow.ToState, workflow.ActionOutput,
				fmt.Sprintf("Failed to generate %s summary", w.id)))
			return Update{
				CommunicationLog: logs,
				Errors:           []string{w.name + " failed to parse response"},
			}, nil
		}

		out := WriterOutput{
			WriterID:   w.id,
			Title:      orDefault(parsed.Title, "Page Summary"),
			Summary:    parsed.Summary,
			KeyPoints:  orEmpty(parsed.KeyPoints),
			LegalNotes: orEmpty(parsed.LegalNotes),
			Warnings:   orEmpty(parsed.Warnings),
			Tone:       orDefault(parsed.Tone, w.tone),
			Reasoning:  parsed.Reasoning,
		}
		logs = append(logs, workflow.NewLogEntry(w.role, RoleArbiter, workflow.ActionOutput,
			fmt.Sprintf("Completed %s summary: %q", w.id, out.Title),
			"Tone: "+out.Tone))

		return Update{
			WriterOutputs:    []WriterOutput{out},
			CommunicationLog: logs,
		}, nil
	}
}

func (a *agents) writeFallback(w writer) workflow.FallbackFunc[AgentState, Update] {
	return func(s AgentState, err error) Update {
		return Update{
			CommunicationLog: append(w.start(s), errorEntry(w.role, err)),
			Errors:           []string{w.name + " error: " + err.Error()},
		}
	}
}

// =============================================================================
// Arbiter
// =============================================================================

func (a *agents) arbiter(ctx context.Context, s AgentState) (Update, error) {
	compassionate, hasCompassionate := s.Writer(WriterCompassionate)
	technical, hasTechnical := s.Writer(WriterTechnical)

	switch {
	case !hasCompassionate && !hasTechnical:
		return Update{
			Errors: []string{"Arbiter missing all writer outputs"},
			CommunicationLog: []workflow.LogEntry{workflow.NewLogEntry(RoleArbiter, workflow.ToState, workflow.ActionOutput,
				"No writer outputs available")},
			ArbiterDecision: &ArbiterDecision{
				ChosenWriter:  WriterMerged,
				Reasoning:     "No writer outputs available, using fallback",
				Disagreements: []Disagreement{},
				MergedContent: Content{
					Title:      orDefault(s.Page.Title, "Page Summary"),
					Summary:    orDefault(s.Page.Excerpt, "Unable to generate summary."),
					KeyPoints:  []string{},
					LegalNotes: []LegalNote{},
					Warnings:   []string{},
				},
			},
		}, nil

	case !hasCompassionate || !hasTechnical:
		available := compassionate
		if !hasCompassionate {
			available = technical
		}
		return Update{
			CommunicationLog: []workflow.LogEntry{workflow.NewLogEntry(RoleArbiter, workflow.ToState, workflow.ActionDecide,
				"Using only available output: "+available.WriterID)},
			ArbiterDecision: singleDecision(available, "Only one writer output available"),
		}, nil
	}

	logs := []workflow.LogEntry{arbiterStart(compassionate, technical)}

	resp, err := a.ask(ctx, StageArbiter, arbiterPrompt, arbiterTemperature, map[string]string{
		"pageType":      pageType(s),
		"purpose":       purpose(s, "Unknown"),
		"riskLevel":     riskLevel(s),
		"complexity":    complexity(s),
		"compassionate": pretty(compassionate),
		"technical":     pretty(technical),
		"security":      pretty(s.SecurityAnalysis),
	})
	if err != nil {
		return Update{}, err
	}

	var parsed struct {
		ChosenWriter  string         `json:"chosenWriter"`
		Reasoning     string         `json:"reasoning"`
		Disagreements []Disagreement `json:"disagreements"`
		MergedContent *Content       `json:"mergedContent"`
	}
	ok, err := a.decoder.decode(StageArbiter, resp, &parsed)
	if err != nil {
		return Update{}, err
	}
	if ok && parsed.MergedContent == nil {
		if a.decoder.mode == config.DecodeStrict {
			return Update{}, types.NewError(types.ErrDecodeFailed, "arbiter response has no mergedContent").WithStage(StageArbiter)
		}
		ok = false
	}
	if !ok {
		a.rejected(StageArbiter, resp)
		logs = append(logs, workflow.NewLogEntry(RoleArbiter, workflow.ToState, workflow.ActionOutput,
			"Failed to parse, using compassionate output"))
		return Update{
			CommunicationLog: logs,
			ArbiterDecision:  singleDecision(compassionate, "Arbiter parse failed, defaulting to compassionate output"),
		}, nil
	}

	decision := &ArbiterDecision{
		ChosenWriter:  orDefault(parsed.ChosenWriter, WriterMerged),
		Reasoning:     parsed.Reasoning,
		Disagreements: orEmpty(parsed.Disagreements),
		MergedContent: Content{
			Title:      orDefault(parsed.MergedContent.Title, "Summary"),
			Summary:    parsed.MergedContent.Summary,
			KeyPoints:  orEmpty(parsed.MergedContent.KeyPoints),
			LegalNotes: orEmpty(parsed.MergedContent.LegalNotes),
			Warnings:   orEmpty(parsed.MergedContent.Warnings),
		},
	}
	logs = append(logs, workflow.NewLogEntry(RoleArbiter, RoleGuardian, workflow.ActionDecide,
		fmt.Sprintf("Decision: %s. %d disagreements resolved.", decision.ChosenWriter, len(decision.Disagreements)),
		decision.Reasoning))

	return Update{
		ArbiterDecision:  decision,
		CommunicationLog: logs,
	}, nil
}

func arbiterStart(compassionate, technical WriterOutput) workflow.LogEntry {
	return workflow.NewLogEntry(RoleArbiter, workflow.ToState, workflow.ActionAnalyze,
		"Evaluating writer outputs",
		fmt.Sprintf("Comparing compassionate (%q) vs technical (%q)", compassionate.Title, technical.Title))
}

func singleDecision(w WriterOutput, reasoning string) *ArbiterDecision {
	return &ArbiterDecision{
		ChosenWriter:  w.WriterID,
		Reasoning:     reasoning,
		Disagreements: []Disagreement{},
		MergedContent: w.content(),
	}
}

// arbiterFallback keeps the compassionate draft when the comparison call
// fails.
func (a *agents) arbiterFallback(s AgentState, err error) Update {
	compassionate, ok := s.Writer(WriterCompassionate)
	if !ok {
		compassionate, _ = s.Writer(WriterTechnical)
	}
	technical, _ := s.Writer(WriterTechnical)
	decision := singleDecision(compassionate, "Arbiter error: "+err.Error())
	decision.ChosenWriter = WriterCompassionate
	return Update{
		ArbiterDecision:  decision,
		CommunicationLog: []workflow.LogEntry{arbiterStart(compassionate, technical), errorEntry(RoleArbiter, err)},
		Errors:           []string{"Arbiter error: " + err.Error()},
	}
}

// =============================================================================
// Guardian
// =============================================================================

func guardianStart(s AgentState) workflow.LogEntry {
	return workflow.NewLogEntry(RoleGuardian, workflow.ToState, workflow.ActionAnalyze,
		fmt.Sprintf("Quality review (attempt %d)", s.RevisionCount+1),
		fmt.Sprintf("Reviewing arbiter's %s decision", s.ArbiterDecision.ChosenWriter))
}

func autoApproved() *QualityReport {
	return &QualityReport{
		IsComplete:                true,
		MissingCriticalInfo:       []string{},
		Oversimplifications:       []string{},
		SecurityConcernsAddressed: true,
		Accuracy:                  "medium",
		Suggestions:               []string{},
		Approved:                  true,
	}
}

// guardian reviews the merged draft. It owns the revision flag and counter:
// every completed review increments the counter, and a rejection asks for a
// rewrite only while the counter is below the ceiling.
func (a *agents) guardian(ctx context.Context, s AgentState) (Update, error) {
	if s.ArbiterDecision == nil {
		return Update{
			Errors:        []string{"Guardian missing arbiter decision"},
			NeedsRevision: ptr(false),
			QualityReport: &QualityReport{
				MissingCriticalInfo: []string{"No arbiter decision"},
				Oversimplifications: []string{},
				Accuracy:            "low",
				Suggestions:         []string{},
			},
		}, nil
	}

	logs := []workflow.LogEntry{guardianStart(s)}

	resp, err := a.ask(ctx, StageGuardian, guardianPrompt, guardianTemperature, map[string]string{
		"content":   clip(s.Page.TextContent, a.cfg.WriterContentChars),
		"security":  pretty(s.SecurityAnalysis),
		"ctas":      formatCTAs(s.IdentifiedCTAs),
		"summary":   pretty(s.ArbiterDecision.MergedContent),
		"reasoning": s.ArbiterDecision.Reasoning,
	})
	if err != nil {
		return Update{}, err
	}

	var parsed struct {
		IsComplete                *bool    `json:"isComplete"`
		MissingCriticalInfo       []string `json:"missingCriticalInfo"`
		Oversimplifications       []string `json:"oversimplifications"`
		SecurityConcernsAddressed *bool    `json:"securityConcernsAddressed"`
		Accuracy                  string   `json:"accuracy"`
		Suggestions               []string `json:"suggestions"`
		Approved                  *bool    `json:"approved"`
		RevisionInstructions      string   `json:"revisionInstructions"`
	}
	ok, err := a.decoder.decode(StageGuardian, resp, &parsed)
	if err != nil {
		return Update{}, err
	}
	if !ok {
		a.rejected(StageGuardian, resp)
		logs = append(logs, workflow.NewLogEntry(RoleGuardian, workflow.ToState, workflow.ActionOutput,
			"Failed to parse - auto-approving"))
		return Update{
			CommunicationLog: logs,
			QualityReport:    autoApproved(),
			NeedsRevision:    ptr(false),
		}, nil
	}

	report := &QualityReport{
		IsComplete:                deref(parsed.IsComplete, true),
		MissingCriticalInfo:       orEmpty(parsed.MissingCriticalInfo),
		Oversimplifications:       orEmpty(parsed.Oversimplifications),
		SecurityConcernsAddressed: deref(parsed.SecurityConcernsAddressed, true),
		Accuracy:                  orDefault(parsed.Accuracy, "medium"),
		Suggestions:               orEmpty(parsed.Suggestions),
		Approved:                  deref(parsed.Approved, true),
		RevisionInstructions:      parsed.RevisionInstructions,
	}
	needsRevision := !report.Approved && s.RevisionCount < a.cfg.RevisionCeiling

	if report.Approved {
		var detail []string
		if len(report.Suggestions) > 0 {
			detail = append(detail, "Suggestions: "+strings.Join(report.Suggestions, "; "))
		}
		logs = append(logs, workflow.NewLogEntry(RoleGuardian, workflow.ToState, workflow.ActionApprove,
			"✓ Approved. Accuracy: "+report.Accuracy, detail...))
	} else {
		to := workflow.ToState
		if needsRevision {
			to = RoleArbiter
		}
		logs = append(logs, workflow.NewLogEntry(RoleGuardian, to, workflow.ActionCritique,
			fmt.Sprintf("✗ Not approved. Missing: %d", len(report.MissingCriticalInfo)),
			report.RevisionInstructions))
	}

	a.logger.Debug("quality review complete",
		zap.Int("revision", s.RevisionCount),
		zap.Bool("approved", report.Approved),
		zap.Bool("needs_revision", needsRevision))

	return Update{
		QualityReport:    report,
		NeedsRevision:    ptr(needsRevision),
		RevisionCount:    ptr(s.RevisionCount + 1),
		CommunicationLog: logs,
	}, nil
}

// guardianFallback approves the draft when the review call fails, so the run
// still reaches assembly.
func (a *agents) guardianFallback(s AgentState, err error) Update {
	logs := []workflow.LogEntry{errorEntry(RoleGuardian, err)}
	if s.ArbiterDecision != nil {
		logs = append([]workflow.LogEntry{guardianStart(s)}, logs...)
	}
	return Update{
		CommunicationLog: logs,
		Errors:           []string{"Guardian error: " + err.Error()},
		NeedsRevision:    ptr(false),
		QualityReport:    autoApproved(),
	}
}

// =============================================================================
// Formatting helpers
// =============================================================================

func formatActions(page Page) string {
	if page.Actions == nil && page.PrimaryActions == nil {
		return "No actions detected"
	}
	relevant := page.PrimaryActions
	if len(relevant) == 0 {
		relevant = page.Actions[:min(len(page.Actions), primaryActionLimit)]
	}

	lines := make([]string, 0, len(relevant))
	for _, action := range relevant {
		parts := []string{fmt.Sprintf("- [%s] %q", action.Type, action.Label)}
		if action.Href != "" {
			parts = append(parts, "→ "+action.Href)
		}
		if action.Disabled {
			parts = append(parts, "(disabled)")
		}
		parts = append(parts, "["+action.Importance+"]")
		lines = append(lines, strings.Join(parts, " "))
	}
	return strings.Join(lines, "\n")
}

func formatCTAs(ctas []IdentifiedCTA) string {
	if len(ctas) == 0 {
		return "No CTAs identified"
	}
	lines := make([]string, 0, len(ctas))
	for _, cta := range ctas {
		lines = append(lines, fmt.Sprintf("- %q [%s]: %s", cta.Label, cta.Importance, cta.Purpose))
	}
	return strings.Join(lines, "\n")
}

func errorEntry(role string, err error) workflow.LogEntry {
	return workflow.NewLogEntry(role, workflow.ToState, workflow.ActionOutput, "Error: "+err.Error())
}

func pretty(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	return string(data)
}

func pageType(s AgentState) string {
	if s.PageStructure == nil {
		return "unknown"
	}
	return orDefault(s.PageStructure.PageType, "unknown")
}

func purpose(s AgentState, fallback string) string {
	if s.PageStructure == nil {
		return fallback
	}
	return orDefault(s.PageStructure.MainPurpose, fallback)
}

func complexity(s AgentState) string {
	if s.PageStructure == nil {
		return "moderate"
	}
	return orDefault(s.PageStructure.Complexity, "moderate")
}

func riskLevel(s AgentState) string {
	if s.SecurityAnalysis == nil {
		return "unknown"
	}
	return orDefault(s.SecurityAnalysis.RiskLevel, "unknown")
}

// clip truncates s to limit runes. A non-positive limit disables clipping.
func clip(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
