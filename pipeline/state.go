package pipeline

import (
	"slices"

	"github.com/BaSui01/flowstate/workflow"
)

// AgentState is the shared state of one summary run.
type AgentState struct {
	// Inputs, fixed at run start.
	Page         Page
	CustomPrompt string

	IdentifiedCTAs   []IdentifiedCTA
	PageStructure    *PageStructure
	SecurityAnalysis *SecurityAnalysis
	WriterOutputs    []WriterOutput
	ArbiterDecision  *ArbiterDecision
	QualityReport    *QualityReport
	NeedsRevision    bool
	RevisionCount    int
	FinalSummary     string

	CommunicationLog []workflow.LogEntry
	Errors           []string
}

// NewState returns the initial state for page.
func NewState(page Page, customPrompt string) AgentState {
	return AgentState{Page: page, CustomPrompt: customPrompt}
}

// Writer returns the latest draft of a writer.
func (s AgentState) Writer(id string) (WriterOutput, bool) {
	i := slices.IndexFunc(s.WriterOutputs, func(w WriterOutput) bool { return w.WriterID == id })
	if i < 0 {
		return WriterOutput{}, false
	}
	return s.WriterOutputs[i], true
}

// Update is the partial update returned by a stage. Nil fields are left
// untouched; WriterOutputs is upserted by WriterID; CommunicationLog and
// Errors are appended.
type Update struct {
	IdentifiedCTAs   *[]IdentifiedCTA
	PageStructure    *PageStructure
	SecurityAnalysis *SecurityAnalysis
	WriterOutputs    []WriterOutput
	ArbiterDecision  *ArbiterDecision
	QualityReport    *QualityReport
	NeedsRevision    *bool
	RevisionCount    *int
	FinalSummary     *string

	CommunicationLog []workflow.LogEntry
	Errors           []string
}

func ptr[T any](v T) *T {
	return &v
}

// Schema is the merge policy of AgentState. The revision counter keys the
// engine's visited set, so a guardian-requested rewrite runs the writer again.
func Schema() workflow.Schema[AgentState, Update] {
	return workflow.Schema[AgentState, Update]{
		Merge: merge,
		ErrorUpdate: func(message string) Update {
			return Update{Errors: []string{message}}
		},
		Revision: func(s AgentState) int {
			return s.RevisionCount
		},
		Clone: clone,
	}
}

func merge(s AgentState, u Update) AgentState {
	s.IdentifiedCTAs = workflow.Replace(s.IdentifiedCTAs, u.IdentifiedCTAs)
	s.PageStructure = replaceSet(s.PageStructure, u.PageStructure)
	s.SecurityAnalysis = replaceSet(s.SecurityAnalysis, u.SecurityAnalysis)
	s.WriterOutputs = workflow.UpsertByKey(s.WriterOutputs, u.WriterOutputs, func(w WriterOutput) string { return w.WriterID })
	s.ArbiterDecision = replaceSet(s.ArbiterDecision, u.ArbiterDecision)
	s.QualityReport = replaceSet(s.QualityReport, u.QualityReport)
	s.NeedsRevision = workflow.Replace(s.NeedsRevision, u.NeedsRevision)
	s.RevisionCount = workflow.Replace(s.RevisionCount, u.RevisionCount)
	s.FinalSummary = workflow.Replace(s.FinalSummary, u.FinalSummary)
	s.CommunicationLog = workflow.Append(s.CommunicationLog, u.CommunicationLog)
	s.Errors = workflow.Append(s.Errors, u.Errors)
	return s
}

func replaceSet[T any](current, update *T) *T {
	if update == nil {
		return current
	}
	return update
}

func clone(s AgentState) AgentState {
	s.Page.Actions = slices.Clone(s.Page.Actions)
	s.Page.PrimaryActions = slices.Clone(s.Page.PrimaryActions)
	s.IdentifiedCTAs = slices.Clone(s.IdentifiedCTAs)
	s.PageStructure = clonePtr(s.PageStructure)
	s.SecurityAnalysis = clonePtr(s.SecurityAnalysis)
	s.WriterOutputs = slices.Clone(s.WriterOutputs)
	s.ArbiterDecision = clonePtr(s.ArbiterDecision)
	s.QualityReport = clonePtr(s.QualityReport)
	s.CommunicationLog = slices.Clone(s.CommunicationLog)
	s.Errors = slices.Clone(s.Errors)
	return s
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
