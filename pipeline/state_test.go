package pipeline

import (
	"testing"

	"github.com/BaSui01/flowstate/workflow"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestMerge_ReplaceUpsertAppend(t *testing.T) {
	schema := Schema()
	s := NewState(Page{Title: "p"}, "be brief")

	s = schema.Merge(s, Update{
		WriterOutputs:    []WriterOutput{{WriterID: WriterCompassionate, Title: "v1"}},
		CommunicationLog: []workflow.LogEntry{{Summary: "one"}},
		Errors:           []string{"e1"},
		RevisionCount:    ptr(1),
	})
	s = schema.Merge(s, Update{
		WriterOutputs:    []WriterOutput{{WriterID: WriterTechnical, Title: "t1"}, {WriterID: WriterCompassionate, Title: "v2"}},
		CommunicationLog: []workflow.LogEntry{{Summary: "two"}},
		Errors:           []string{"e2"},
		NeedsRevision:    ptr(true),
	})

	assert.Equal(t, "p", s.Page.Title)
	assert.Equal(t, "be brief", s.CustomPrompt)
	assert.Len(t, s.WriterOutputs, 2)
	w, ok := s.Writer(WriterCompassionate)
	assert.True(t, ok)
	assert.Equal(t, "v2", w.Title)
	assert.Equal(t, WriterCompassionate, s.WriterOutputs[0].WriterID)
	assert.Equal(t, []string{"e1", "e2"}, s.Errors)
	assert.Len(t, s.CommunicationLog, 2)
	assert.Equal(t, 1, s.RevisionCount, "unset fields keep their value")
	assert.True(t, s.NeedsRevision)

	_, ok = s.Writer(WriterMerged)
	assert.False(t, ok)
}

func TestMerge_ExplicitZeroValuesReplace(t *testing.T) {
	schema := Schema()
	s := AgentState{NeedsRevision: true, FinalSummary: "old", IdentifiedCTAs: []IdentifiedCTA{{Label: "a"}}}

	s = schema.Merge(s, Update{NeedsRevision: ptr(false), FinalSummary: ptr(""), IdentifiedCTAs: &[]IdentifiedCTA{}})
	assert.False(t, s.NeedsRevision)
	assert.Empty(t, s.FinalSummary)
	assert.Empty(t, s.IdentifiedCTAs)
}

func TestSchema_RevisionAndErrorUpdate(t *testing.T) {
	schema := Schema()
	assert.Equal(t, 3, schema.Revision(AgentState{RevisionCount: 3}))

	s := schema.Merge(AgentState{Errors: []string{"a"}}, schema.ErrorUpdate("b"))
	assert.Equal(t, []string{"a", "b"}, s.Errors)
}

func TestClone_Isolated(t *testing.T) {
	s := AgentState{
		Page:             Page{Actions: []Action{{Label: "a"}}},
		WriterOutputs:    []WriterOutput{{WriterID: WriterTechnical}},
		SecurityAnalysis: &SecurityAnalysis{RiskLevel: RiskLow},
		Errors:           []string{"x"},
	}
	c := Schema().Clone(s)
	c.Page.Actions[0].Label = "changed"
	c.WriterOutputs[0].Title = "changed"
	c.SecurityAnalysis.RiskLevel = RiskHigh
	c.Errors[0] = "changed"

	assert.Equal(t, "a", s.Page.Actions[0].Label)
	assert.Empty(t, s.WriterOutputs[0].Title)
	assert.Equal(t, RiskLow, s.SecurityAnalysis.RiskLevel)
	assert.Equal(t, "x", s.Errors[0])
}

func TestMerge_ErrorsAndLogOnlyGrow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		schema := Schema()
		s := NewState(Page{}, "")
		steps := rapid.SliceOfN(rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,4}`), 0, 3), 0, 8).Draw(t, "steps")

		var want []string
		for _, errs := range steps {
			prevLog := len(s.CommunicationLog)
			s = schema.Merge(s, Update{
				Errors:           errs,
				CommunicationLog: make([]workflow.LogEntry, len(errs)),
			})
			want = append(want, errs...)
			if len(s.CommunicationLog) != prevLog+len(errs) {
				t.Fatalf("log grew by %d, want %d", len(s.CommunicationLog)-prevLog, len(errs))
			}
		}
		if len(s.Errors) != len(want) {
			t.Fatalf("got %d errors, want %d", len(s.Errors), len(want))
		}
		for i := range want {
			if s.Errors[i] != want[i] {
				t.Fatalf("error %d = %q, want %q", i, s.Errors[i], want[i])
			}
		}
	})
}

func TestMerge_WriterUpsertKeepsOneDraftPerWriter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		schema := Schema()
		s := NewState(Page{}, "")
		ids := rapid.SliceOf(rapid.SampledFrom([]string{WriterCompassionate, WriterTechnical})).Draw(t, "ids")

		last := map[string]int{}
		for i, id := range ids {
			s = schema.Merge(s, Update{WriterOutputs: []WriterOutput{{WriterID: id, Reasoning: string(rune('a' + i%26))}}})
			last[id] = i
		}
		if len(s.WriterOutputs) != len(last) {
			t.Fatalf("got %d drafts, want %d", len(s.WriterOutputs), len(last))
		}
		for id, i := range last {
			w, ok := s.Writer(id)
			if !ok || w.Reasoning != string(rune('a'+i%26)) {
				t.Fatalf("writer %s holds %q, want draft %d", id, w.Reasoning, i)
			}
		}
	})
}
