package pipeline

import (
	"context"
	"testing"

	"github.com/BaSui01/flowstate/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assembledState() AgentState {
	s := NewState(Page{Title: "Checkout"}, "")
	s.IdentifiedCTAs = []IdentifiedCTA{
		{Label: "Subscribe", Purpose: "Starts a paid yearly plan", Importance: "critical"},
		{Label: "Learn more", Purpose: "Opens the plan details", Importance: "optional"},
	}
	s.SecurityAnalysis = &SecurityAnalysis{
		RiskLevel: RiskHigh,
		FinancialActions: []FinancialAction{
			{Action: "Subscribe", Warning: "Renews automatically", Reversible: false},
			{Action: "Add gift wrap", Warning: "Adds $2", Reversible: true},
		},
		DarkPatterns: []DarkPattern{
			{Type: "urgency", Description: "Countdown timer pushes a quick decision", Severity: "severe"},
			{Type: "confirmshaming", Description: "Decline link is worded to shame", Severity: "minor"},
		},
	}
	s.ArbiterDecision = &ArbiterDecision{
		ChosenWriter: WriterMerged,
		MergedContent: Content{
			Title:     "Yearly plan",
			Summary:   "You are about to pay $120 for a year.",
			KeyPoints: []string{"It costs $120 a year", "It renews by itself"},
			LegalNotes: []LegalNote{
				{Simplified: "It keeps charging you every year until you cancel", Importance: "high"},
				{Simplified: "Tax is included", Importance: "low"},
			},
			Warnings: []string{"You cannot get a refund"},
		},
	}
	s.QualityReport = &QualityReport{Approved: true}
	return s
}

func TestAssemble_FullSummary(t *testing.T) {
	update, err := assemble(context.Background(), assembledState())
	require.NoError(t, err)
	require.NotNil(t, update.FinalSummary)

	want := "# Yearly plan\n" +
		"You are about to pay $120 for a year.\n" +
		"\n> ⚠️ **HIGH RISK**: Please read carefully before proceeding.\n" +
		"\n## What You Need to Know\n" +
		"• It costs $120 a year\n• It renews by itself\n" +
		"\n## 💰 Financial Actions\n" +
		"• **Subscribe** - Renews automatically (⚠️ Cannot be undone)\n" +
		"• **Add gift wrap** - Adds $2 (✓ Can be undone)\n" +
		"\n## ⚠️ Watch Out For\n" +
		"• **urgency**: Countdown timer pushes a quick decision\n" +
		"\n## Main Actions\n" +
		"• **Subscribe**: Starts a paid yearly plan\n" +
		"\n## ⚠️ Important Warnings\n" +
		"• You cannot get a refund\n" +
		"\n## Fine Print (Simplified)\n" +
		"• It keeps charging you every year until you cancel"
	assert.Equal(t, want, *update.FinalSummary)
}

func TestAssemble_LogEntry(t *testing.T) {
	s := assembledState()
	s.CommunicationLog = make([]workflow.LogEntry, 4)

	update, err := assemble(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, update.CommunicationLog, 1)
	entry := update.CommunicationLog[0]
	assert.Equal(t, RoleGuardian, entry.From)
	assert.Equal(t, workflow.ActionOutput, entry.Action)
	assert.Equal(t, "Assembling final output", entry.Summary)
	assert.Equal(t, "Total communication entries: 4", entry.Detail)
}

func TestAssemble_NoDecision(t *testing.T) {
	update, err := assemble(context.Background(), NewState(Page{}, ""))
	require.NoError(t, err)
	require.NotNil(t, update.FinalSummary)
	assert.Equal(t, "Unable to generate summary. Please try again.", *update.FinalSummary)
}

func TestAssemble_MinimalDecision(t *testing.T) {
	s := NewState(Page{}, "")
	s.ArbiterDecision = &ArbiterDecision{MergedContent: Content{Summary: "Plain article."}}

	update, err := assemble(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "# Page Summary\nPlain article.", *update.FinalSummary)
}

func TestAssemble_RiskBanner(t *testing.T) {
	for level, banner := range map[string]bool{
		RiskLow:      false,
		RiskMedium:   false,
		RiskHigh:     true,
		RiskCritical: true,
	} {
		s := NewState(Page{}, "")
		s.ArbiterDecision = &ArbiterDecision{MergedContent: Content{Title: "T", Summary: "S"}}
		s.SecurityAnalysis = &SecurityAnalysis{RiskLevel: level}

		update, err := assemble(context.Background(), s)
		require.NoError(t, err)
		if banner {
			assert.Contains(t, *update.FinalSummary, "**"+map[string]string{RiskHigh: "HIGH", RiskCritical: "CRITICAL"}[level]+" RISK**", level)
		} else {
			assert.NotContains(t, *update.FinalSummary, "RISK**", level)
		}
	}
}

func TestAssemble_UnapprovedReviewAddsNote(t *testing.T) {
	s := assembledState()
	s.QualityReport = &QualityReport{Approved: false}

	update, err := assemble(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, *update.FinalSummary,
		"\n\n---\n*Note: This summary may be incomplete. Please review the original page carefully.*")

	s.QualityReport = nil
	update, err = assemble(context.Background(), s)
	require.NoError(t, err)
	assert.NotContains(t, *update.FinalSummary, "*Note:")
}
