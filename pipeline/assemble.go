package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/flowstate/workflow"
)

const unavailableSummary = "Unable to generate summary. Please try again."

// assemble renders the final markdown summary from the arbiter's decision,
// the security findings and the guardian's verdict. It makes no external
// calls and never fails.
func assemble(_ context.Context, s AgentState) (Update, error) {
	logs := []workflow.LogEntry{workflow.NewLogEntry(RoleGuardian, workflow.ToState, workflow.ActionOutput,
		"Assembling final output",
		fmt.Sprintf("Total communication entries: %d", len(s.CommunicationLog)))}

	if s.ArbiterDecision == nil {
		return Update{FinalSummary: ptr(unavailableSummary), CommunicationLog: logs}, nil
	}
	return Update{FinalSummary: ptr(render(s)), CommunicationLog: logs}, nil
}

func render(s AgentState) string {
	content := s.ArbiterDecision.MergedContent
	security := s.SecurityAnalysis

	sections := []string{
		"# " + orDefault(content.Title, "Page Summary"),
		content.Summary,
	}

	if security != nil && (security.RiskLevel == RiskHigh || security.RiskLevel == RiskCritical) {
		sections = append(sections, fmt.Sprintf(
			"\n> ⚠️ **%s RISK**: Please read carefully before proceeding.", strings.ToUpper(security.RiskLevel)))
	}

	if len(content.KeyPoints) > 0 {
		sections = append(sections, "\n## What You Need to Know", bullets(content.KeyPoints))
	}

	if security != nil && len(security.FinancialActions) > 0 {
		sections = append(sections, "\n## 💰 Financial Actions")
		for _, fa := range security.FinancialActions {
			note := "⚠️ Cannot be undone"
			if fa.Reversible {
				note = "✓ Can be undone"
			}
			sections = append(sections, fmt.Sprintf("• **%s** - %s (%s)", fa.Action, fa.Warning, note))
		}
	}

	if security != nil {
		var severe []string
		for _, dp := range security.DarkPatterns {
			if dp.Severity == "severe" {
				severe = append(severe, fmt.Sprintf("• **%s**: %s", dp.Type, dp.Description))
			}
		}
		if len(severe) > 0 {
			sections = append(sections, "\n## ⚠️ Watch Out For")
			sections = append(sections, severe...)
		}
	}

	var critical []string
	for _, cta := range s.IdentifiedCTAs {
		if cta.Importance == "critical" {
			critical = append(critical, fmt.Sprintf("• **%s**: %s", cta.Label, cta.Purpose))
		}
	}
	if len(critical) > 0 {
		sections = append(sections, "\n## Main Actions")
		sections = append(sections, critical...)
	}

	if len(content.Warnings) > 0 {
		sections = append(sections, "\n## ⚠️ Important Warnings", bullets(content.Warnings))
	}

	var fine []string
	for _, note := range content.LegalNotes {
		if note.Importance == "high" {
			fine = append(fine, "• "+note.Simplified)
		}
	}
	if len(fine) > 0 {
		sections = append(sections, "\n## Fine Print (Simplified)")
		sections = append(sections, fine...)
	}

	if s.QualityReport != nil && !s.QualityReport.Approved {
		sections = append(sections,
			"\n---",
			"*Note: This summary may be incomplete. Please review the original page carefully.*")
	}

	return strings.Join(sections, "\n")
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "• " + item
	}
	return strings.Join(lines, "\n")
}
