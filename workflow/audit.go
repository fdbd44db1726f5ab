package workflow

import (
	"strings"
	"time"
)

// ActionKind classifies an audit log entry.
type ActionKind string

const (
	ActionAnalyze  ActionKind = "analyze"
	ActionOutput   ActionKind = "output"
	ActionCritique ActionKind = "critique"
	ActionDecide   ActionKind = "decide"
	ActionRevise   ActionKind = "revise"
	ActionApprove  ActionKind = "approve"
)

// Valid reports whether k is one of the declared kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionAnalyze, ActionOutput, ActionCritique, ActionDecide, ActionRevise, ActionApprove:
		return true
	}
	return false
}

// ToState is the target of entries addressed to the shared state rather than
// to another stage.
const ToState = "state"

// LogEntry is one audit record. Stages contribute entries through their
// partial updates; the log is append-only and carries no control flow.
type LogEntry struct {
	Timestamp time.Time  `json:"timestamp" yaml:"timestamp"`
	From      string     `json:"from" yaml:"from"`
	To        string     `json:"to" yaml:"to"`
	Action    ActionKind `json:"action" yaml:"action"`
	Summary   string     `json:"summary" yaml:"summary"`
	Detail    string     `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// NewLogEntry stamps an entry with the current time. Detail is optional.
func NewLogEntry(from, to string, action ActionKind, summary string, detail ...string) LogEntry {
	return LogEntry{
		Timestamp: time.Now(),
		From:      from,
		To:        to,
		Action:    action,
		Summary:   summary,
		Detail:    strings.Join(detail, " "),
	}
}

const (
	logRule        = "════════════════════════════════════════════════════════════"
	logDetailLimit = 80
)

var actionMarkers = map[ActionKind]string{
	ActionAnalyze:  "🔍",
	ActionOutput:   "📤",
	ActionCritique: "⚠️",
	ActionDecide:   "⚖️",
	ActionRevise:   "🔄",
	ActionApprove:  "✅",
}

// FormatLog renders entries as a human-readable log grouped by consecutive
// author. It never reorders or drops entries.
func FormatLog(entries []LogEntry) string {
	var sb strings.Builder
	sb.WriteString(logRule + "\n")
	sb.WriteString("           AGENT COMMUNICATION LOG\n")
	sb.WriteString(logRule + "\n\n")

	last := ""
	for _, e := range entries {
		if e.From != last {
			sb.WriteString("\n┌─ " + strings.ToUpper(e.From) + " " + strings.Repeat("─", 40) + "\n")
			last = e.From
		}

		arrow := "→ " + e.To
		if e.To == ToState || e.To == "" {
			arrow = "→ 📋"
		}
		marker, ok := actionMarkers[e.Action]
		if !ok {
			marker = "•"
		}

		sb.WriteString("│ [" + e.Timestamp.UTC().Format("15:04:05") + "] " + marker + " " +
			strings.ToUpper(string(e.Action)) + " " + arrow + "\n")
		sb.WriteString("│   " + e.Summary + "\n")
		if e.Detail != "" {
			sb.WriteString("│   └─ " + truncate(e.Detail, logDetailLimit) + "\n")
		}
	}

	sb.WriteString("\n" + logRule)
	return sb.String()
}

// truncate shortens s to limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
