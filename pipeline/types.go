package pipeline

// Agent roles as they appear in the communication log.
const (
	RoleNavigator     = "navigator"
	RoleSecurity      = "security-sentinel"
	RoleCompassionate = "compassionate-writer"
	RoleTechnical     = "technical-writer"
	RoleArbiter       = "arbiter"
	RoleGuardian      = "guardian"
)

// Stage names of the summary graph.
const (
	StageNavigator     = "navigator"
	StageSecurity      = "security"
	StageCompassionate = "compassionate_writer"
	StageTechnical     = "technical_writer"
	StageArbiter       = "arbiter"
	StageGuardian      = "guardian"
	StageAssemble      = "assemble"
)

// Writer identifiers.
const (
	WriterCompassionate = "compassionate"
	WriterTechnical     = "technical"
	WriterMerged        = "merged"
)

// Risk levels reported by the security stage.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Page is the readable content extracted from a web page.
type Page struct {
	Title       string `json:"title" yaml:"title"`
	Excerpt     string `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`
	TextContent string `json:"textContent" yaml:"text_content"`
	SiteName    string `json:"siteName,omitempty" yaml:"site_name,omitempty"`
	// Actions is nil when the page could not be scanned for interactive
	// elements.
	Actions        []Action `json:"actions,omitempty" yaml:"actions,omitempty"`
	PrimaryActions []Action `json:"primaryActions,omitempty" yaml:"primary_actions,omitempty"`
}

// Action is an interactive element found on the page.
type Action struct {
	Type       string `json:"type" yaml:"type"`
	Label      string `json:"label" yaml:"label"`
	Href       string `json:"href,omitempty" yaml:"href,omitempty"`
	Disabled   bool   `json:"disabled" yaml:"disabled"`
	Importance string `json:"importance" yaml:"importance"`
}

// IdentifiedCTA is a call-to-action recognised by the navigator.
type IdentifiedCTA struct {
	Label       string `json:"label"`
	Purpose     string `json:"purpose"`
	Importance  string `json:"importance"`
	ElementType string `json:"elementType"`
	// Original is the scanned action the CTA was matched to.
	Original Action `json:"-"`
}

// Section is one part of the page outline.
type Section struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// PageStructure describes what kind of page this is.
type PageStructure struct {
	PageType    string    `json:"pageType"`
	MainPurpose string    `json:"mainPurpose"`
	Sections    []Section `json:"sections"`
	Complexity  string    `json:"complexity"`
}

// FinancialAction is an action that can cost the user money.
type FinancialAction struct {
	Action      string `json:"action"`
	Description string `json:"description"`
	Risk        string `json:"risk"`
	Reversible  bool   `json:"reversible"`
	Warning     string `json:"warning"`
}

// DarkPattern is a manipulative design element.
type DarkPattern struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Severity    string `json:"severity"`
}

// SecurityAnalysis is the risk assessment of the page.
type SecurityAnalysis struct {
	RiskLevel              string            `json:"riskLevel"`
	FinancialActions       []FinancialAction `json:"financialActions"`
	DataCollectionWarnings []string          `json:"dataCollectionWarnings"`
	DarkPatterns           []DarkPattern     `json:"darkPatterns"`
	Recommendations        []string          `json:"recommendations"`
}

// LegalNote is fine print rewritten in plain language.
type LegalNote struct {
	Original   string `json:"original"`
	Simplified string `json:"simplified"`
	Importance string `json:"importance"`
}

// WriterOutput is one writer's draft. Drafts are keyed by WriterID, so a
// revised draft replaces the earlier one from the same writer.
type WriterOutput struct {
	WriterID   string      `json:"writerId"`
	Title      string      `json:"title"`
	Summary    string      `json:"summary"`
	KeyPoints  []string    `json:"keyPoints"`
	LegalNotes []LegalNote `json:"legalNotes"`
	Warnings   []string    `json:"warnings"`
	Tone       string      `json:"tone"`
	Reasoning  string      `json:"reasoning"`
}

// Content is the user-facing body of a summary.
type Content struct {
	Title      string      `json:"title"`
	Summary    string      `json:"summary"`
	KeyPoints  []string    `json:"keyPoints"`
	LegalNotes []LegalNote `json:"legalNotes"`
	Warnings   []string    `json:"warnings"`
}

func (w WriterOutput) content() Content {
	return Content{
		Title:      w.Title,
		Summary:    w.Summary,
		KeyPoints:  w.KeyPoints,
		LegalNotes: w.LegalNotes,
		Warnings:   w.Warnings,
	}
}

// Disagreement records a point the two writers handled differently.
type Disagreement struct {
	Topic             string `json:"topic"`
	CompassionateView string `json:"compassionateView"`
	TechnicalView     string `json:"technicalView"`
	Resolution        string `json:"resolution"`
}

// ArbiterDecision is the merged draft chosen by the arbiter.
type ArbiterDecision struct {
	ChosenWriter  string         `json:"chosenWriter"`
	Reasoning     string         `json:"reasoning"`
	MergedContent Content        `json:"mergedContent"`
	Disagreements []Disagreement `json:"disagreements"`
}

// QualityReport is the guardian's review of the merged draft.
type QualityReport struct {
	IsComplete                bool     `json:"isComplete"`
	MissingCriticalInfo       []string `json:"missingCriticalInfo"`
	Oversimplifications       []string `json:"oversimplifications"`
	SecurityConcernsAddressed bool     `json:"securityConcernsAddressed"`
	Accuracy                  string   `json:"accuracy"`
	Suggestions               []string `json:"suggestions"`
	Approved                  bool     `json:"approved"`
	RevisionInstructions      string   `json:"revisionInstructions,omitempty"`
}
