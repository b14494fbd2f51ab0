package domain

import "strings"

// Role identifies who spoke a turn.
type Role string

const (
	RoleAgent   Role = "agent"
	RolePatient Role = "patient"
)

// Turn is one utterance in a call. Turns are appended and never edited.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Scenario describes one scripted patient goal placed against the agent under test.
type Scenario struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Goal             string `json:"goal" yaml:"goal"`
	Persona          string `json:"persona" yaml:"persona"`
	InitialUtterance string `json:"initial_utterance" yaml:"initial_utterance"`
	EdgeCaseType     string `json:"edge_case_type" yaml:"edge_case_type"`
	ExpectedBehavior string `json:"expected_behavior" yaml:"expected_behavior"`
}

// Patient is the identity the simulated caller presents.
type Patient struct {
	ID       uint   `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone"`
	DOB      string `json:"dob"`
}

// FirstName returns the first whitespace separated token of the full name.
func (p Patient) FirstName() string {
	fields := strings.Fields(p.FullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Severity ranks a finding. Lower Rank sorts first.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity in report order.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank returns the sort position of the severity; unknown values sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// Title is the capitalised label used in rendered reports.
func (s Severity) Title() string {
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// ParseSeverity normalises a free-form severity label. Unrecognised input maps to low.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Category is a defect class in the analyzer taxonomy.
type Category string

const (
	CategoryLogic       Category = "logic"
	CategorySafety      Category = "safety"
	CategoryPrivacy     Category = "privacy"
	CategoryBrokenFlow  Category = "broken-flow"
	CategoryScope       Category = "scope"
	CategoryUX          Category = "ux"
	CategoryMultiIntent Category = "multi-intent"
	CategoryGarbled     Category = "garbled"
)

// AlwaysCritical reports whether findings in this category must be rated critical.
func (c Category) AlwaysCritical() bool {
	return c == CategorySafety || c == CategoryPrivacy
}

// ParseCategory maps the labels models tend to produce onto the taxonomy.
// The second return is false when nothing matched.
func ParseCategory(raw string) (Category, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return "", false
	case strings.Contains(s, "safety"):
		return CategorySafety, true
	case strings.Contains(s, "privacy"), strings.Contains(s, "hipaa"):
		return CategoryPrivacy, true
	case strings.Contains(s, "multi"):
		return CategoryMultiIntent, true
	case strings.Contains(s, "broken"), strings.Contains(s, "flow"):
		return CategoryBrokenFlow, true
	case strings.Contains(s, "scope"):
		return CategoryScope, true
	case strings.Contains(s, "garbled"):
		return CategoryGarbled, true
	case strings.HasPrefix(s, "ux"), strings.Contains(s, "user experience"):
		return CategoryUX, true
	case strings.Contains(s, "logic"):
		return CategoryLogic, true
	default:
		return "", false
	}
}

// Finding is one defect extracted from a transcript.
type Finding struct {
	Category         Category `json:"category"`
	Severity         Severity `json:"severity"`
	Description      string   `json:"description"`
	AgentQuote       string   `json:"agent_quote"`
	ExpectedBehavior string   `json:"expected_behavior"`
	ScenarioID       string   `json:"scenario_id"`
	TurnNumber       int      `json:"turn_number"`
}
