package analyzer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chadiek/patient-qa/internal/domain"
)

// Report is the aggregated result of one analysis pass.
type Report struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	CallsAnalyzed int              `json:"calls_analyzed"`
	Findings      []domain.Finding `json:"findings"`
	Markdown      string           `json:"-"`
	Path          string           `json:"path,omitempty"`
	RemoteURL     string           `json:"remote_url,omitempty"`
}

// NewReport sorts findings by severity and renders the markdown body.
func NewReport(generated time.Time, calls int, findings []domain.Finding) Report {
	sorted := SortBySeverity(findings)
	r := Report{GeneratedAt: generated, CallsAnalyzed: calls, Findings: sorted}
	r.Markdown = Render(r)
	return r
}

// Counts tallies findings per severity.
func (r Report) Counts() map[domain.Severity]int {
	out := make(map[domain.Severity]int, len(domain.Severities))
	for _, f := range r.Findings {
		out[f.Severity]++
	}
	return out
}

// SortBySeverity returns a copy ordered critical first; ties keep input order.
func SortBySeverity(findings []domain.Finding) []domain.Finding {
	out := append([]domain.Finding(nil), findings...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() < out[j].Severity.Rank()
	})
	return out
}

type scenarioGroup struct {
	id       string
	findings []domain.Finding
}

// groupByScenario keeps scenarios in first-seen order.
func groupByScenario(findings []domain.Finding) []scenarioGroup {
	var groups []scenarioGroup
	index := map[string]int{}
	for _, f := range findings {
		id := f.ScenarioID
		if id == "" {
			id = "unknown"
		}
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, scenarioGroup{id: id})
		}
		groups[i].findings = append(groups[i].findings, f)
	}
	return groups
}

// Render produces the markdown bug report.
func Render(r Report) string {
	var b strings.Builder
	b.WriteString("# Bug Report\n\n")
	fmt.Fprintf(&b, "**Generated:** %s  \n", r.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "**Calls analyzed:** %d  \n", r.CallsAnalyzed)
	fmt.Fprintf(&b, "**Total issues:** %d  \n\n", len(r.Findings))

	b.WriteString("| Severity | Count |\n|---|---|\n")
	counts := r.Counts()
	for _, s := range domain.Severities {
		if n := counts[s]; n > 0 {
			fmt.Fprintf(&b, "| %s | %d |\n", s.Title(), n)
		}
	}
	b.WriteString("\n---\n\n")

	if len(r.Findings) == 0 {
		b.WriteString("No issues found.\n")
		return b.String()
	}

	n := 1
	for _, g := range groupByScenario(r.Findings) {
		fmt.Fprintf(&b, "## Scenario: `%s`\n\n", g.id)
		for _, f := range g.findings {
			fmt.Fprintf(&b, "### Bug #%d: %s\n\n", n, orNA(f.Description))
			fmt.Fprintf(&b, "**Category:** %s  \n", f.Category)
			fmt.Fprintf(&b, "**Severity:** %s  \n", f.Severity.Title())
			fmt.Fprintf(&b, "**Turn:** %d  \n\n", f.TurnNumber)
			fmt.Fprintf(&b, "**Agent said:**\n> %s\n\n", orNA(f.AgentQuote))
			fmt.Fprintf(&b, "**Expected behavior:**  \n%s\n\n", orNA(f.ExpectedBehavior))
			b.WriteString("---\n\n")
			n++
		}
	}
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
