// Package analyzer extracts defects from saved transcripts and renders the bug report.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chadiek/patient-qa/internal/domain"
	"github.com/chadiek/patient-qa/internal/infra/storage"
	"github.com/chadiek/patient-qa/internal/llm"
	"github.com/chadiek/patient-qa/internal/transcript"
)

const (
	ReportFileName = "bug_report.md"

	defaultMaxTokens   = 1500
	defaultTemperature = 0.2
	defaultTimeout     = 60 * time.Second
)

// ScenarioLookup resolves a scenario id to its definition.
type ScenarioLookup interface {
	Get(id string) (domain.Scenario, error)
}

// FindingSink persists the findings of one run.
type FindingSink interface {
	SaveFindings(ctx context.Context, runID string, findings []domain.Finding) error
}

type Config struct {
	TranscriptsDir string
	OutputsDir     string
	Model          string
}

// Analyzer runs defect extraction per transcript and aggregates the report.
type Analyzer struct {
	completer llm.Completer
	cfg       Config
	scenarios ScenarioLookup
	sink      FindingSink
	uploader  storage.Uploader
	now       func() time.Time
	observe   func(domain.Finding)
}

type Option func(*Analyzer)

func WithScenarios(l ScenarioLookup) Option { return func(a *Analyzer) { a.scenarios = l } }

func WithSink(s FindingSink) Option { return func(a *Analyzer) { a.sink = s } }

func WithUploader(u storage.Uploader) Option { return func(a *Analyzer) { a.uploader = u } }

// WithClock fixes the report generation time.
func WithClock(now func() time.Time) Option { return func(a *Analyzer) { a.now = now } }

// WithObserver is called once for every kept finding.
func WithObserver(fn func(domain.Finding)) Option { return func(a *Analyzer) { a.observe = fn } }

func New(c llm.Completer, cfg Config, opts ...Option) *Analyzer {
	if cfg.TranscriptsDir == "" {
		cfg.TranscriptsDir = "transcripts"
	}
	if cfg.OutputsDir == "" {
		cfg.OutputsDir = "outputs"
	}
	a := &Analyzer{completer: c, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Request scopes one analysis pass to the transcripts of CallIDs, or to every
// saved transcript when All is set.
type Request struct {
	RunID   string
	CallIDs []string
	All     bool
}

// Run analyzes the selected transcripts, writes the report file and forwards
// findings to the sink. A sink or upload failure is logged; the report stands.
func (a *Analyzer) Run(ctx context.Context, req Request) (Report, error) {
	records, err := transcript.LoadDir(a.cfg.TranscriptsDir)
	if err != nil {
		return Report{}, fmt.Errorf("load transcripts: %w", err)
	}
	if !req.All {
		records = selectCalls(records, req.CallIDs)
	}

	var all []domain.Finding
	for _, rec := range records {
		found := a.AnalyzeTranscript(ctx, rec)
		log.Printf("[analyzer] %s: %d issue(s)", rec.ScenarioID, len(found))
		all = append(all, found...)
	}

	report := NewReport(a.now().UTC(), len(records), all)
	path, err := a.writeReport(report)
	if err != nil {
		return report, err
	}
	report.Path = path
	log.Printf("[analyzer] report written to %s (%d issues)", path, len(report.Findings))

	if a.sink != nil && len(report.Findings) > 0 {
		if err := a.sink.SaveFindings(ctx, req.RunID, report.Findings); err != nil {
			log.Printf("[analyzer] saving findings failed (report kept): %v", err)
		}
	}
	if a.uploader != nil {
		key := ReportFileName
		if req.RunID != "" {
			key = "reports/" + req.RunID + "/" + ReportFileName
		}
		if url, err := a.uploader.Upload(ctx, key, "text/markdown", []byte(report.Markdown)); err != nil {
			log.Printf("[analyzer] report upload failed: %v", err)
		} else {
			report.RemoteURL = url
		}
	}
	return report, nil
}

// AnalyzeTranscript extracts findings from one transcript. Any failure yields no findings.
func (a *Analyzer) AnalyzeTranscript(ctx context.Context, rec transcript.Record) []domain.Finding {
	if a.completer == nil || len(rec.Turns) == 0 {
		return nil
	}
	var sc *domain.Scenario
	if a.scenarios != nil {
		if s, err := a.scenarios.Get(rec.ScenarioID); err == nil {
			sc = &s
		}
	}

	raw, err := a.completer.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: renderTranscript(rec, sc)}},
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		Timeout:     defaultTimeout,
		JSON:        true,
		Model:       a.cfg.Model,
	})
	if err != nil {
		log.Printf("[analyzer] analysis of %s failed: %v", rec.ScenarioID, err)
		return nil
	}
	findings, err := ParseFindings(raw, rec.ScenarioID)
	if err != nil {
		log.Printf("[analyzer] unreadable analysis for %s: %v", rec.ScenarioID, err)
		return nil
	}
	if a.observe != nil {
		for _, f := range findings {
			a.observe(f)
		}
	}
	return findings
}

type rawIssue struct {
	Type             string          `json:"type"`
	Severity         string          `json:"severity"`
	Description      string          `json:"description"`
	AgentQuote       string          `json:"agent_quote"`
	ExpectedBehavior string          `json:"expected_behavior"`
	TurnNumber       json.RawMessage `json:"turn_number"`
}

// ParseFindings decodes a model response and applies the taxonomy rules:
// unknown categories are dropped and safety or privacy findings are always critical.
func ParseFindings(raw, scenarioID string) ([]domain.Finding, error) {
	var body struct {
		Issues []rawIssue `json:"issues"`
	}
	if err := json.Unmarshal([]byte(stripFence(raw)), &body); err != nil {
		return nil, err
	}
	out := make([]domain.Finding, 0, len(body.Issues))
	for _, is := range body.Issues {
		cat, ok := domain.ParseCategory(is.Type)
		if !ok {
			log.Printf("[analyzer] dropping finding with unknown category %q", is.Type)
			continue
		}
		sev := domain.ParseSeverity(is.Severity)
		if cat.AlwaysCritical() {
			sev = domain.SeverityCritical
		}
		out = append(out, domain.Finding{
			Category:         cat,
			Severity:         sev,
			Description:      strings.TrimSpace(is.Description),
			AgentQuote:       strings.TrimSpace(is.AgentQuote),
			ExpectedBehavior: strings.TrimSpace(is.ExpectedBehavior),
			ScenarioID:       scenarioID,
			TurnNumber:       parseTurn(is.TurnNumber),
		})
	}
	return out, nil
}

func parseTurn(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return int(f)
		}
		return 0
	}
	return n
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func selectCalls(records []transcript.Record, callIDs []string) []transcript.Record {
	want := make(map[string]struct{}, len(callIDs))
	for _, id := range callIDs {
		want[id] = struct{}{}
	}
	out := records[:0:0]
	for _, r := range records {
		if _, ok := want[r.CallID]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (a *Analyzer) writeReport(r Report) (string, error) {
	if err := os.MkdirAll(a.cfg.OutputsDir, 0o755); err != nil {
		return "", fmt.Errorf("create outputs dir: %w", err)
	}
	path := filepath.Join(a.cfg.OutputsDir, ReportFileName)
	if err := os.WriteFile(path, []byte(r.Markdown), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
