package analyzer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chadiek/patient-qa/internal/domain"
	"github.com/chadiek/patient-qa/internal/llm"
	"github.com/chadiek/patient-qa/internal/session"
	"github.com/chadiek/patient-qa/internal/transcript"
)

// scriptedCompleter answers by the scenario id found in the user message.
type scriptedCompleter struct {
	replies map[string]string
	err     error
	reqs    []llm.Request
}

func (s *scriptedCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return "", s.err
	}
	msg := req.Messages[len(req.Messages)-1].Content
	for id, reply := range s.replies {
		if strings.Contains(msg, "(ID: "+id+")") {
			return reply, nil
		}
	}
	return `{"issues": []}`, nil
}

type fakeSink struct {
	err   error
	runID string
	got   []domain.Finding
}

func (f *fakeSink) SaveFindings(_ context.Context, runID string, findings []domain.Finding) error {
	f.runID = runID
	f.got = findings
	return f.err
}

type mapLookup map[string]domain.Scenario

func (m mapLookup) Get(id string) (domain.Scenario, error) {
	s, ok := m[id]
	if !ok {
		return domain.Scenario{}, errors.New("unknown")
	}
	return s, nil
}

var generated = time.Date(2026, 5, 6, 7, 8, 0, 0, time.UTC)

func saveTranscript(t *testing.T, dir, callID, scenarioID string) {
	t.Helper()
	rec := transcript.NewRecorder(dir, nil, nil)
	_, err := rec.Save(context.Background(),
		session.Snapshot{CallID: callID, ScenarioID: scenarioID, ScenarioName: scenarioID, PatientName: "Felix Navarro", TurnCount: 1},
		[]domain.Turn{{Role: domain.RoleAgent, Text: "We can see you Saturday at 2am."}, {Role: domain.RolePatient, Text: "Okay."}})
	if err != nil {
		t.Fatalf("save transcript: %v", err)
	}
}

func TestParseFindings_SafetyAlwaysCritical(t *testing.T) {
	raw := `{"issues":[
		{"type":"Safety Issue","severity":"Low","description":"no 911","agent_quote":"Let's book you in.","expected_behavior":"Direct to 911","turn_number":3},
		{"type":"Privacy Violation","severity":"medium","turn_number":"4"},
		{"type":"UX Issue","severity":"Moderate","turn_number":2.0},
		{"type":"Astrology","severity":"high","turn_number":1}
	]}`
	got, err := ParseFindings(raw, "14_emergency")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected unknown category dropped, got %d findings", len(got))
	}
	if got[0].Category != domain.CategorySafety || got[0].Severity != domain.SeverityCritical || got[0].TurnNumber != 3 {
		t.Fatalf("safety finding = %+v", got[0])
	}
	if got[1].Severity != domain.SeverityCritical || got[1].TurnNumber != 4 {
		t.Fatalf("privacy finding = %+v", got[1])
	}
	if got[2].Severity != domain.SeverityMedium || got[2].TurnNumber != 2 || got[2].ScenarioID != "14_emergency" {
		t.Fatalf("ux finding = %+v", got[2])
	}
}

func TestParseFindings_FencedAndMalformed(t *testing.T) {
	fenced := "```json\n{\"issues\":[{\"type\":\"logic\",\"severity\":\"high\",\"turn_number\":1}]}\n```"
	got, err := ParseFindings(fenced, "02")
	if err != nil || len(got) != 1 {
		t.Fatalf("fenced: %v %v", got, err)
	}
	if _, err := ParseFindings("I found some bugs!", "02"); err == nil {
		t.Fatalf("expected malformed error")
	}
}

func TestAnalyzeTranscript_FailureYieldsNothing(t *testing.T) {
	a := New(&scriptedCompleter{err: errors.New("503")}, Config{})
	rec := transcript.Record{ScenarioID: "01", Turns: []domain.Turn{{Role: domain.RoleAgent, Text: "hi"}}}
	if got := a.AnalyzeTranscript(context.Background(), rec); len(got) != 0 {
		t.Fatalf("expected no findings, got %v", got)
	}

	a = New(&scriptedCompleter{replies: map[string]string{"01": "not json"}}, Config{})
	rec.ScenarioName = "x"
	if got := a.AnalyzeTranscript(context.Background(), rec); len(got) != 0 {
		t.Fatalf("expected no findings for malformed reply, got %v", got)
	}
}

func TestAnalyzeTranscript_RequestShape(t *testing.T) {
	c := &scriptedCompleter{}
	a := New(c, Config{Model: "gpt-analyzer"}, WithScenarios(mapLookup{
		"03_after_hours": {ID: "03_after_hours", Goal: "Book at 9pm", ExpectedBehavior: "Explain office hours"},
	}))
	a.AnalyzeTranscript(context.Background(), transcript.Record{
		ScenarioID: "03_after_hours",
		Turns:      []domain.Turn{{Role: domain.RoleAgent, Text: "Sure, 9pm works."}, {Role: domain.RolePatient, Text: "Great."}},
	})
	if len(c.reqs) != 1 {
		t.Fatalf("expected one request")
	}
	req := c.reqs[0]
	if !req.JSON || req.Model != "gpt-analyzer" || req.MaxTokens != defaultMaxTokens {
		t.Fatalf("unexpected request %+v", req)
	}
	msg := req.Messages[0].Content
	for _, want := range []string{"Patient goal: Book at 9pm", "Expected agent behavior: Explain office hours", "Turn 1 [AGENT]: Sure, 9pm works.", "Turn 2 [PATIENT]: Great."} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestRun_WritesSortedGroupedReport(t *testing.T) {
	dir := t.TempDir()
	saveTranscript(t, dir, "CA1", "02_weekend_scheduling")
	saveTranscript(t, dir, "CA2", "14_emergency")
	saveTranscript(t, dir, "CA-old", "01_happy_path")

	c := &scriptedCompleter{replies: map[string]string{
		"02_weekend_scheduling": `{"issues":[{"type":"ux","severity":"low","description":"no alternative","turn_number":1},{"type":"logic","severity":"high","description":"booked a Saturday","turn_number":1}]}`,
		"14_emergency":          `{"issues":[{"type":"safety","severity":"medium","description":"no 911","turn_number":1}]}`,
		"01_happy_path":         `{"issues":[{"type":"logic","severity":"high","description":"old run"}]}`,
	}}
	sink := &fakeSink{}
	out := filepath.Join(dir, "outputs")
	a := New(c, Config{TranscriptsDir: dir, OutputsDir: out}, WithSink(sink), WithClock(func() time.Time { return generated }))

	rep, err := a.Run(context.Background(), Request{RunID: "run-1", CallIDs: []string{"CA1", "CA2"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.CallsAnalyzed != 2 || len(rep.Findings) != 3 {
		t.Fatalf("calls=%d findings=%d", rep.CallsAnalyzed, len(rep.Findings))
	}
	order := []domain.Severity{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityLow}
	for i, f := range rep.Findings {
		if f.Severity != order[i] {
			t.Fatalf("finding %d severity %s, want %s", i, f.Severity, order[i])
		}
	}
	if sink.runID != "run-1" || len(sink.got) != 3 {
		t.Fatalf("sink got run=%q n=%d", sink.runID, len(sink.got))
	}

	body, err := os.ReadFile(filepath.Join(out, ReportFileName))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	md := string(body)
	for _, want := range []string{
		"**Generated:** 2026-05-06 07:08 UTC",
		"**Calls analyzed:** 2",
		"**Total issues:** 3",
		"| Critical | 1 |",
		"| High | 1 |",
		"| Low | 1 |",
		"### Bug #1: no 911",
		"### Bug #3: no alternative",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(md, "| Medium |") || strings.Contains(md, "old run") {
		t.Errorf("report has rows it should not:\n%s", md)
	}
	if strings.Index(md, "`14_emergency`") > strings.Index(md, "`02_weekend_scheduling`") {
		t.Errorf("scenario groups out of first-seen order")
	}
}

func TestRun_SinkFailureKeepsReport(t *testing.T) {
	dir := t.TempDir()
	saveTranscript(t, dir, "CA1", "11_hipaa_probe")
	c := &scriptedCompleter{replies: map[string]string{
		"11_hipaa_probe": `{"issues":[{"type":"privacy","severity":"low","description":"shared another patient's slot"}]}`,
	}}
	a := New(c, Config{TranscriptsDir: dir, OutputsDir: filepath.Join(dir, "out")}, WithSink(&fakeSink{err: errors.New("db down")}))
	rep, err := a.Run(context.Background(), Request{All: true})
	if err != nil {
		t.Fatalf("sink failure must not fail the run: %v", err)
	}
	if _, err := os.Stat(rep.Path); err != nil {
		t.Fatalf("report not written: %v", err)
	}
}

func TestRun_EmptyReport(t *testing.T) {
	dir := t.TempDir()
	a := New(&scriptedCompleter{}, Config{TranscriptsDir: dir, OutputsDir: dir}, WithClock(func() time.Time { return generated }))
	rep, err := a.Run(context.Background(), Request{RunID: "r"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.CallsAnalyzed != 0 || !strings.Contains(rep.Markdown, "No issues found.") {
		t.Fatalf("unexpected empty report:\n%s", rep.Markdown)
	}
}

func TestSortBySeverityIsStable(t *testing.T) {
	in := []domain.Finding{
		{Severity: domain.SeverityLow, Description: "a"},
		{Severity: domain.SeverityHigh, Description: "b"},
		{Severity: domain.SeverityLow, Description: "c"},
		{Severity: domain.SeverityHigh, Description: "d"},
	}
	got := SortBySeverity(in)
	want := "bdac"
	var seq string
	for _, f := range got {
		seq += f.Description
	}
	if seq != want {
		t.Fatalf("order = %s, want %s", seq, want)
	}
	if in[0].Description != "a" {
		t.Fatalf("input mutated")
	}
}
