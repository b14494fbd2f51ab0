package session

import (
	"sync"
	"testing"
	"time"

	"github.com/chadiek/patient-qa/internal/domain"
)

var (
	testScenario = domain.Scenario{ID: "01_happy_path", Name: "Happy Path", Goal: "book"}
	testPatient  = domain.Patient{FullName: "Felix Navarro", DOB: "1990-01-02"}
)

func newTestStore(t *testing.T, ids ...string) *Store {
	t.Helper()
	s := NewStore()
	for _, id := range ids {
		if err := s.Create(id, testScenario, testPatient); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	return s
}

func TestCreate_RequiresFields(t *testing.T) {
	s := NewStore()
	if err := s.Create("", testScenario, testPatient); err == nil {
		t.Fatalf("expected error for empty call id")
	}
	if err := s.Create("CA1", domain.Scenario{}, testPatient); err == nil {
		t.Fatalf("expected error for missing scenario")
	}
	if err := s.Create("CA1", testScenario, domain.Patient{}); err == nil {
		t.Fatalf("expected error for missing patient")
	}
}

func TestAppendTurn_CountsOnlyAgentTurns(t *testing.T) {
	s := newTestStore(t, "CA1")
	s.AppendTurn("CA1", domain.RoleAgent, "hello")
	s.AppendTurn("CA1", domain.RolePatient, "hi")
	s.AppendTurn("CA1", domain.RoleAgent, "how can I help")
	s.AppendTurn("CA1", domain.RolePatient, "a checkup")

	sess, ok := s.Get("CA1")
	if !ok {
		t.Fatalf("session missing")
	}
	if sess.AgentTurns != 2 {
		t.Fatalf("expected 2 agent turns, got %d", sess.AgentTurns)
	}
	agent := 0
	for _, turn := range sess.Turns {
		if turn.Role == domain.RoleAgent {
			agent++
		}
	}
	if agent != sess.AgentTurns {
		t.Fatalf("agent turn count %d does not match history %d", sess.AgentTurns, agent)
	}
}

func TestAppendTurn_EmptyCounter(t *testing.T) {
	s := newTestStore(t, "CA1")
	s.AppendTurn("CA1", domain.RoleAgent, "")
	s.AppendTurn("CA1", domain.RoleAgent, "  ")
	if sess, _ := s.Get("CA1"); sess.ConsecutiveEmpty != 2 {
		t.Fatalf("expected 2 consecutive empty, got %d", sess.ConsecutiveEmpty)
	}
	n, err := s.RecordEmpty("CA1")
	if err != nil || n != 3 {
		t.Fatalf("RecordEmpty = %d, %v", n, err)
	}
	s.AppendTurn("CA1", domain.RolePatient, "still here")
	if sess, _ := s.Get("CA1"); sess.ConsecutiveEmpty != 0 {
		t.Fatalf("expected reset to 0, got %d", sess.ConsecutiveEmpty)
	}
	if _, err := s.RecordEmpty("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendTurn_MissingSessionIsNoop(t *testing.T) {
	s := NewStore()
	if s.AppendTurn("nope", domain.RoleAgent, "hello") {
		t.Fatalf("append to a missing session must report false")
	}
	if _, ok := s.Get("nope"); ok {
		t.Fatalf("append must not create a session")
	}
}

func TestAppendTurn_IgnoredAfterComplete(t *testing.T) {
	s := newTestStore(t, "CA1")
	if !s.AppendTurn("CA1", domain.RoleAgent, "hello") {
		t.Fatalf("append to a live session must succeed")
	}
	s.MarkComplete("CA1")

	if s.AppendTurn("CA1", domain.RoleAgent, "late") {
		t.Fatalf("append after completion must report false")
	}
	if _, err := s.RecordEmpty("CA1"); err != ErrComplete {
		t.Fatalf("expected ErrComplete, got %v", err)
	}
	sess, _ := s.Get("CA1")
	if len(sess.Turns) != 1 || sess.AgentTurns != 1 || sess.ConsecutiveEmpty != 0 {
		t.Fatalf("completed session changed: %+v", sess)
	}
	if h := s.History("CA1"); len(h) != 1 || h[0].Text != "hello" {
		t.Fatalf("history changed after completion: %+v", h)
	}
}

func TestMarkComplete_Monotonic(t *testing.T) {
	s := newTestStore(t, "CA1")
	if s.IsComplete("CA1") {
		t.Fatalf("new session must not be complete")
	}
	if !s.MarkComplete("CA1") {
		t.Fatalf("first MarkComplete must report the transition")
	}
	if s.MarkComplete("CA1") {
		t.Fatalf("second MarkComplete must be a no-op")
	}
	if !s.IsComplete("CA1") {
		t.Fatalf("completion flag reverted")
	}
	select {
	case <-s.Done("CA1"):
	default:
		t.Fatalf("done channel not closed")
	}
}

func TestMarkComplete_ConcurrentSingleWinner(t *testing.T) {
	s := newTestStore(t, "CA1")
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.MarkComplete("CA1") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestSnapshot_Elapsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore().WithClock(func() time.Time { return now })
	if err := s.Create("CA1", testScenario, testPatient); err != nil {
		t.Fatal(err)
	}
	s.AppendTurn("CA1", domain.RoleAgent, "hello")
	now = now.Add(42 * time.Second)
	snap, ok := s.Snapshot("CA1")
	if !ok {
		t.Fatalf("snapshot missing")
	}
	if snap.ElapsedSeconds != 42 || snap.TurnCount != 1 || snap.ScenarioID != "01_happy_path" || snap.PatientName != "Felix Navarro" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestHistory_IsCopy(t *testing.T) {
	s := newTestStore(t, "CA1")
	s.AppendTurn("CA1", domain.RoleAgent, "hello")
	h := s.History("CA1")
	h[0].Text = "mutated"
	if got := s.History("CA1")[0].Text; got != "hello" {
		t.Fatalf("history mutated through copy: %q", got)
	}
	if len(s.History("missing")) != 0 {
		t.Fatalf("missing session must return empty history")
	}
}

func TestAllComplete_MissingCountsAsComplete(t *testing.T) {
	s := newTestStore(t, "CA1", "CA2")
	if s.AllComplete([]string{"CA1", "CA2"}) {
		t.Fatalf("expected incomplete")
	}
	s.MarkComplete("CA1")
	s.MarkComplete("CA2")
	if !s.AllComplete([]string{"CA1", "CA2", "ghost"}) {
		t.Fatalf("expected all complete with missing id")
	}
	if !s.IsComplete("ghost") {
		t.Fatalf("missing session must count as complete")
	}
	select {
	case <-s.Done("ghost"):
	default:
		t.Fatalf("missing session done channel must be closed")
	}
}

func TestCreate_OverwriteResets(t *testing.T) {
	s := newTestStore(t, "CA1")
	s.AppendTurn("CA1", domain.RoleAgent, "hello")
	s.MarkComplete("CA1")
	if err := s.Create("CA1", testScenario, testPatient); err != nil {
		t.Fatal(err)
	}
	sess, _ := s.Get("CA1")
	if sess.Complete || len(sess.Turns) != 0 {
		t.Fatalf("expected fresh session after overwrite: %+v", sess)
	}
	if s.Active() != 1 {
		t.Fatalf("expected 1 active session, got %d", s.Active())
	}
}
