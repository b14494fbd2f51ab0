package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chadiek/patient-qa/internal/domain"
)

func TestBuiltinCatalog(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load builtin: %v", err)
	}
	if c.Len() != 12 {
		t.Fatalf("expected 12 builtin scenarios, got %d", c.Len())
	}
	s, err := c.Get("14_emergency")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.InitialUtterance == "" {
		t.Fatalf("expected initial utterance")
	}
	if _, err := c.Get("nope"); !errors.Is(err, ErrUnknownScenario) {
		t.Fatalf("expected ErrUnknownScenario, got %v", err)
	}
}

func TestNewCatalog_RejectsDuplicatesAndMissingFields(t *testing.T) {
	if _, err := NewCatalog([]domain.Scenario{{ID: "a", Goal: "g"}, {ID: "a", Goal: "g"}}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if _, err := NewCatalog([]domain.Scenario{{ID: " ", Goal: "g"}}); err == nil {
		t.Fatalf("expected missing id error")
	}
	if _, err := NewCatalog([]domain.Scenario{{ID: "a"}}); err == nil {
		t.Fatalf("expected missing goal error")
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	c, _ := NewCatalog([]domain.Scenario{{ID: "a", Goal: "g"}})
	all := c.All()
	all[0].Goal = "mutated"
	s, _ := c.Get("a")
	if s.Goal != "g" {
		t.Fatalf("catalog mutated through All(): %q", s.Goal)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenarios.yaml")
	doc := `scenarios:
  - id: refill
    name: Refill
    goal: Refill lisinopril
    persona: Terse
    initial_utterance: I need a refill.
    edge_case_type: happy_path
    expected_behavior: Submit the refill.
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s, err := c.Get("refill")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.InitialUtterance != "I need a refill." || s.ExpectedBehavior != "Submit the refill." {
		t.Fatalf("unexpected decode: %+v", s)
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := Parse([]byte("scenarios: []\n")); err == nil {
		t.Fatalf("expected error for empty catalog")
	}
	if _, err := Parse([]byte("::not yaml")); err == nil {
		t.Fatalf("expected decode error")
	}
}
