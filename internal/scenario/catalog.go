// Package scenario holds the static catalog of patient scenarios placed against the agent under test.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chadiek/patient-qa/internal/domain"
)

var ErrUnknownScenario = errors.New("unknown scenario")

// Catalog is an ordered, read-only set of scenarios.
type Catalog struct {
	scenarios []domain.Scenario
	byID      map[string]int
}

// NewCatalog validates and indexes the given scenarios. IDs must be unique and non-empty.
func NewCatalog(scenarios []domain.Scenario) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(scenarios))}
	for i, s := range scenarios {
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return nil, fmt.Errorf("scenario %d: id is required", i)
		}
		if strings.TrimSpace(s.Goal) == "" {
			return nil, fmt.Errorf("scenario %s: goal is required", s.ID)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("scenario %s: duplicate id", s.ID)
		}
		c.byID[s.ID] = len(c.scenarios)
		c.scenarios = append(c.scenarios, s)
	}
	return c, nil
}

// All returns a copy of the catalog in declaration order.
func (c *Catalog) All() []domain.Scenario {
	out := make([]domain.Scenario, len(c.scenarios))
	copy(out, c.scenarios)
	return out
}

// Get looks a scenario up by id.
func (c *Catalog) Get(id string) (domain.Scenario, error) {
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return domain.Scenario{}, fmt.Errorf("%w: %s", ErrUnknownScenario, id)
	}
	return c.scenarios[idx], nil
}

// Len reports how many scenarios are loaded.
func (c *Catalog) Len() int { return len(c.scenarios) }

type fileCatalog struct {
	Scenarios []domain.Scenario `yaml:"scenarios"`
}

// LoadFile reads a YAML catalog of the form `scenarios: [...]`.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("decode scenario yaml: %w", err)
	}
	if len(fc.Scenarios) == 0 {
		return nil, errors.New("scenario file contains no scenarios")
	}
	return NewCatalog(fc.Scenarios)
}

// Load returns the catalog from path when set, else the built-in set.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return NewCatalog(Builtin())
	}
	return LoadFile(path)
}
