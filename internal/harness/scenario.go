package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docsync/internal/policy"
)

// Scenario defines a conflict resolution scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy is the path of a CUE policy file, relative to the scenario
	// file. Empty means the built-in winner policy.
	Policy string `yaml:"policy,omitempty"`

	// Documents are seeded in order before the listener is registered.
	Documents []DocumentSeed `yaml:"documents"`

	// Expect lists the expectations checked after the run.
	Expect []Expectation `yaml:"expect"`
}

// DocumentSeed describes one document's revision tree.
type DocumentSeed struct {
	ID string `yaml:"id"`

	// Base holds the root revision's properties.
	Base map[string]any `yaml:"base,omitempty"`

	// Branches each start at the root. Every edit is the full property set
	// of the next revision on that branch; an edit with "_deleted: true"
	// is a tombstone. Two branches whose first edits are identical produce
	// the same revision and are rejected.
	Branches [][]map[string]any `yaml:"branches,omitempty"`
}

// Expectation is checked against one document after the run.
type Expectation struct {
	Doc string `yaml:"doc"`

	// Outcome is resolved, failed or skipped.
	Outcome string `yaml:"outcome"`

	// Code is the expected error code of a failed outcome.
	Code string `yaml:"code,omitempty"`

	// Leaves is the expected number of live leaves.
	Leaves *int `yaml:"leaves,omitempty"`

	// Properties are matched as a subset of the winning leaf's properties.
	Properties map[string]any `yaml:"properties,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. The policy path is
// resolved relative to the scenario file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Policy != "" && !filepath.IsAbs(scenario.Policy) {
		scenario.Policy = filepath.Join(filepath.Dir(path), scenario.Policy)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadPolicy compiles the scenario's policy.
func (s *Scenario) LoadPolicy() (*policy.Policy, error) {
	if s.Policy == "" {
		return policy.Default(), nil
	}
	return policy.LoadFile(s.Policy)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Documents) == 0 {
		return fmt.Errorf("documents list is required and must be non-empty")
	}
	if len(s.Expect) == 0 {
		return fmt.Errorf("expect list is required and must be non-empty")
	}

	if s.Policy != "" {
		if _, err := os.Stat(s.Policy); os.IsNotExist(err) {
			return fmt.Errorf("policy file not found: %s", s.Policy)
		}
	}

	seen := make(map[string]bool)
	for i, doc := range s.Documents {
		if doc.ID == "" {
			return fmt.Errorf("documents[%d]: id is required", i)
		}
		if seen[doc.ID] {
			return fmt.Errorf("documents[%d]: duplicate id %q", i, doc.ID)
		}
		seen[doc.ID] = true
		for j, branch := range doc.Branches {
			if len(branch) == 0 {
				return fmt.Errorf("documents[%d].branches[%d]: at least one edit is required", i, j)
			}
		}
	}

	for i, e := range s.Expect {
		if !seen[e.Doc] {
			return fmt.Errorf("expect[%d]: unknown document %q", i, e.Doc)
		}
		switch e.Outcome {
		case OutcomeResolved, OutcomeSkipped:
			if e.Code != "" {
				return fmt.Errorf("expect[%d]: code only applies to failed outcomes", i)
			}
		case OutcomeFailed:
		default:
			return fmt.Errorf("expect[%d]: outcome must be resolved, failed or skipped, got %q", i, e.Outcome)
		}
		if e.Leaves != nil && *e.Leaves < 0 {
			return fmt.Errorf("expect[%d]: leaves must not be negative", i)
		}
	}
	return nil
}
