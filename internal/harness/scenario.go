package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/workgraph/internal/attribution"
	"github.com/roach88/workgraph/internal/model"
)

// Scenario is a declarative attribution test.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Config overrides the attribution heuristics. Fields left out of
	// the document keep their defaults.
	Config attribution.Config `yaml:"config,omitempty"`

	Nodes      []NodeSeed  `yaml:"nodes"`
	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// NodeSeed seeds one work item.
type NodeSeed struct {
	ID string `yaml:"id"`
	// Status defaults to in-progress.
	Status  string   `yaml:"status,omitempty"`
	Session string   `yaml:"session,omitempty"`
	Scope   []string `yaml:"scope,omitempty"`
	// Placeholder makes the node the session's auto-generated
	// session-init item.
	Placeholder bool          `yaml:"placeholder,omitempty"`
	Started     time.Duration `yaml:"started,omitempty"`
	Updated     time.Duration `yaml:"updated,omitempty"`
}

// Step is one recorded tool call.
type Step struct {
	Session string   `yaml:"session"`
	Agent   string   `yaml:"agent,omitempty"`
	Tool    string   `yaml:"tool"`
	Summary string   `yaml:"summary,omitempty"`
	Files   []string `yaml:"files,omitempty"`
	// Node is an explicit attribution target.
	Node   string        `yaml:"node,omitempty"`
	Failed bool          `yaml:"failed,omitempty"`
	At     time.Duration `yaml:"at,omitempty"`
	Expect *Expect       `yaml:"expect,omitempty"`
}

// Expect is checked right after its step is recorded. An empty Node
// expects no attribution.
type Expect struct {
	Node   string `yaml:"node"`
	Reason string `yaml:"reason,omitempty"`
}

// Assertion validates the finished run.
type Assertion struct {
	Type  string   `yaml:"type"`
	Node  string   `yaml:"node,omitempty"`
	Count int      `yaml:"count,omitempty"`
	Step  int      `yaml:"step,omitempty"`
	Min   *float64 `yaml:"min,omitempty"`
	Max   *float64 `yaml:"max,omitempty"`
}

// Assertion type constants.
const (
	AssertAttributedCount    = "attributed_count"
	AssertUnattributedCount  = "unattributed_count"
	AssertLowConfidenceCount = "low_confidence_count"
	AssertDriftRange         = "drift_range"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	s := Scenario{Config: attribution.DefaultConfig()}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Nodes))
	for i, n := range s.Nodes {
		if !model.ValidID(n.ID) {
			return fmt.Errorf("nodes[%d]: invalid id %q", i, n.ID)
		}
		if seen[n.ID] {
			return fmt.Errorf("nodes[%d]: duplicate id %q", i, n.ID)
		}
		seen[n.ID] = true
		if n.Placeholder && n.Session == "" {
			return fmt.Errorf("nodes[%d]: placeholder needs a session", i)
		}
	}

	for i, step := range s.Flow {
		if step.Tool == "" {
			return fmt.Errorf("flow[%d]: tool is required", i)
		}
		if step.Session == "" {
			return fmt.Errorf("flow[%d]: session is required", i)
		}
		if i > 0 && step.At < s.Flow[i-1].At {
			return fmt.Errorf("flow[%d]: at goes backwards", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], len(s.Flow)); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertAttributedCount:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for %s", index, a.Type)
		}
	case AssertUnattributedCount, AssertLowConfidenceCount:
	case AssertDriftRange:
		if a.Step < 1 || a.Step > steps {
			return fmt.Errorf("assertions[%d]: step %d out of range 1..%d", index, a.Step, steps)
		}
		if a.Min == nil && a.Max == nil {
			return fmt.Errorf("assertions[%d]: min or max is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
