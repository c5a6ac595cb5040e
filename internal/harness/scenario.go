package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/crossroads/internal/service"
)

// Scenario is a conformance test: a sequence of calls against a service
// built from manifests, with expectations on what each call sends back.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Specs lists manifest paths (directories or .cue files), unified into
	// one service.
	Specs []string `yaml:"specs"`

	Steps []Step `yaml:"steps"`

	// Assertions are checked against the full trace and the final object
	// state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one call and what it must produce.
type Step struct {
	Call service.Call `yaml:"call"`

	// Expect is optional. Without it the call only has to be dispatched.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the messages a step must send.
type Expect struct {
	// Reply is the expected method return body. Values use the same
	// loosely typed form as call arguments; variants are written as
	// {sig, value} objects.
	Reply []any `yaml:"reply,omitempty"`

	// Error is the expected error name.
	Error string `yaml:"error,omitempty"`

	// Signals lists the expected signal members, in emission order.
	Signals []string `yaml:"signals,omitempty"`

	// Silent requires that nothing at all is sent.
	Silent bool `yaml:"silent,omitempty"`

	// Outcome is the expected dispatch outcome ("ok", "error_reply", ...).
	Outcome string `yaml:"outcome,omitempty"`
}

// Assertion validates the trace or the final object state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count or
	// final_state.
	Type string `yaml:"type"`

	// Kind filters trace events ("call" when empty).
	Kind string `yaml:"kind,omitempty"`

	// Member is the trace member (trace_contains, trace_count).
	Member string `yaml:"member,omitempty"`

	// Body is the exact expected body (trace_contains).
	Body []any `yaml:"body,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Members is the expected order (trace_order). Other events may be
	// interleaved.
	Members []string `yaml:"members,omitempty"`

	// Path selects the object (final_state).
	Path string `yaml:"path,omitempty"`

	// Interface and Property select a stored property (final_state).
	Interface string `yaml:"interface,omitempty"`
	Property  string `yaml:"property,omitempty"`

	// Value is the expected property value (final_state).
	Value any `yaml:"value,omitempty"`

	// Calls is the expected number of manifest method calls served by the
	// object (final_state, checked when Property is empty).
	Calls *int `yaml:"calls,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads a scenario file. Relative spec paths are resolved
// against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads a scenario file, resolving relative spec
// paths against basePath. Unknown fields are rejected.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec not found: %s", specPath)
		}
	}

	for i, step := range s.Steps {
		if step.Call.Path == "" {
			return fmt.Errorf("steps[%d].call: path is required", i)
		}
		if step.Call.Method == "" {
			return fmt.Errorf("steps[%d].call: method is required", i)
		}
		if err := validateExpect(step.Expect); err != nil {
			return fmt.Errorf("steps[%d].expect: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateExpect(e *Expect) error {
	if e == nil {
		return nil
	}
	if e.Silent && (e.Reply != nil || e.Error != "" || len(e.Signals) > 0) {
		return fmt.Errorf("silent excludes reply, error and signals")
	}
	if e.Reply != nil && e.Error != "" {
		return fmt.Errorf("reply and error are mutually exclusive")
	}
	if e.Error != "" && !validErrorName(e.Error) {
		return fmt.Errorf("invalid error name %q", e.Error)
	}
	return nil
}

func validErrorName(name string) bool {
	return strings.Contains(name, ".") && !strings.HasPrefix(name, ".") && !strings.HasSuffix(name, ".")
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Member == "" {
			return fmt.Errorf("assertions[%d]: member is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Members) == 0 {
			return fmt.Errorf("assertions[%d]: members list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Member == "" {
			return fmt.Errorf("assertions[%d]: member is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for final_state", index)
		}
		if a.Property == "" && a.Calls == nil {
			return fmt.Errorf("assertions[%d]: property or calls is required for final_state", index)
		}
		if a.Property != "" && (a.Interface == "" || a.Value == nil) {
			return fmt.Errorf("assertions[%d]: interface and value are required with property", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
