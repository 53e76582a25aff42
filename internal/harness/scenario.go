package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/formwalk/internal/ir"
)

// Scenario is a scripted walk through one form. Steps drive a session the
// way an enumerator would; assertions check the audit trace and the final
// answers.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Form is the CUE form definition, relative to the scenario file.
	Form string `yaml:"form"`

	// InstanceID fixes the generated instance identifier. Defaults to
	// "test-instance-default" so traces are reproducible.
	InstanceID string `yaml:"instance_id,omitempty"`

	Settings Settings `yaml:"settings,omitempty"`

	// Choices seeds external choice lists, keyed by list name.
	Choices map[string][]ChoiceRow `yaml:"choices,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// Settings are the navigation settings the session starts with.
type Settings struct {
	// AllowBackwards defaults to the run's navigation default.
	AllowBackwards *bool `yaml:"allow_backwards,omitempty"`

	// ConstraintBehavior is on_swipe or on_finalize. Empty uses the run's
	// navigation default.
	ConstraintBehavior string `yaml:"constraint_behavior,omitempty"`
}

func (s Settings) allowBackwards(def bool) bool {
	if s.AllowBackwards == nil {
		return def
	}
	return *s.AllowBackwards
}

func (s Settings) validateOnSwipe(def bool) bool {
	switch s.ConstraintBehavior {
	case "on_swipe":
		return true
	case "on_finalize":
		return false
	default:
		return def
	}
}

// ChoiceRow is one entry of an external choice list.
type ChoiceRow struct {
	Value string            `yaml:"value"`
	Label string            `yaml:"label"`
	Attrs map[string]string `yaml:"attrs,omitempty"`
}

// Step is one user or system action.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// Index is the target of answer, jump, delete_repeat and external.
	Index string `yaml:"index,omitempty"`

	// Value is the answer text, parsed for the question's kind.
	Value string `yaml:"value,omitempty"`

	// Reason is the exit reason: saved, discarded or abandoned.
	Reason string `yaml:"reason,omitempty"`

	// Expect checks the session right after the step. Nil skips the check.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is a subset match on the session after a step. Empty fields are
// not checked.
type Expect struct {
	Result string `yaml:"result,omitempty"`

	// Index is a pointer because the beginning of the form is "".
	Index *string `yaml:"index,omitempty"`

	Event string `yaml:"event,omitempty"`
	State string `yaml:"state,omitempty"`

	// Error is an error kind such as STALE_INDEX, or a substring of the
	// error message.
	Error string `yaml:"error,omitempty"`

	// Blocked is a substring of the blocking constraint's message.
	Blocked string `yaml:"blocked,omitempty"`
}

// Step actions.
const (
	ActionForward      = "forward"
	ActionBackward     = "backward"
	ActionJump         = "jump"
	ActionAnswer       = "answer"
	ActionAddRepeat    = "add_repeat"
	ActionDeleteRepeat = "delete_repeat"
	ActionExternal     = "external"
	ActionSave         = "save"
	ActionFinalize     = "finalize"
	ActionExit         = "exit"
	ActionReopen       = "reopen"
)

var indexedActions = map[string]bool{
	ActionJump:         true,
	ActionAnswer:       true,
	ActionDeleteRepeat: true,
	ActionExternal:     true,
}

var knownActions = map[string]bool{
	ActionForward:      true,
	ActionBackward:     true,
	ActionJump:         true,
	ActionAnswer:       true,
	ActionAddRepeat:    true,
	ActionDeleteRepeat: true,
	ActionExternal:     true,
	ActionSave:         true,
	ActionFinalize:     true,
	ActionExit:         true,
	ActionReopen:       true,
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind is the audit kind (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Index narrows trace_contains to one index, and names the question
	// for final_answer.
	Index *string `yaml:"index,omitempty"`

	// Detail narrows trace_contains to a detail substring.
	Detail string `yaml:"detail,omitempty"`

	// Kinds is the expected audit order (trace_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Value is the expected answer text (final_answer).
	Value string `yaml:"value,omitempty"`

	// Status is the expected registry status (final_state). "none" means
	// the instance was never saved.
	Status string `yaml:"status,omitempty"`

	// Exists is whether the savepoint file remains (savepoint).
	Exists *bool `yaml:"exists,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalAnswer   = "final_answer"
	AssertFinalState    = "final_state"
	AssertSavepoint     = "savepoint"
)

// LoadScenario reads and parses a scenario YAML file. The form path is
// resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the form path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
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

	if scenario.Form != "" && !filepath.IsAbs(scenario.Form) && basePath != "" {
		scenario.Form = filepath.Join(basePath, scenario.Form)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Form == "" {
		return fmt.Errorf("form is required")
	}
	if _, err := os.Stat(s.Form); os.IsNotExist(err) {
		return fmt.Errorf("form file not found: %s", s.Form)
	}
	switch s.Settings.ConstraintBehavior {
	case "", "on_swipe", "on_finalize":
	default:
		return fmt.Errorf("settings.constraint_behavior: %q is not on_swipe or on_finalize", s.Settings.ConstraintBehavior)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step *Step) error {
	if step.Action == "" {
		return fmt.Errorf("steps[%d]: action is required", i)
	}
	if !knownActions[step.Action] {
		return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
	}
	if indexedActions[step.Action] {
		if step.Index == "" {
			return fmt.Errorf("steps[%d]: index is required for %s", i, step.Action)
		}
		if _, err := ir.ParseIndex(step.Index); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	if step.Action == ActionExit {
		switch step.Reason {
		case "saved", "discarded", "abandoned":
		default:
			return fmt.Errorf("steps[%d]: exit reason must be saved, discarded or abandoned", i)
		}
	}
	if step.Expect != nil && step.Expect.Event != "" {
		if _, err := ir.ParseEvent(step.Expect.Event); err != nil {
			return fmt.Errorf("steps[%d].expect: %w", i, err)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFinalAnswer:
		if a.Index == nil || *a.Index == "" {
			return fmt.Errorf("assertions[%d]: index is required for final_answer", index)
		}
	case AssertFinalState:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for final_state", index)
		}
	case AssertSavepoint:
		if a.Exists == nil {
			return fmt.Errorf("assertions[%d]: exists is required for savepoint", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
