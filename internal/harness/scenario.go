package harness

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sheetmyself/internal/sheet"
)

// Scenario is a scripted sequence of document operations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order against a fresh document.
	Steps []Step `yaml:"steps"`
}

// Step is one operation. Which fields apply depends on Op.
type Step struct {
	Op          string       `yaml:"op"`
	Ref         string       `yaml:"ref,omitempty"`
	Parent      string       `yaml:"parent,omitempty"`
	Target      string       `yaml:"target,omitempty"`
	Label       string       `yaml:"label,omitempty"`
	Type        string       `yaml:"type,omitempty"`
	Value       *Value       `yaml:"value,omitempty"`
	Order       []string     `yaml:"order,omitempty"`
	ExpectError string       `yaml:"expect_error,omitempty"`
	Expect      *Expectation `yaml:"expect,omitempty"`
}

// Expectation describes the state a check step requires. Unset fields are
// not checked.
type Expectation struct {
	Label      *string  `yaml:"label,omitempty"`
	Value      *Value   `yaml:"value,omitempty"`
	Children   []string `yaml:"children,omitempty"`
	Tombstoned *bool    `yaml:"tombstoned,omitempty"`
}

// Value is a sheet value written in YAML.
type Value struct {
	sheet.Value
}

// UnmarshalYAML types the value by its YAML tag.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!str":
			v.Value = sheet.Text(node.Value)
		case "!!int", "!!float":
			f, err := strconv.ParseFloat(node.Value, 64)
			if err != nil {
				return fmt.Errorf("line %d: bad number %q", node.Line, node.Value)
			}
			v.Value = sheet.Number(f)
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return err
			}
			v.Value = sheet.Bool(b)
		default:
			return fmt.Errorf("line %d: unsupported value %q (%s)", node.Line, node.Value, node.Tag)
		}
	case yaml.SequenceNode:
		if len(node.Content) != 0 {
			return fmt.Errorf("line %d: a list value must be written as []", node.Line)
		}
		v.Value = sheet.List()
	default:
		return fmt.Errorf("line %d: value must be a scalar or []", node.Line)
	}
	return nil
}

// Operation names.
const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpRename    = "rename"
	OpDelete    = "delete"
	OpReorder   = "reorder"
	OpRoundtrip = "roundtrip"
	OpCheck     = "check"
)

// Error codes accepted by expect_error.
const (
	CodeNotFound        = "not_found"
	CodeInvalidArgument = "invalid_argument"
	CodeTypeMismatch    = "type_mismatch"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	refs := map[string]bool{"root": true}
	for i, step := range s.Steps {
		if err := validateStep(i, &step, refs); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its op. refs collects the
// refs defined so far; a step may only use refs defined before it.
func validateStep(i int, step *Step, refs map[string]bool) error {
	need := func(ok bool, field string) error {
		if !ok {
			return fmt.Errorf("steps[%d]: %s requires %s", i, step.Op, field)
		}
		return nil
	}
	known := func(ref, field string) error {
		if ref != "" && !refs[ref] {
			return fmt.Errorf("steps[%d].%s: unknown ref %q", i, field, ref)
		}
		return nil
	}

	var errs []error
	switch step.Op {
	case OpCreate:
		errs = append(errs,
			need(step.Parent != "", "parent"),
			need(step.Label != "", "label"),
			need(step.Value != nil, "value"),
			known(step.Parent, "parent"))
		if step.Type != "" {
			if _, err := sheet.ParseKind(step.Type); err != nil {
				errs = append(errs, fmt.Errorf("steps[%d].type: unknown type %q", i, step.Type))
			}
		}
		if step.Ref != "" {
			if refs[step.Ref] {
				errs = append(errs, fmt.Errorf("steps[%d].ref: %q already defined", i, step.Ref))
			}
			refs[step.Ref] = true
		}
	case OpUpdate:
		errs = append(errs, need(step.Target != "", "target"), need(step.Value != nil, "value"), known(step.Target, "target"))
	case OpRename:
		errs = append(errs, need(step.Target != "", "target"), need(step.Label != "", "label"), known(step.Target, "target"))
	case OpDelete:
		errs = append(errs, need(step.Target != "", "target"), known(step.Target, "target"))
	case OpReorder:
		errs = append(errs, need(step.Parent != "", "parent"), known(step.Parent, "parent"))
		for j, ref := range step.Order {
			errs = append(errs, known(ref, fmt.Sprintf("order[%d]", j)))
		}
	case OpRoundtrip:
	case OpCheck:
		errs = append(errs, need(step.Target != "", "target"), need(step.Expect != nil, "expect"), known(step.Target, "target"))
		if step.Expect != nil {
			for j, ref := range step.Expect.Children {
				errs = append(errs, known(ref, fmt.Sprintf("expect.children[%d]", j)))
			}
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}

	switch step.ExpectError {
	case "", CodeNotFound, CodeInvalidArgument, CodeTypeMismatch:
	default:
		return fmt.Errorf("steps[%d].expect_error: unknown code %q", i, step.ExpectError)
	}
	if step.ExpectError != "" && (step.Op == OpCheck || step.Op == OpRoundtrip) {
		return fmt.Errorf("steps[%d]: %s cannot expect an error", i, step.Op)
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
