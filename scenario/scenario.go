// Package scenario loads lifecycle scenarios from YAML and plays them
// against a foreign runtime.
//
// A scenario names the classes it expects to be registered and lists steps
// that the foreign runtime performs on objects of those classes:
//
//	name: counter-lifecycle
//	classes: [Counter]
//	steps:
//	  - {op: create, class: Counter, as: c1}
//	  - {op: to_string, target: c1, expect: "Counter(count=0, ready=false)"}
//	  - {op: unreference, target: c1}
package scenario

import (
	"bytes"
	_ "embed"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/extbind/errors"
)

// Op is a lifecycle operation performed by the foreign runtime.
type Op string

const (
	OpCreate      Op = "create"
	OpReference   Op = "reference"
	OpUnreference Op = "unreference"
	OpToString    Op = "to_string"
	OpVirtual     Op = "virtual"
	OpFree        Op = "free"
)

// Ops lists every operation in the order they are documented.
func Ops() []Op {
	return []Op{OpCreate, OpReference, OpUnreference, OpToString, OpVirtual, OpFree}
}

// Scenario is a named sequence of lifecycle steps.
type Scenario struct {
	AutoFree *bool    `yaml:"auto_free" jsonschema:"description=Free reference counted objects when their last reference goes (default true)"`
	Name     string   `yaml:"name" validate:"required" jsonschema:"required"`
	Classes  []string `yaml:"classes" validate:"dive,required" jsonschema:"description=Classes that must be registered before the run"`
	Steps    []Step   `yaml:"steps" validate:"required,min=1,dive" jsonschema:"required,minItems=1"`
}

// Step is one operation. Create binds the new object to As; every other
// operation addresses an earlier object through Target.
type Step struct {
	Op     Op     `yaml:"op" validate:"required,oneof=create reference unreference to_string virtual free" jsonschema:"required,enum=create,enum=reference,enum=unreference,enum=to_string,enum=virtual,enum=free"`
	Class  string `yaml:"class" validate:"required_if=Op create"`
	As     string `yaml:"as" validate:"required_if=Op create"`
	Target string `yaml:"target" validate:"required_unless=Op create"`
	Method string `yaml:"method" validate:"required_if=Op virtual"`
	Expect string `yaml:"expect" jsonschema:"description=Exact result to_string must produce"`
}

// validate is a package-level singleton; validators cache struct metadata.
var validate = validator.New()

//go:embed default.yaml
var defaultScenario []byte

// Default returns the built-in demonstration scenario.
func Default() *Scenario {
	s, err := Parse(defaultScenario)
	if err != nil {
		panic(err)
	}
	return s
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read scenario")
	}
	return Parse(data)
}

// Parse decodes and validates a scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode scenario")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks field constraints and that every target names an object
// created by an earlier step.
func (s *Scenario) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid scenario")
	}

	declared := make(map[string]bool, len(s.Classes))
	for _, c := range s.Classes {
		declared[c] = true
	}

	objects := make(map[string]bool)
	for i, step := range s.Steps {
		switch step.Op {
		case OpCreate:
			if objects[step.As] {
				return errors.New(errors.PhaseConfig, errors.KindDuplicate).
					Detail("step %d: object %q already defined", i+1, step.As).
					Build()
			}
			if len(declared) > 0 && !declared[step.Class] {
				return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
					Class(step.Class).
					Detail("step %d: class not listed in classes", i+1).
					Build()
			}
			objects[step.As] = true
		default:
			if !objects[step.Target] {
				return errors.New(errors.PhaseConfig, errors.KindNotFound).
					Detail("step %d: unknown target %q", i+1, step.Target).
					Build()
			}
		}
	}
	return nil
}
