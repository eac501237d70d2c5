package engine

import (
	"fmt"
	"strings"
)

// Result is the completeness state assigned to a property or step.
// Values are ordered: No < Partial < Yes.
type Result int8

const (
	// No means the required evidence is absent.
	No Result = iota

	// Partial means some but not all required children are satisfied.
	Partial

	// Yes means every required child is satisfied.
	Yes
)

// String returns the canonical upper-case form of the result.
func (r Result) String() string {
	switch r {
	case No:
		return "NO"
	case Partial:
		return "PARTIAL"
	case Yes:
		return "YES"
	default:
		return fmt.Sprintf("Result(%d)", int8(r))
	}
}

// Valid reports whether r is one of the three defined states.
func (r Result) Valid() bool {
	switch r {
	case No, Partial, Yes:
		return true
	default:
		return false
	}
}

// ParseResult parses a result from its text form. Matching is case-insensitive.
func ParseResult(s string) (Result, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NO":
		return No, nil
	case "PARTIAL":
		return Partial, nil
	case "YES":
		return Yes, nil
	default:
		return No, fmt.Errorf("invalid result %q: must be one of YES, PARTIAL, NO", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Result) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid result %d", int8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Result) UnmarshalText(text []byte) error {
	parsed, err := ParseResult(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RequirementMode declares how the child properties of a step combine.
type RequirementMode string

const (
	// RequireAll needs every child property to be satisfied.
	RequireAll RequirementMode = "all"

	// RequireAny needs at least one child property to be satisfied.
	RequireAny RequirementMode = "any"

	// RequireAtLeast needs at least Min child properties to be satisfied.
	RequireAtLeast RequirementMode = "at_least"
)

// Requirement is the per-step combination rule supplied by the tree definition.
// The zero value behaves as RequireAll.
type Requirement struct {
	Mode RequirementMode `json:"mode,omitempty"`
	Min  int             `json:"min,omitempty"`
}

// needed returns how many children must be YES for the requirement to hold.
func (r Requirement) needed(children int) int {
	switch r.Mode {
	case RequireAny:
		return 1
	case RequireAtLeast:
		n := r.Min
		if n < 1 {
			n = 1
		}
		if n > children {
			n = children
		}
		return n
	case RequireAll, "":
		return children
	default:
		return children
	}
}

// Step is a single sub-step of a property.
type Step struct {
	// Number identifies the step within its owning property.
	Number int `json:"number"`

	// Name is the human-readable step name.
	Name string `json:"name"`

	// Required marks steps that count towards the property result.
	// Non-required steps are informational and recorded only.
	Required bool `json:"required"`

	// Requirement declares how Children combine into the step result.
	Requirement Requirement `json:"requirement,omitempty"`

	// Children lists the identifiers of child properties.
	Children []string `json:"children,omitempty"`

	// Evidence lists functional-unit identifiers that satisfy a leaf step.
	Evidence []string `json:"evidence,omitempty"`
}

// IsLeaf reports whether the step is determined directly by evidence.
func (s Step) IsLeaf() bool {
	return len(s.Children) == 0
}

// Property is a genome property: a functional module made of ordered steps.
type Property struct {
	// ID is globally unique across the tree.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Steps are the ordered steps of the property.
	Steps []Step `json:"steps"`
}

// Step returns the step with the given number.
func (p *Property) Step(number int) (Step, bool) {
	for _, s := range p.Steps {
		if s.Number == number {
			return s, true
		}
	}
	return Step{}, false
}
