package config

import (
	"fmt"
	"strings"

	"github.com/genprop/genprop/pkg/engine"
)

// TreeDefinition is the on-disk form of a property tree.
type TreeDefinition struct {
	// Root is the ID of the top-level property.
	Root string `json:"root" yaml:"root" validate:"required"`

	// Release is an optional label for the definitions release (e.g. "2.0").
	Release string `json:"release,omitempty" yaml:"release,omitempty"`

	// Properties lists every property of the tree in definition order.
	Properties []PropertyDefinition `json:"properties" yaml:"properties" validate:"required,min=1,dive"`
}

// PropertyDefinition describes a single genome property.
type PropertyDefinition struct {
	// ID is the globally unique property identifier (e.g. "GenProp0065").
	ID string `json:"id" yaml:"id" validate:"required"`

	// Name is the human-readable property name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Steps are the property's steps in definition order.
	Steps []StepDefinition `json:"steps,omitempty" yaml:"steps,omitempty" validate:"dive"`
}

// StepDefinition describes one step of a property.
type StepDefinition struct {
	// Number identifies the step within its property.
	Number int `json:"number" yaml:"number" validate:"required,min=1"`

	// Name is the human-readable step name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Required marks the step as counting toward the property result.
	// Steps are required unless set to false.
	Required *bool `json:"required,omitempty" yaml:"required,omitempty"`

	// Requirement is how child property results combine: all, any or at_least.
	Requirement string `json:"requirement,omitempty" yaml:"requirement,omitempty" validate:"omitempty,oneof=all any at_least"`

	// Min is the number of YES children needed by the at_least requirement.
	Min int `json:"min,omitempty" yaml:"min,omitempty" validate:"min=0,required_if=Requirement at_least"`

	// Children are the IDs of child properties.
	Children []string `json:"children,omitempty" yaml:"children,omitempty" validate:"dive,required"`

	// Evidence are functional-unit identifiers supporting a leaf step.
	Evidence []string `json:"evidence,omitempty" yaml:"evidence,omitempty" validate:"dive,required"`
}

// IsRequired reports whether the step counts toward its property's result.
func (s StepDefinition) IsRequired() bool {
	return s.Required == nil || *s.Required
}

// ToEngine converts the step definition to an engine step.
func (s StepDefinition) ToEngine() engine.Step {
	return engine.Step{
		Number:   s.Number,
		Name:     s.Name,
		Required: s.IsRequired(),
		Requirement: engine.Requirement{
			Mode: engine.RequirementMode(s.Requirement),
			Min:  s.Min,
		},
		Children: append([]string(nil), s.Children...),
		Evidence: append([]string(nil), s.Evidence...),
	}
}

// ToEngine converts the property definition to an engine property.
func (p PropertyDefinition) ToEngine() engine.Property {
	steps := make([]engine.Step, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = s.ToEngine()
	}
	return engine.Property{
		ID:    p.ID,
		Name:  p.Name,
		Steps: steps,
	}
}

// ToTree builds and validates an engine tree from the definition.
func (d *TreeDefinition) ToTree() (*engine.Tree, error) {
	props := make([]engine.Property, len(d.Properties))
	for i, p := range d.Properties {
		props[i] = p.ToEngine()
	}

	tree, err := engine.NewTree(d.Root, props)
	if err != nil {
		return nil, err
	}
	if err := tree.Validate(); err != nil {
		return nil, err
	}
	return tree, nil
}

// ValidationError is a single problem found in a definition or run file.
type ValidationError struct {
	// File is the source file name.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path within the document (e.g. "properties[2].steps[0].min").
	Path string `json:"path,omitempty"`

	// Message describes the problem.
	Message string `json:"message"`
}

// Error formats the error with its location.
func (e ValidationError) Error() string {
	var loc []string
	if e.File != "" {
		loc = append(loc, e.File)
	}
	if e.Line > 0 {
		loc = append(loc, fmt.Sprintf("%d", e.Line))
		if e.Column > 0 {
			loc = append(loc, fmt.Sprintf("%d", e.Column))
		}
	}

	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if len(loc) == 0 {
		return msg
	}
	return strings.Join(loc, ":") + ": " + msg
}

// ValidationErrors collects every problem found while loading one document.
type ValidationErrors []ValidationError

// Error joins the individual errors, one per line.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "\n")
}
