package results

import (
	"github.com/genprop/genprop/pkg/engine"
)

// Results is the read-only view over the property and step tables of a build.
type Results struct {
	tree       *engine.Tree
	properties *Table[string]
	steps      *Table[StepKey]
}

// Samples returns the sample names in column order.
func (r *Results) Samples() []string {
	return r.properties.Samples()
}

// Tree returns the property tree the results were built against.
func (r *Results) Tree() *engine.Tree {
	return r.tree
}

// Properties returns the property table.
func (r *Results) Properties() *Table[string] {
	return r.properties
}

// Steps returns the step table.
func (r *Results) Steps() *Table[StepKey] {
	return r.steps
}

// PropertyResult returns one result per sample for the property, all NO when
// the property is unknown.
func (r *Results) PropertyResult(id string) []engine.Result {
	return r.properties.Lookup(id)
}

// StepResult returns one result per sample for the step, all NO when the step
// is unknown.
func (r *Results) StepResult(id string, number int) []engine.Result {
	return r.steps.Lookup(StepKey{PropertyID: id, Number: number})
}

// DifferingPropertyResults returns the property rows whose samples disagree.
func (r *Results) DifferingPropertyResults() *Table[string] {
	return r.properties.Filter(removeSharedAssignments(false))
}

// DifferingStepResults returns the step rows whose samples disagree.
func (r *Results) DifferingStepResults() *Table[StepKey] {
	return r.steps.Filter(removeSharedAssignments(false))
}

// SupportedPropertyResults returns the property rows where at least one sample
// is above NO.
func (r *Results) SupportedPropertyResults() *Table[string] {
	return r.properties.Filter(removeSharedAssignments(true))
}

// SupportedStepResults returns the step rows where at least one sample is
// above NO.
func (r *Results) SupportedStepResults() *Table[StepKey] {
	return r.steps.Filter(removeSharedAssignments(true))
}

// removeSharedAssignments returns a row predicate dropping single-valued rows.
// With onlyNo set, a single-valued row is dropped only when its value is NO.
func removeSharedAssignments(onlyNo bool) func(row []engine.Result) bool {
	return func(row []engine.Result) bool {
		if len(row) == 0 {
			return false
		}
		first := row[0]
		for _, result := range row[1:] {
			if result != first {
				return true
			}
		}
		if onlyNo {
			return first != engine.No
		}
		return false
	}
}
