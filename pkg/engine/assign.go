package engine

import "fmt"

// Assigner propagates sparse leaf evidence up a property tree, filling an
// AssignmentCache with a result for every reachable property and step.
// An Assigner only reads its tree and may be shared by goroutines working on
// different caches.
type Assigner struct {
	tree *Tree
}

// NewAssigner creates an assigner for tree.
func NewAssigner(tree *Tree) *Assigner {
	return &Assigner{tree: tree}
}

// Assign fills cache starting from the tree root.
func (a *Assigner) Assign(cache *AssignmentCache) error {
	return a.AssignFrom(cache, a.tree.RootID())
}

// AssignFrom fills cache for id and every property reachable below it.
// Properties that already hold a result in the cache are treated as known
// and are not recomputed. Unresolved child references and cycles are
// returned as permanent errors.
func (a *Assigner) AssignFrom(cache *AssignmentCache, id string) error {
	if !a.tree.Has(id) {
		return NewPermanentError(fmt.Sprintf("property %s is not defined in the tree", id), nil).
			WithCode(ErrCodeUnresolvedReference).WithResource(id).WithOperation("assign")
	}
	_, err := a.assignProperty(cache, id, make(map[string]bool), nil)
	return err
}

// assignProperty returns the result of property id, computing and caching it
// on first visit. visiting holds the properties on the current recursion path.
func (a *Assigner) assignProperty(
	cache *AssignmentCache,
	id string,
	visiting map[string]bool,
	path []string,
) (Result, error) {
	if r, ok := cache.PropertyResult(id); ok {
		return r, nil
	}

	if visiting[id] {
		cycle := cyclePath(path, id)
		return No, NewPermanentError(
			fmt.Sprintf("circular reference detected: %s", formatCycle(cycle)),
			nil,
		).WithCode(ErrCodeCycleDetected).WithResource(id).WithOperation("assign")
	}

	p, ok := a.tree.Property(id)
	if !ok {
		parent := ""
		if len(path) > 0 {
			parent = path[len(path)-1]
		}
		return No, NewPermanentError(
			fmt.Sprintf("property %s references non-existent property %s", parent, id),
			nil,
		).WithCode(ErrCodeUnresolvedReference).WithResource(parent).WithOperation("assign")
	}

	visiting[id] = true
	path = append(path, id)

	stepResults := make([]Result, len(p.Steps))
	for i, step := range p.Steps {
		r, err := a.assignStep(cache, id, step, visiting, path)
		if err != nil {
			return No, err
		}
		stepResults[i] = r
	}

	result := combineSteps(p.Steps, stepResults)
	for i, step := range p.Steps {
		cache.CacheStep(id, step.Number, stepResults[i])
	}
	cache.CacheProperty(id, result)

	delete(visiting, id)
	return result, nil
}

// assignStep resolves a single step of property id.
func (a *Assigner) assignStep(
	cache *AssignmentCache,
	id string,
	step Step,
	visiting map[string]bool,
	path []string,
) (Result, error) {
	if step.IsLeaf() {
		if r, ok := cache.StepResult(id, step.Number); ok {
			return r, nil
		}
		for _, ident := range step.Evidence {
			if cache.HasMatch(ident) {
				return Yes, nil
			}
		}
		return No, nil
	}

	childResults := make([]Result, len(step.Children))
	for i, child := range step.Children {
		r, err := a.assignProperty(cache, child, visiting, path)
		if err != nil {
			return No, err
		}
		childResults[i] = r
	}
	return combineChildren(step.Requirement, childResults), nil
}

// combineChildren applies a step requirement to its child property results.
func combineChildren(req Requirement, results []Result) Result {
	yes, aboveNo := 0, 0
	for _, r := range results {
		switch r {
		case Yes:
			yes++
			aboveNo++
		case Partial:
			aboveNo++
		case No:
		}
	}

	switch {
	case yes >= req.needed(len(results)):
		return Yes
	case aboveNo == 0:
		return No
	default:
		return Partial
	}
}

// combineSteps derives a property result from its required steps.
// A property without required steps is NO.
func combineSteps(steps []Step, results []Result) Result {
	required, yes, aboveNo := 0, 0, 0
	for i, step := range steps {
		if !step.Required {
			continue
		}
		required++
		switch results[i] {
		case Yes:
			yes++
			aboveNo++
		case Partial:
			aboveNo++
		case No:
		}
	}

	switch {
	case required == 0:
		return No
	case yes == required:
		return Yes
	case aboveNo == 0:
		return No
	default:
		return Partial
	}
}
