package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Tree is an index-based property DAG with a designated root.
// Properties reference their children by identifier, so a property shared
// by several parent steps is stored once. A Tree is immutable after
// construction and safe for concurrent readers.
type Tree struct {
	// root is the identifier of the designated root property
	root string

	// properties maps property IDs to their definitions
	properties map[string]*Property

	// order keeps definition order for deterministic iteration
	order []string

	// parents maps property IDs to the IDs of properties whose steps reference them
	parents map[string][]string
}

// NewTree indexes the given properties under root.
// It rejects empty or duplicate identifiers and a missing root; structural
// references are checked separately by Validate.
func NewTree(root string, properties []Property) (*Tree, error) {
	t := &Tree{
		root:       root,
		properties: make(map[string]*Property, len(properties)),
		order:      make([]string, 0, len(properties)),
		parents:    make(map[string][]string),
	}

	for i := range properties {
		p := properties[i]
		if p.ID == "" {
			return nil, NewPermanentError("property has empty ID", nil).
				WithCode(ErrCodeValidation)
		}
		if _, exists := t.properties[p.ID]; exists {
			return nil, NewPermanentError(fmt.Sprintf("duplicate property ID: %s", p.ID), nil).
				WithCode(ErrCodeValidation)
		}
		p.Steps = append([]Step(nil), p.Steps...)
		t.properties[p.ID] = &p
		t.order = append(t.order, p.ID)
	}

	if _, ok := t.properties[root]; !ok {
		return nil, NewPermanentError(fmt.Sprintf("root property %q is not defined", root), nil).
			WithCode(ErrCodeValidation).WithResource(root)
	}

	for _, id := range t.order {
		seen := make(map[string]bool)
		for _, step := range t.properties[id].Steps {
			for _, child := range step.Children {
				if seen[child] {
					continue
				}
				seen[child] = true
				t.parents[child] = append(t.parents[child], id)
			}
		}
	}

	return t, nil
}

// Root returns the root property.
func (t *Tree) Root() *Property {
	return t.properties[t.root]
}

// RootID returns the identifier of the root property.
func (t *Tree) RootID() string {
	return t.root
}

// Property returns the property with the given identifier.
func (t *Tree) Property(id string) (*Property, bool) {
	p, ok := t.properties[id]
	return p, ok
}

// Has reports whether the tree defines id.
func (t *Tree) Has(id string) bool {
	_, ok := t.properties[id]
	return ok
}

// IDs returns every property identifier in definition order.
func (t *Tree) IDs() []string {
	return append([]string(nil), t.order...)
}

// Len returns the number of properties in the tree.
func (t *Tree) Len() int {
	return len(t.order)
}

// Parents returns the identifiers of properties that reference id from one of their steps.
func (t *Tree) Parents(id string) []string {
	return append([]string(nil), t.parents[id]...)
}

// Validate checks the structural invariants evaluation depends on:
// unique step numbers, resolvable child references, and the absence of cycles.
func (t *Tree) Validate() error {
	for _, id := range t.order {
		p := t.properties[id]
		numbers := make(map[int]bool, len(p.Steps))
		for _, step := range p.Steps {
			if numbers[step.Number] {
				return NewPermanentError(fmt.Sprintf("duplicate step number %d", step.Number), nil).
					WithCode(ErrCodeValidation).WithResource(id)
			}
			numbers[step.Number] = true

			switch step.Requirement.Mode {
			case "", RequireAll, RequireAny:
			case RequireAtLeast:
				if step.Requirement.Min < 1 {
					return NewPermanentError(
						fmt.Sprintf("step %d requires at_least with min %d", step.Number, step.Requirement.Min),
						nil,
					).WithCode(ErrCodeValidation).WithResource(id)
				}
			default:
				return NewPermanentError(
					fmt.Sprintf("step %d has unknown requirement mode %q", step.Number, step.Requirement.Mode),
					nil,
				).WithCode(ErrCodeValidation).WithResource(id)
			}

			for _, child := range step.Children {
				if _, exists := t.properties[child]; !exists {
					return NewPermanentError(
						fmt.Sprintf("step %d references non-existent property %s", step.Number, child),
						nil,
					).WithCode(ErrCodeUnresolvedReference).WithResource(id)
				}
			}
		}
	}

	return t.detectCycles()
}

// detectCycles uses depth-first search to detect circular references.
func (t *Tree) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, id := range t.order {
		if visited[id] {
			continue
		}
		if cycle := t.detectCyclesUtil(id, visited, recStack, nil); cycle != nil {
			return NewPermanentError(
				fmt.Sprintf("circular reference detected: %s", formatCycle(cycle)),
				nil,
			).WithCode(ErrCodeCycleDetected).WithResource(cycle[0])
		}
	}

	return nil
}

// detectCyclesUtil returns the cycle path reachable from nodeID, or nil.
func (t *Tree) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, step := range t.properties[nodeID].Steps {
		for _, child := range step.Children {
			if _, exists := t.properties[child]; !exists {
				continue
			}
			if !visited[child] {
				if cycle := t.detectCyclesUtil(child, visited, recStack, path); cycle != nil {
					return cycle
				}
			} else if recStack[child] {
				return cyclePath(path, child)
			}
		}
	}

	recStack[nodeID] = false
	return nil
}

// cyclePath cuts path at the first occurrence of closing and appends it again.
func cyclePath(path []string, closing string) []string {
	for i, id := range path {
		if id == closing {
			cycle := append([]string(nil), path[i:]...)
			return append(cycle, closing)
		}
	}
	return []string{closing, closing}
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}

// ToDOT generates a DOT format representation of the property DAG.
// The output can be rendered with Graphviz tools.
func (t *Tree) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph PropertyTree {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	ids := t.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		p := t.properties[id]
		color := "white"
		if id == t.root {
			color = "lightblue"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\\n%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
			id, id, p.Name, color))
	}
	sb.WriteString("\n")

	for _, id := range ids {
		for _, step := range t.properties[id].Steps {
			style := "style=solid, color=black"
			if !step.Required {
				style = "style=dashed, color=gray"
			}
			for _, child := range step.Children {
				sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [label=\"%d\", %s];\n", id, child, step.Number, style))
			}
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
