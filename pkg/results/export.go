package results

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/genprop/genprop/pkg/engine"
)

// Export is the JSON document describing a build: the sample names and the
// property tree annotated with per-sample results.
type Export struct {
	SampleNames  []string  `json:"sample_names"`
	PropertyTree *TreeNode `json:"property_tree"`
}

// TreeNode is a node of the exported tree. Property nodes carry PropertyID
// and Children; leaf step nodes carry StepID.
type TreeNode struct {
	PropertyID string          `json:"property_id,omitempty"`
	StepID     int             `json:"step_id,omitempty"`
	Name       string          `json:"name"`
	Enabled    bool            `json:"enabled"`
	Result     []engine.Result `json:"result"`
	Children   []*TreeNode     `json:"children,omitempty"`
}

// IsStep reports whether the node is a leaf step.
func (n *TreeNode) IsStep() bool {
	return n.PropertyID == ""
}

type propertyNodeJSON struct {
	PropertyID string          `json:"property_id"`
	Name       string          `json:"name"`
	Enabled    bool            `json:"enabled"`
	Result     []engine.Result `json:"result"`
	Children   []*TreeNode     `json:"children"`
}

type stepNodeJSON struct {
	StepID  int             `json:"step_id"`
	Name    string          `json:"name"`
	Enabled bool            `json:"enabled"`
	Result  []engine.Result `json:"result"`
}

// MarshalJSON emits a property node with its children, or a step node
// without them.
func (n *TreeNode) MarshalJSON() ([]byte, error) {
	if n.IsStep() {
		return json.Marshal(stepNodeJSON{
			StepID:  n.StepID,
			Name:    n.Name,
			Enabled: n.Enabled,
			Result:  n.Result,
		})
	}
	children := n.Children
	if children == nil {
		children = []*TreeNode{}
	}
	return json.Marshal(propertyNodeJSON{
		PropertyID: n.PropertyID,
		Name:       n.Name,
		Enabled:    n.Enabled,
		Result:     n.Result,
		Children:   children,
	})
}

// Export builds the tree document starting at the tree root. A property shared
// by several parents appears under each of them.
func (r *Results) Export() (*Export, error) {
	root, err := r.exportProperty(r.tree.RootID(), map[string]bool{})
	if err != nil {
		return nil, err
	}
	return &Export{
		SampleNames:  r.Samples(),
		PropertyTree: root,
	}, nil
}

func (r *Results) exportProperty(id string, visiting map[string]bool) (*TreeNode, error) {
	prop, ok := r.tree.Property(id)
	if !ok {
		return nil, engine.NewPermanentError(fmt.Sprintf("property %s not found in tree", id), nil).
			WithCode(engine.ErrCodeUnresolvedReference).
			WithResource(id)
	}
	if visiting[id] {
		return nil, engine.NewPermanentError(fmt.Sprintf("circular reference at property %s", id), nil).
			WithCode(engine.ErrCodeCycleDetected).
			WithResource(id)
	}
	visiting[id] = true
	defer delete(visiting, id)

	node := &TreeNode{
		PropertyID: prop.ID,
		Name:       prop.Name,
		Result:     r.PropertyResult(prop.ID),
		Children:   []*TreeNode{},
	}

	for _, step := range prop.Steps {
		if step.IsLeaf() {
			node.Children = append(node.Children, &TreeNode{
				StepID: step.Number,
				Name:   step.Name,
				Result: r.StepResult(prop.ID, step.Number),
			})
			continue
		}
		for _, childID := range step.Children {
			child, err := r.exportProperty(childID, visiting)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	}

	return node, nil
}

// WriteJSON writes the export document to w.
func (r *Results) WriteJSON(w io.Writer) error {
	doc, err := r.Export()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}
