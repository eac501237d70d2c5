package engine_test

import (
	"fmt"

	"github.com/genprop/genprop/pkg/engine"
)

// Example_assign demonstrates how sparse evidence is propagated up a small
// property tree.
func Example_assign() {
	// 1. Define the property tree
	tree, err := engine.NewTree("GenProp0065", []engine.Property{
		{
			ID:   "GenProp0065",
			Name: "Nitrogen fixation",
			Steps: []engine.Step{
				{Number: 1, Name: "nitrogenase", Required: true, Children: []string{"GenProp0101"}},
				{Number: 2, Name: "regulator", Required: false, Evidence: []string{"IPR005814"}},
			},
		},
		{
			ID:   "GenProp0101",
			Name: "Nitrogenase complex",
			Steps: []engine.Step{
				{Number: 1, Name: "NifH", Required: true, Evidence: []string{"IPR005977"}},
				{Number: 2, Name: "NifD", Required: true, Evidence: []string{"IPR005972"}},
			},
		},
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	// 2. Seed a sample cache with matched identifiers
	evidence := engine.NewAssignmentCache("sample-1", "IPR005977")

	// 3. Synchronize and bootstrap
	cache := engine.Synchronize(evidence, tree)
	if err := engine.NewAssigner(tree).Assign(cache); err != nil {
		fmt.Println(err)
		return
	}

	for _, id := range tree.IDs() {
		result, _ := cache.PropertyResult(id)
		fmt.Printf("%s %s\n", id, result)
	}

	// Output:
	// GenProp0065 PARTIAL
	// GenProp0101 PARTIAL
}
