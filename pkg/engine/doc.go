// Package engine provides the core types and the assignment engine of genprop.
//
// # Overview
//
// A genome property is a curated functional module made of ordered steps.
// A step is satisfied either directly by evidence (a leaf step, matched
// functional-unit identifiers) or by one or more child properties. Evaluation
// takes sparse per-sample evidence and infers a result for every step and
// property reachable from the tree root:
//
//  1. Load - an external parser builds a Tree and one AssignmentCache per sample
//  2. Synchronize - drop cache entries for properties the tree and cache do not share
//  3. Assign - depth-first, memoized propagation of results up the tree
//
// # Core Domain Types
//
//   - Result: closed three-state enumeration, ordered NO < PARTIAL < YES
//   - Property: identifier, display name and ordered steps
//   - Step: step number, required flag, Requirement, child property references or evidence
//   - Requirement: how child properties combine (all, any, at_least)
//   - Tree: index-based property DAG with a designated root
//   - AssignmentCache: per-sample store of known and inferred results
//
// # Combination Rules
//
// A property is YES when every required step is YES, NO when no required step
// is above NO, and PARTIAL otherwise. A property without required steps is NO.
// A step with child properties is YES when enough children are YES to meet its
// Requirement, NO when every child is NO, and PARTIAL otherwise. A leaf step
// takes its cached result, or YES when one of its evidence identifiers was
// matched in the sample, or NO.
//
// # Usage Example
//
//	tree, err := engine.NewTree("GenProp0065", properties)
//	if err != nil {
//	    return err
//	}
//	if err := tree.Validate(); err != nil {
//	    return err
//	}
//
//	cache := engine.Synchronize(evidence, tree)
//	if err := engine.NewAssigner(tree).Assign(cache); err != nil {
//	    return err
//	}
//	result, _ := cache.PropertyResult("GenProp0065")
//
// # Error Classification
//
// Errors are EngineError values classified as permanent (corrupt tree,
// unresolved references, cycles) or transient (cancellation), with a code for
// programmatic handling:
//
//	if engine.ErrorCode(err) == engine.ErrCodeCycleDetected {
//	    // the property definitions are not a DAG
//	}
//
// # Thread Safety
//
// Tree and Assigner are read-only after construction and can be shared.
// An AssignmentCache belongs to one sample evaluation at a time.
package engine
