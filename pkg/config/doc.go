// Package config loads the inputs of an assignment run.
//
// # Property trees
//
// A tree definition names a root property and lists every property with its
// steps. It can be written in YAML, CUE or JSON:
//
//	root: GenProp0065
//	properties:
//	  - id: GenProp0065
//	    name: Nitrogen fixation
//	    steps:
//	      - number: 1
//	        name: nitrogenase
//	        children: [GenProp0101]
//	      - number: 2
//	        name: regulator
//	        required: false
//	        evidence: [IPR005814]
//	  - id: GenProp0101
//	    name: Nitrogenase complex
//	    steps:
//	      - {number: 1, name: NifH, evidence: [IPR005977]}
//	      - {number: 2, name: NifD, evidence: [IPR005972]}
//
// Steps are required unless marked otherwise. A step with children combines
// them with its requirement: all (the default), any, or at_least with min.
//
// Definitions are checked three times: against a built-in CUE schema, by
// struct-tag validation, and by engine.Tree.Validate for duplicate step
// numbers, unresolved references and cycles. Schema and field problems are
// returned together as ValidationErrors carrying file, line and field path.
//
// # Evidence
//
// Sample evidence is read into an engine.AssignmentCache:
//
//   - long form files hold observed results, one per line:
//     "GenProp0065<TAB>1<TAB>YES" for a step, "GenProp0065<TAB>-<TAB>NO" for a property.
//   - InterProScan TSV output contributes the signature (column 5) and
//     InterPro (column 12) accessions of each match.
//
// # Run files
//
// A RunConfig ties a tree to a list of samples and their evidence files, with
// optional parallelism, store path, output format and telemetry overrides.
// TreeWatcher reloads a definition file when it changes on disk.
package config
