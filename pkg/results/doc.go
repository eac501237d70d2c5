// Package results assembles per-sample assignments into result tables.
//
// A Builder takes one engine.AssignmentCache per sample, synchronizes each
// against the property tree, bootstraps it with an engine.Assigner and joins
// the outcomes into two tables: one row per property and one row per step,
// one column per sample in input order. Samples are processed concurrently;
// the tables are assembled only after every sample has finished.
//
//	res, err := results.NewBuilder(tree).Build(ctx, cacheA, cacheB)
//	if err != nil {
//	    return err
//	}
//	res.PropertyResult("GenProp0065")   // [YES NO]
//	res.DifferingPropertyResults()      // rows where samples disagree
//	res.SupportedPropertyResults()      // rows with some sample above NO
//	res.WriteJSON(os.Stdout)
//
// Lookups of properties or steps that are not in a table return NO for every
// sample.
package results
