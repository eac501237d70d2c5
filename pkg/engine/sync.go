package engine

import "sort"

// Synchronize returns a copy of cache restricted to the property identifiers
// known to both the cache and tree. Identifiers present on only one side are
// flushed rather than defaulted, so a cache built against another release of
// the property definitions never contributes results for properties the tree
// no longer defines. The input cache is not modified.
func Synchronize(cache *AssignmentCache, tree *Tree) *AssignmentCache {
	synced, _ := Reconcile(cache, tree)
	return synced
}

// Reconcile is Synchronize that also returns the flushed identifiers, sorted.
func Reconcile(cache *AssignmentCache, tree *Tree) (*AssignmentCache, []string) {
	synced := cache.Clone()

	cacheIDs := make(map[string]bool)
	for _, id := range cache.PropertyIdentifiers() {
		cacheIDs[id] = true
	}
	treeIDs := make(map[string]bool, tree.Len())
	for _, id := range tree.IDs() {
		treeIDs[id] = true
	}

	var flushed []string
	for id := range cacheIDs {
		if !treeIDs[id] && synced.Flush(id) {
			flushed = append(flushed, id)
		}
	}
	for id := range treeIDs {
		if !cacheIDs[id] && synced.Flush(id) {
			flushed = append(flushed, id)
		}
	}

	sort.Strings(flushed)
	return synced, flushed
}
