package results

import (
	"fmt"
	"sort"

	"github.com/genprop/genprop/pkg/engine"
)

// StepKey identifies a step row: the owning property and the step number.
type StepKey struct {
	PropertyID string `json:"property_id"`
	Number     int    `json:"step_number"`
}

// String returns "<property>/<number>".
func (k StepKey) String() string {
	return fmt.Sprintf("%s/%d", k.PropertyID, k.Number)
}

func lessStepKey(a, b StepKey) bool {
	if a.PropertyID != b.PropertyID {
		return a.PropertyID < b.PropertyID
	}
	return a.Number < b.Number
}

func lessString(a, b string) bool { return a < b }

// Table is a result table with one row per entity and one column per sample.
// Rows are kept sorted and a cell with no recorded result reads as NO.
type Table[K comparable] struct {
	samples []string
	keys    []K
	rows    map[K][]engine.Result
	less    func(a, b K) bool
}

func newTable[K comparable](samples []string, less func(a, b K) bool) *Table[K] {
	return &Table[K]{
		samples: append([]string(nil), samples...),
		rows:    make(map[K][]engine.Result),
		less:    less,
	}
}

// set records the result of column col for key, creating the row on first use.
func (t *Table[K]) set(key K, col int, result engine.Result) {
	row, ok := t.rows[key]
	if !ok {
		row = make([]engine.Result, len(t.samples))
		t.rows[key] = row
		t.keys = append(t.keys, key)
	}
	row[col] = result
}

func (t *Table[K]) sortKeys() {
	sort.Slice(t.keys, func(i, j int) bool { return t.less(t.keys[i], t.keys[j]) })
}

// Samples returns the column names in build order.
func (t *Table[K]) Samples() []string {
	return append([]string(nil), t.samples...)
}

// Keys returns the row keys in sorted order.
func (t *Table[K]) Keys() []K {
	return append([]K(nil), t.keys...)
}

// Len returns the number of rows.
func (t *Table[K]) Len() int {
	return len(t.keys)
}

// Row returns a copy of the row for key and whether it exists.
func (t *Table[K]) Row(key K) ([]engine.Result, bool) {
	row, ok := t.rows[key]
	if !ok {
		return nil, false
	}
	return append([]engine.Result(nil), row...), true
}

// Lookup returns the row for key, or a row of NO when the key is absent.
func (t *Table[K]) Lookup(key K) []engine.Result {
	if row, ok := t.Row(key); ok {
		return row
	}
	return make([]engine.Result, len(t.samples))
}

// Filter returns a new table holding the rows for which keep returns true.
func (t *Table[K]) Filter(keep func(row []engine.Result) bool) *Table[K] {
	out := newTable(t.samples, t.less)
	for _, key := range t.keys {
		row := t.rows[key]
		if keep(row) {
			out.rows[key] = append([]engine.Result(nil), row...)
			out.keys = append(out.keys, key)
		}
	}
	return out
}

// concat joins per-sample tables column-wise. Each input contributes its
// columns in order; rows missing from an input stay NO for its columns.
func concat[K comparable](less func(a, b K) bool, parts ...*Table[K]) *Table[K] {
	var samples []string
	for _, p := range parts {
		samples = append(samples, p.samples...)
	}

	out := newTable(samples, less)
	offset := 0
	for _, p := range parts {
		for _, key := range p.keys {
			for col, result := range p.rows[key] {
				out.set(key, offset+col, result)
			}
		}
		offset += len(p.samples)
	}
	out.sortKeys()
	return out
}

// SampleTables builds the single-column property and step tables of one
// assigned cache.
func SampleTables(cache *engine.AssignmentCache) (*Table[string], *Table[StepKey]) {
	samples := []string{cache.SampleName}

	properties := newTable(samples, lessString)
	for id, result := range cache.PropertyResults() {
		properties.set(id, 0, result)
	}
	properties.sortKeys()

	steps := newTable(samples, lessStepKey)
	for id, byNumber := range cache.StepResults() {
		for number, result := range byNumber {
			steps.set(StepKey{PropertyID: id, Number: number}, 0, result)
		}
	}
	steps.sortKeys()

	return properties, steps
}
