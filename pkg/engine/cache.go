package engine

import "sort"

// AssignmentCache holds the known and inferred results of one sample.
// It starts with the leaf evidence parsed for the sample and is filled in
// place by the Assigner. An AssignmentCache is not safe for concurrent use;
// each sample evaluation owns its own cache.
type AssignmentCache struct {
	// SampleName identifies the sample the cache belongs to.
	SampleName string

	properties map[string]Result
	steps      map[string]map[int]Result
	matches    map[string]struct{}
}

// NewAssignmentCache creates an empty cache for sample, seeded with matched
// functional-unit identifiers.
func NewAssignmentCache(sample string, matches ...string) *AssignmentCache {
	c := &AssignmentCache{
		SampleName: sample,
		properties: make(map[string]Result),
		steps:      make(map[string]map[int]Result),
		matches:    make(map[string]struct{}, len(matches)),
	}
	c.AddMatches(matches...)
	return c
}

// CacheProperty records the result of a property.
func (c *AssignmentCache) CacheProperty(id string, result Result) {
	c.properties[id] = result
}

// CacheStep records the result of a step.
func (c *AssignmentCache) CacheStep(id string, number int, result Result) {
	byNumber, ok := c.steps[id]
	if !ok {
		byNumber = make(map[int]Result)
		c.steps[id] = byNumber
	}
	byNumber[number] = result
}

// PropertyResult returns the cached result of a property.
func (c *AssignmentCache) PropertyResult(id string) (Result, bool) {
	r, ok := c.properties[id]
	return r, ok
}

// StepResult returns the cached result of a step.
func (c *AssignmentCache) StepResult(id string, number int) (Result, bool) {
	r, ok := c.steps[id][number]
	return r, ok
}

// AddMatches records matched functional-unit identifiers.
func (c *AssignmentCache) AddMatches(identifiers ...string) {
	for _, ident := range identifiers {
		if ident == "" {
			continue
		}
		c.matches[ident] = struct{}{}
	}
}

// HasMatch reports whether identifier was matched in the sample.
func (c *AssignmentCache) HasMatch(identifier string) bool {
	_, ok := c.matches[identifier]
	return ok
}

// Matches returns the matched functional-unit identifiers, sorted.
func (c *AssignmentCache) Matches() []string {
	out := make([]string, 0, len(c.matches))
	for ident := range c.matches {
		out = append(out, ident)
	}
	sort.Strings(out)
	return out
}

// PropertyIdentifiers returns every property identifier with a property or
// step entry in the cache, sorted.
func (c *AssignmentCache) PropertyIdentifiers() []string {
	seen := make(map[string]struct{}, len(c.properties)+len(c.steps))
	for id := range c.properties {
		seen[id] = struct{}{}
	}
	for id := range c.steps {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PropertyResults returns a copy of the property results.
func (c *AssignmentCache) PropertyResults() map[string]Result {
	out := make(map[string]Result, len(c.properties))
	for id, r := range c.properties {
		out[id] = r
	}
	return out
}

// StepResults returns a copy of the step results keyed by property then step number.
func (c *AssignmentCache) StepResults() map[string]map[int]Result {
	out := make(map[string]map[int]Result, len(c.steps))
	for id, byNumber := range c.steps {
		cp := make(map[int]Result, len(byNumber))
		for n, r := range byNumber {
			cp[n] = r
		}
		out[id] = cp
	}
	return out
}

// Flush removes every property and step entry for id.
// It reports whether anything was removed.
func (c *AssignmentCache) Flush(id string) bool {
	_, hadProperty := c.properties[id]
	_, hadSteps := c.steps[id]
	delete(c.properties, id)
	delete(c.steps, id)
	return hadProperty || hadSteps
}

// Len returns the number of property and step entries in the cache.
func (c *AssignmentCache) Len() int {
	n := len(c.properties)
	for _, byNumber := range c.steps {
		n += len(byNumber)
	}
	return n
}

// Clone returns an independent deep copy of the cache.
func (c *AssignmentCache) Clone() *AssignmentCache {
	cp := NewAssignmentCache(c.SampleName)
	cp.properties = c.PropertyResults()
	cp.steps = c.StepResults()
	for ident := range c.matches {
		cp.matches[ident] = struct{}{}
	}
	return cp
}
