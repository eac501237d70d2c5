package results

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/genprop/genprop/pkg/engine"
	"github.com/genprop/genprop/pkg/telemetry"
)

var (
	Y = engine.Yes
	P = engine.Partial
	N = engine.No
)

// newTestTree builds:
//
//	ROOT  step 1 -> X (required), step 2 -> Y (required), step 3 -> Z (optional)
//	X     step 1 leaf IPR1
//	Y     step 1 leaf IPR2, step 2 leaf IPR3
//	Z     step 1 leaf IPR4
func newTestTree(t *testing.T) *engine.Tree {
	t.Helper()

	tree, err := engine.NewTree("ROOT", []engine.Property{
		{ID: "ROOT", Name: "Root", Steps: []engine.Step{
			{Number: 1, Name: "x", Required: true, Children: []string{"X"}},
			{Number: 2, Name: "y", Required: true, Children: []string{"Y"}},
			{Number: 3, Name: "z", Required: false, Children: []string{"Z"}},
		}},
		{ID: "X", Name: "Property X", Steps: []engine.Step{
			{Number: 1, Name: "x1", Required: true, Evidence: []string{"IPR1"}},
		}},
		{ID: "Y", Name: "Property Y", Steps: []engine.Step{
			{Number: 1, Name: "y1", Required: true, Evidence: []string{"IPR2"}},
			{Number: 2, Name: "y2", Required: true, Evidence: []string{"IPR3"}},
		}},
		{ID: "Z", Name: "Property Z", Steps: []engine.Step{
			{Number: 1, Name: "z1", Required: true, Evidence: []string{"IPR4"}},
		}},
	})
	if err != nil {
		t.Fatalf("Failed to build tree: %v", err)
	}
	if err := tree.Validate(); err != nil {
		t.Fatalf("Invalid tree: %v", err)
	}
	return tree
}

func build(t *testing.T, tree *engine.Tree, caches ...*engine.AssignmentCache) *Results {
	t.Helper()

	res, err := NewBuilder(tree).Build(context.Background(), caches...)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return res
}

func TestBuilder_Build(t *testing.T) {
	tree := newTestTree(t)

	// A: X yes, Y yes. B: X yes, Y partial.
	a := engine.NewAssignmentCache("A", "IPR1", "IPR2", "IPR3")
	b := engine.NewAssignmentCache("B", "IPR1", "IPR2")

	res := build(t, tree, a, b)

	if got := res.Samples(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("Expected samples [A B], got %v", got)
	}

	tests := []struct {
		id   string
		want []engine.Result
	}{
		{"ROOT", []engine.Result{Y, P}},
		{"X", []engine.Result{Y, Y}},
		{"Y", []engine.Result{Y, P}},
		{"Z", []engine.Result{N, N}},
	}
	for _, tt := range tests {
		if got := res.PropertyResult(tt.id); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("PropertyResult(%s): expected %v, got %v", tt.id, tt.want, got)
		}
	}

	if got := res.StepResult("Y", 2); !reflect.DeepEqual(got, []engine.Result{Y, N}) {
		t.Errorf("StepResult(Y, 2): expected [YES NO], got %v", got)
	}

	wantKeys := []string{"ROOT", "X", "Y", "Z"}
	if got := res.Properties().Keys(); !reflect.DeepEqual(got, wantKeys) {
		t.Errorf("Expected sorted property keys %v, got %v", wantKeys, got)
	}

	wantSteps := []StepKey{
		{"ROOT", 1}, {"ROOT", 2}, {"ROOT", 3},
		{"X", 1}, {"Y", 1}, {"Y", 2}, {"Z", 1},
	}
	if got := res.Steps().Keys(); !reflect.DeepEqual(got, wantSteps) {
		t.Errorf("Expected step keys %v, got %v", wantSteps, got)
	}

	// Inputs are untouched.
	if a.Len() != 0 || b.Len() != 0 {
		t.Errorf("Expected input caches to stay empty, got %d and %d entries", a.Len(), b.Len())
	}
}

func TestBuilder_Build_ColumnOrder(t *testing.T) {
	tree := newTestTree(t)

	var caches []*engine.AssignmentCache
	var names []string
	for _, name := range []string{"s9", "s1", "s5", "s3", "s7", "s2"} {
		caches = append(caches, engine.NewAssignmentCache(name, "IPR1"))
		names = append(names, name)
	}

	builder := NewBuilder(tree)
	builder.Parallelism = 2
	res, err := builder.Build(context.Background(), caches...)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := res.Properties().Samples(); !reflect.DeepEqual(got, names) {
		t.Errorf("Expected property columns %v, got %v", names, got)
	}
	if got := res.Steps().Samples(); !reflect.DeepEqual(got, names) {
		t.Errorf("Expected step columns %v, got %v", names, got)
	}
}

func TestBuilder_Build_FlushesForeignEntries(t *testing.T) {
	tree := newTestTree(t)

	cache := engine.NewAssignmentCache("A")
	cache.CacheProperty("GONE", engine.Yes)
	cache.CacheStep("GONE", 1, engine.Yes)
	cache.CacheStep("X", 1, engine.Yes)

	res := build(t, tree, cache)

	if _, ok := res.Properties().Row("GONE"); ok {
		t.Error("Expected GONE to be flushed from the property table")
	}
	if _, ok := res.Steps().Row(StepKey{"GONE", 1}); ok {
		t.Error("Expected GONE/1 to be flushed from the step table")
	}
	// X is shared by tree and cache, so its observed step survives and
	// drives the property result despite no matched identifiers.
	if got := res.PropertyResult("X"); !reflect.DeepEqual(got, []engine.Result{Y}) {
		t.Errorf("Expected X to be YES, got %v", got)
	}
}

func TestBuilder_Build_KeepsSharedEntries(t *testing.T) {
	tree := newTestTree(t)

	cache := engine.NewAssignmentCache("A")
	cache.CacheProperty("X", engine.Yes)
	cache.CacheProperty("Y", engine.Partial)
	cache.CacheProperty("ROOT", engine.No)
	cache.CacheProperty("Z", engine.No)

	res := build(t, tree, cache)

	if got := res.PropertyResult("ROOT"); !reflect.DeepEqual(got, []engine.Result{N}) {
		t.Errorf("Expected pre-populated ROOT=NO to be kept, got %v", got)
	}
	if got := res.PropertyResult("Y"); !reflect.DeepEqual(got, []engine.Result{P}) {
		t.Errorf("Expected pre-populated Y=PARTIAL, got %v", got)
	}
}

func TestBuilder_Build_Validation(t *testing.T) {
	tree := newTestTree(t)

	tests := []struct {
		name   string
		caches []*engine.AssignmentCache
	}{
		{"duplicate sample", []*engine.AssignmentCache{
			engine.NewAssignmentCache("A"), engine.NewAssignmentCache("A"),
		}},
		{"empty sample name", []*engine.AssignmentCache{engine.NewAssignmentCache("")}},
		{"nil cache", []*engine.AssignmentCache{nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(tree).Build(context.Background(), tt.caches...)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if code := engine.ErrorCode(err); code != engine.ErrCodeValidation {
				t.Errorf("Expected code %s, got %s", engine.ErrCodeValidation, code)
			}
		})
	}

	if _, err := (&Builder{}).Build(context.Background()); err == nil {
		t.Error("Expected error for builder without tree")
	}
}

func TestBuilder_Build_UnresolvedReference(t *testing.T) {
	tree, err := engine.NewTree("ROOT", []engine.Property{
		{ID: "ROOT", Steps: []engine.Step{
			{Number: 1, Required: true, Children: []string{"MISSING"}},
		}},
	})
	if err != nil {
		t.Fatalf("Failed to build tree: %v", err)
	}

	_, err = NewBuilder(tree).Build(context.Background(), engine.NewAssignmentCache("A"))
	if err == nil {
		t.Fatal("Expected error for unresolved child, got nil")
	}
	if !engine.IsPermanent(err) {
		t.Errorf("Expected permanent error, got %v", err)
	}
	if code := engine.ErrorCode(err); code != engine.ErrCodeUnresolvedReference {
		t.Errorf("Expected code %s, got %s", engine.ErrCodeUnresolvedReference, code)
	}
}

func TestBuilder_Build_Cancelled(t *testing.T) {
	tree := newTestTree(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(tree).Build(ctx, engine.NewAssignmentCache("A"))
	if err == nil {
		t.Fatal("Expected cancellation error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
	if code := engine.ErrorCode(err); code != engine.ErrCodeCancelled {
		t.Errorf("Expected code %s, got %s", engine.ErrCodeCancelled, code)
	}
}

func TestBuilder_Build_WithTelemetry(t *testing.T) {
	tree := newTestTree(t)

	cfg := telemetry.DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "debug"
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("Failed to create telemetry: %v", err)
	}
	var buf bytes.Buffer
	tel.Logger = telemetry.NewLoggerWithWriter(cfg.Logging, &buf)

	ctx := tel.WithContext(context.Background())
	if _, err := NewBuilder(tree).Build(ctx, engine.NewAssignmentCache("A", "IPR1")); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !bytes.Contains(buf.Bytes(), []byte("result tables built")) {
		t.Errorf("Expected build completion log, got %q", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"sample":"A"`)) {
		t.Errorf("Expected per-sample log line, got %q", buf.String())
	}
}

func TestResults_LookupDefaultsToNo(t *testing.T) {
	res := build(t, newTestTree(t),
		engine.NewAssignmentCache("A"), engine.NewAssignmentCache("B"))

	if got := res.PropertyResult("UNKNOWN"); !reflect.DeepEqual(got, []engine.Result{N, N}) {
		t.Errorf("Expected [NO NO] for unknown property, got %v", got)
	}
	if got := res.StepResult("X", 99); !reflect.DeepEqual(got, []engine.Result{N, N}) {
		t.Errorf("Expected [NO NO] for unknown step, got %v", got)
	}
}

func TestResults_DifferingPropertyResults(t *testing.T) {
	tree := newTestTree(t)

	// X = YES/YES, Y = YES/NO, Z = NO/NO
	a := engine.NewAssignmentCache("A", "IPR1", "IPR2", "IPR3")
	b := engine.NewAssignmentCache("B", "IPR1")

	res := build(t, tree, a, b)
	differing := res.DifferingPropertyResults()

	if got := differing.Keys(); !reflect.DeepEqual(got, []string{"ROOT", "Y"}) {
		t.Errorf("Expected differing rows [ROOT Y], got %v", got)
	}
	if row, _ := differing.Row("Y"); !reflect.DeepEqual(row, []engine.Result{Y, N}) {
		t.Errorf("Expected Y row [YES NO], got %v", row)
	}
	if !reflect.DeepEqual(differing.Samples(), []string{"A", "B"}) {
		t.Errorf("Expected filtered table to keep columns, got %v", differing.Samples())
	}

	steps := res.DifferingStepResults()
	want := []StepKey{{"ROOT", 2}, {"Y", 1}, {"Y", 2}}
	if got := steps.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected differing steps %v, got %v", want, got)
	}
}

func TestResults_DifferingSingleSample(t *testing.T) {
	res := build(t, newTestTree(t), engine.NewAssignmentCache("A", "IPR1"))

	if n := res.DifferingPropertyResults().Len(); n != 0 {
		t.Errorf("Expected no differing rows for one sample, got %d", n)
	}
}

func TestResults_SupportedPropertyResults(t *testing.T) {
	tree := newTestTree(t)

	// X = YES/YES, Y = PARTIAL/NO, Z = NO/NO
	a := engine.NewAssignmentCache("A", "IPR1", "IPR2")
	b := engine.NewAssignmentCache("B", "IPR1")

	res := build(t, tree, a, b)
	supported := res.SupportedPropertyResults()

	want := []string{"ROOT", "X", "Y"}
	if got := supported.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected supported rows %v, got %v", want, got)
	}
	if _, ok := supported.Row("Z"); ok {
		t.Error("Expected Z (all NO) to be excluded")
	}

	steps := res.SupportedStepResults()
	for _, key := range steps.Keys() {
		if key == (StepKey{"Z", 1}) || key == (StepKey{"ROOT", 3}) {
			t.Errorf("Expected all-NO step %s to be excluded", key)
		}
	}
	if _, ok := steps.Row(StepKey{"X", 1}); !ok {
		t.Error("Expected X/1 to be supported")
	}
}

func TestRemoveSharedAssignments(t *testing.T) {
	tests := []struct {
		name          string
		row           []engine.Result
		wantDiffering bool
		wantSupported bool
	}{
		{"all yes", []engine.Result{Y, Y}, false, true},
		{"all no", []engine.Result{N, N}, false, false},
		{"all partial", []engine.Result{P, P, P}, false, true},
		{"mixed", []engine.Result{Y, N}, true, true},
		{"partial and no", []engine.Result{N, P}, true, true},
		{"single yes", []engine.Result{Y}, false, true},
		{"single no", []engine.Result{N}, false, false},
		{"empty", nil, false, false},
	}

	differing := removeSharedAssignments(false)
	supported := removeSharedAssignments(true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := differing(tt.row); got != tt.wantDiffering {
				t.Errorf("differing(%v) = %v, want %v", tt.row, got, tt.wantDiffering)
			}
			if got := supported(tt.row); got != tt.wantSupported {
				t.Errorf("supported(%v) = %v, want %v", tt.row, got, tt.wantSupported)
			}
		})
	}
}

func TestSampleTables(t *testing.T) {
	cache := engine.NewAssignmentCache("A")
	cache.CacheProperty("B", engine.Yes)
	cache.CacheProperty("A", engine.No)
	cache.CacheStep("B", 2, engine.Partial)
	cache.CacheStep("B", 1, engine.Yes)

	props, steps := SampleTables(cache)

	if got := props.Keys(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("Expected property keys [A B], got %v", got)
	}
	if got := steps.Keys(); !reflect.DeepEqual(got, []StepKey{{"B", 1}, {"B", 2}}) {
		t.Errorf("Expected step keys [B/1 B/2], got %v", got)
	}
	if row, _ := steps.Row(StepKey{"B", 2}); !reflect.DeepEqual(row, []engine.Result{P}) {
		t.Errorf("Expected B/2 = [PARTIAL], got %v", row)
	}
}

func TestConcat_MissingCellsAreNo(t *testing.T) {
	a := newTable([]string{"A"}, lessString)
	a.set("P1", 0, engine.Yes)
	b := newTable([]string{"B"}, lessString)
	b.set("P2", 0, engine.Partial)

	table := concat(lessString, a, b)

	if got := table.Lookup("P1"); !reflect.DeepEqual(got, []engine.Result{Y, N}) {
		t.Errorf("Expected P1 = [YES NO], got %v", got)
	}
	if got := table.Lookup("P2"); !reflect.DeepEqual(got, []engine.Result{N, P}) {
		t.Errorf("Expected P2 = [NO PARTIAL], got %v", got)
	}
}

func TestResults_WriteJSON(t *testing.T) {
	tree := newTestTree(t)
	res := build(t, tree,
		engine.NewAssignmentCache("A", "IPR1", "IPR2", "IPR3"),
		engine.NewAssignmentCache("B", "IPR1"))

	var buf bytes.Buffer
	if err := res.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var doc struct {
		SampleNames  []string               `json:"sample_names"`
		PropertyTree map[string]interface{} `json:"property_tree"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode export: %v", err)
	}

	if !reflect.DeepEqual(doc.SampleNames, []string{"A", "B"}) {
		t.Errorf("Expected sample_names [A B], got %v", doc.SampleNames)
	}

	root := doc.PropertyTree
	if root["property_id"] != "ROOT" || root["enabled"] != false {
		t.Errorf("Unexpected root node: %v", root)
	}
	if got := root["result"]; !reflect.DeepEqual(got, []interface{}{"YES", "PARTIAL"}) {
		t.Errorf("Expected root result [YES PARTIAL], got %v", got)
	}

	children := root["children"].([]interface{})
	if len(children) != 3 {
		t.Fatalf("Expected 3 child properties, got %d", len(children))
	}

	y := children[1].(map[string]interface{})
	if y["property_id"] != "Y" {
		t.Fatalf("Expected second child Y, got %v", y["property_id"])
	}
	ySteps := y["children"].([]interface{})
	if len(ySteps) != 2 {
		t.Fatalf("Expected 2 leaf steps under Y, got %d", len(ySteps))
	}
	step := ySteps[1].(map[string]interface{})
	if step["step_id"] != float64(2) || step["name"] != "y2" {
		t.Errorf("Unexpected step node: %v", step)
	}
	if _, ok := step["children"]; ok {
		t.Error("Expected leaf step node to have no children key")
	}
	if got := step["result"]; !reflect.DeepEqual(got, []interface{}{"YES", "NO"}) {
		t.Errorf("Expected step result [YES NO], got %v", got)
	}
}

func TestResults_Export_SharedChild(t *testing.T) {
	tree, err := engine.NewTree("ROOT", []engine.Property{
		{ID: "ROOT", Name: "Root", Steps: []engine.Step{
			{Number: 1, Required: true, Children: []string{"A", "B"}},
		}},
		{ID: "A", Steps: []engine.Step{{Number: 1, Required: true, Children: []string{"C"}}}},
		{ID: "B", Steps: []engine.Step{{Number: 1, Required: true, Children: []string{"C"}}}},
		{ID: "C", Steps: []engine.Step{{Number: 1, Required: true, Evidence: []string{"IPR1"}}}},
	})
	if err != nil {
		t.Fatalf("Failed to build tree: %v", err)
	}

	res := build(t, tree, engine.NewAssignmentCache("S", "IPR1"))
	doc, err := res.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	for _, parent := range doc.PropertyTree.Children {
		if len(parent.Children) != 1 || parent.Children[0].PropertyID != "C" {
			t.Errorf("Expected %s to contain C, got %+v", parent.PropertyID, parent.Children)
		}
	}
}

func TestAssemble(t *testing.T) {
	tree := newTestTree(t)

	a := engine.NewAssignmentCache("A")
	a.CacheProperty("ROOT", engine.Partial)
	a.CacheStep("ROOT", 1, engine.Yes)
	b := engine.NewAssignmentCache("B")
	b.CacheProperty("ROOT", engine.Yes)
	b.CacheProperty("X", engine.Yes)

	res, err := Assemble(tree, a, b)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if got := res.PropertyResult("ROOT"); !reflect.DeepEqual(got, []engine.Result{P, Y}) {
		t.Errorf("Expected ROOT [PARTIAL YES], got %v", got)
	}
	if got := res.PropertyResult("X"); !reflect.DeepEqual(got, []engine.Result{N, Y}) {
		t.Errorf("Expected X [NO YES], got %v", got)
	}
	if got := res.StepResult("ROOT", 1); !reflect.DeepEqual(got, []engine.Result{Y, N}) {
		t.Errorf("Expected ROOT/1 [YES NO], got %v", got)
	}

	if _, err := Assemble(nil, a); engine.ErrorCode(err) != engine.ErrCodeValidation {
		t.Errorf("Expected validation error for nil tree, got %v", err)
	}
	if _, err := Assemble(tree, a, a); engine.ErrorCode(err) != engine.ErrCodeValidation {
		t.Errorf("Expected validation error for duplicate sample, got %v", err)
	}
}
