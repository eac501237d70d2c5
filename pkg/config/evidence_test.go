package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/genprop/genprop/pkg/engine"
)

const testLongForm = `# sample results
GenProp0065	-	PARTIAL
GenProp0101	1	YES

GenProp0101	2	no
`

const testInterProScan = "" +
	"P1\tmd5\t100\tPfam\tPF00142\tFer4_NifH\t1\t90\t1e-30\tT\t01-01-2024\tIPR000392\tNifH/frxC\n" +
	"P2\tmd5\t200\tTIGRFAM\tTIGR01282\tnifD\t5\t180\t1e-50\tT\t01-01-2024\t-\t-\n" +
	"P3\tmd5\t150\tPANTHER\tPTHR11\tdesc\t1\t150\t0.0\tT\t01-01-2024\n"

func TestParseLongForm(t *testing.T) {
	cache, err := ParseLongForm(strings.NewReader(testLongForm), "genome-A")
	if err != nil {
		t.Fatalf("ParseLongForm failed: %v", err)
	}

	if cache.SampleName != "genome-A" {
		t.Errorf("Expected sample genome-A, got %s", cache.SampleName)
	}
	if r, ok := cache.PropertyResult("GenProp0065"); !ok || r != engine.Partial {
		t.Errorf("Expected GenProp0065 = PARTIAL, got %v (%v)", r, ok)
	}
	if r, ok := cache.StepResult("GenProp0101", 1); !ok || r != engine.Yes {
		t.Errorf("Expected GenProp0101/1 = YES, got %v (%v)", r, ok)
	}
	if r, ok := cache.StepResult("GenProp0101", 2); !ok || r != engine.No {
		t.Errorf("Expected GenProp0101/2 = NO, got %v (%v)", r, ok)
	}
	if cache.Len() != 3 {
		t.Errorf("Expected 3 entries, got %d", cache.Len())
	}
}

func TestParseLongForm_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"bad result", "GenProp0001\t1\tMAYBE\n", "line 1"},
		{"bad step", "# header\nGenProp0001\tone\tYES\n", "line 2"},
		{"zero step", "GenProp0001\t0\tYES\n", "invalid step number"},
		{"empty id", "\t1\tYES\n", "empty property id"},
		{"wrong column count", "GenProp0001\tYES\n", "wrong number of fields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLongForm(strings.NewReader(tt.content), "s")
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestParseInterProScan(t *testing.T) {
	cache, err := ParseInterProScan(strings.NewReader(testInterProScan), "genome-A")
	if err != nil {
		t.Fatalf("ParseInterProScan failed: %v", err)
	}

	want := []string{"IPR000392", "PF00142", "PTHR11", "TIGR01282"}
	if got := cache.Matches(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected matches %v, got %v", want, got)
	}
	if cache.Len() != 0 {
		t.Errorf("Expected no result entries, got %d", cache.Len())
	}
}

func TestParseInterProScan_TooFewColumns(t *testing.T) {
	_, err := ParseInterProScan(strings.NewReader("P1\tmd5\t100\n"), "s")
	if err == nil || !strings.Contains(err.Error(), "at least 5 columns") {
		t.Errorf("Expected column count error, got %v", err)
	}
}

func TestLoadEvidence_MergesFiles(t *testing.T) {
	dir := t.TempDir()
	lf := writeFile(t, dir, "a.tsv", testLongForm)
	ips := writeFile(t, dir, "a.ips.tsv", testInterProScan)

	cache, err := LoadEvidence("genome-A",
		EvidenceFile{Path: lf, Format: EvidenceLongForm},
		EvidenceFile{Path: ips, Format: EvidenceInterProScan},
	)
	if err != nil {
		t.Fatalf("LoadEvidence failed: %v", err)
	}
	if cache.Len() != 3 {
		t.Errorf("Expected 3 result entries, got %d", cache.Len())
	}
	if !cache.HasMatch("IPR000392") {
		t.Error("Expected IPR000392 match")
	}

	_, err = LoadEvidence("x", EvidenceFile{Path: filepath.Join(dir, "missing.tsv"), Format: EvidenceLongForm})
	if err == nil {
		t.Error("Expected error for missing file")
	}
	_, err = LoadEvidence("x", EvidenceFile{Path: lf, Format: "gff"})
	if err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestEvidence_AssignsWithTree(t *testing.T) {
	tree, err := NewLoader().ParseTreeDefinition([]byte(testTreeYAML), "tree.yaml", FormatYAML)
	if err != nil {
		t.Fatalf("ParseTreeDefinition failed: %v", err)
	}
	built, err := tree.ToTree()
	if err != nil {
		t.Fatalf("ToTree failed: %v", err)
	}

	cache, err := ParseInterProScan(strings.NewReader(testInterProScan), "genome-A")
	if err != nil {
		t.Fatalf("ParseInterProScan failed: %v", err)
	}
	cache.AddMatches("IPR005977", "IPR005972", "IPR000001")

	synced := engine.Synchronize(cache, built)
	if err := engine.NewAssigner(built).Assign(synced); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if r, _ := synced.PropertyResult("GenProp0065"); r != engine.Yes {
		t.Errorf("Expected GenProp0065 = YES, got %s", r)
	}
}
