package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/genprop/genprop/pkg/engine"
)

const testRunYAML = `
tree: tree.yaml
parallelism: 2
store: results.db
output: json
samples:
  - name: genome-A
    evidence:
      - {path: evidence/a.tsv, format: longform}
  - name: genome-B
    evidence:
      - {path: /abs/b.ips.tsv, format: interproscan}
telemetry:
  logging:
    level: debug
`

func TestLoadRunConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", testRunYAML)

	cfg, err := LoadRunConfig(path)
	if err != nil {
		t.Fatalf("LoadRunConfig failed: %v", err)
	}

	if cfg.Tree != filepath.Join(dir, "tree.yaml") {
		t.Errorf("Expected tree path resolved against run dir, got %s", cfg.Tree)
	}
	if cfg.Store != filepath.Join(dir, "results.db") {
		t.Errorf("Expected store path resolved against run dir, got %s", cfg.Store)
	}
	if cfg.Parallelism != 2 || cfg.Output != "json" {
		t.Errorf("Unexpected parallelism/output: %d/%s", cfg.Parallelism, cfg.Output)
	}
	if len(cfg.Samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(cfg.Samples))
	}
	if got := cfg.Samples[0].Evidence[0].Path; got != filepath.Join(dir, "evidence", "a.tsv") {
		t.Errorf("Expected relative evidence path resolved, got %s", got)
	}
	if got := cfg.Samples[1].Evidence[0].Path; got != "/abs/b.ips.tsv" {
		t.Errorf("Expected absolute evidence path unchanged, got %s", got)
	}

	tel := cfg.TelemetryConfig()
	if tel.Logging.Level != "debug" {
		t.Errorf("Expected telemetry log level debug, got %s", tel.Logging.Level)
	}
	if tel.ServiceName != "genprop" || tel.Logging.Format != "console" {
		t.Errorf("Expected unset telemetry fields to take defaults, got %s/%s", tel.ServiceName, tel.Logging.Format)
	}
}

func TestLoadRunConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no samples", "tree: t.yaml\nsamples: []\n"},
		{"bad format", "tree: t.yaml\nsamples:\n  - name: a\n    evidence: [{path: a.tsv, format: gff}]\n"},
		{"bad output", "tree: t.yaml\noutput: xml\nsamples:\n  - name: a\n    evidence: [{path: a.tsv, format: longform}]\n"},
		{"duplicate sample", "tree: t.yaml\nsamples:\n" +
			"  - name: a\n    evidence: [{path: a.tsv, format: longform}]\n" +
			"  - name: a\n    evidence: [{path: b.tsv, format: longform}]\n"},
		{"missing tree", "samples:\n  - name: a\n    evidence: [{path: a.tsv, format: longform}]\n"},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadRunConfig(writeFile(t, dir, "run.yaml", tt.content)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestRunConfig_LoadCaches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.tsv", testLongForm)
	writeFile(t, dir, "b.tsv", "GenProp0101\t1\tYES\n")
	path := writeFile(t, dir, "run.cue", `
tree: "tree.yaml"
samples: [
	{name: "A", evidence: [{path: "a.tsv", format: "longform"}]},
	{name: "B", evidence: [{path: "b.tsv", format: "longform"}]},
]
`)

	cfg, err := LoadRunConfig(path)
	if err != nil {
		t.Fatalf("LoadRunConfig failed: %v", err)
	}
	caches, err := cfg.LoadCaches()
	if err != nil {
		t.Fatalf("LoadCaches failed: %v", err)
	}
	if len(caches) != 2 || caches[0].SampleName != "A" || caches[1].SampleName != "B" {
		t.Fatalf("Expected caches [A B] in order, got %d", len(caches))
	}
	if caches[1].Len() != 1 {
		t.Errorf("Expected 1 entry for B, got %d", caches[1].Len())
	}
}

func TestTreeWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tree.json", testTreeJSON)

	reloaded := make(chan *engine.Tree, 1)
	w := NewTreeWatcher(path, zerolog.Nop(), func(tree *engine.Tree) {
		select {
		case reloaded <- tree:
		default:
		}
	}).WithDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(testTreeCUE), 0644); err != nil {
		t.Fatalf("Failed to rewrite definition: %v", err)
	}

	select {
	case tree := <-reloaded:
		if tree.Len() != 3 {
			t.Errorf("Expected reloaded tree with 3 properties, got %d", tree.Len())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop after Watch returned error: %v", err)
	}
}
