package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/genprop/genprop/pkg/engine"
	"github.com/genprop/genprop/pkg/telemetry"
)

// RunConfig describes one assignment run: the tree, the samples and how to
// process and report them. Relative paths are resolved against the directory
// of the run file.
type RunConfig struct {
	// Tree is the path of the property tree definition.
	Tree string `json:"tree" yaml:"tree" validate:"required"`

	// Parallelism bounds the samples assigned at once (0 uses the default).
	Parallelism int `json:"parallelism,omitempty" yaml:"parallelism,omitempty" validate:"min=0"`

	// Store is an optional SQLite database path for persisting the run.
	Store string `json:"store,omitempty" yaml:"store,omitempty"`

	// Output selects the report format: table or json.
	Output string `json:"output,omitempty" yaml:"output,omitempty" validate:"omitempty,oneof=table json"`

	// Samples are the samples to assign, in column order.
	Samples []SampleConfig `json:"samples" yaml:"samples" validate:"required,min=1,dive"`

	// Telemetry overrides the default telemetry configuration.
	Telemetry *telemetry.Config `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
}

// SampleConfig names a sample and its evidence files.
type SampleConfig struct {
	Name     string         `json:"name" yaml:"name" validate:"required"`
	Evidence []EvidenceFile `json:"evidence" yaml:"evidence" validate:"required,min=1,dive"`
}

// LoadRunConfig reads and validates a run file (YAML, CUE or JSON).
func LoadRunConfig(path string) (*RunConfig, error) {
	return NewLoader().LoadRunConfig(path)
}

// LoadRunConfig reads and validates a run file (YAML, CUE or JSON).
func (l *Loader) LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run config %s: %w", path, err)
	}
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	var cfg RunConfig
	if err := l.decode(SchemaRun, data, path, format, &cfg); err != nil {
		return nil, err
	}
	if err := l.validateStruct(path, &cfg); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(cfg.Samples))
	for _, s := range cfg.Samples {
		if seen[s.Name] {
			return nil, ValidationErrors{{File: path, Path: "samples", Message: fmt.Sprintf("duplicate sample %q", s.Name)}}
		}
		seen[s.Name] = true
	}

	if cfg.Telemetry != nil {
		cfg.Telemetry.ApplyDefaults()
		if err := cfg.Telemetry.Validate(); err != nil {
			return nil, fmt.Errorf("%s: telemetry: %w", path, err)
		}
	}

	cfg.resolvePaths(filepath.Dir(path))
	return &cfg, nil
}

func (c *RunConfig) resolvePaths(base string) {
	c.Tree = resolvePath(base, c.Tree)
	if c.Store != "" && c.Store != ":memory:" {
		c.Store = resolvePath(base, c.Store)
	}
	for i := range c.Samples {
		for j := range c.Samples[i].Evidence {
			c.Samples[i].Evidence[j].Path = resolvePath(base, c.Samples[i].Evidence[j].Path)
		}
	}
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// LoadCaches reads the evidence of every sample, in configuration order.
func (c *RunConfig) LoadCaches() ([]*engine.AssignmentCache, error) {
	caches := make([]*engine.AssignmentCache, 0, len(c.Samples))
	for _, s := range c.Samples {
		cache, err := LoadEvidence(s.Name, s.Evidence...)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", s.Name, err)
		}
		caches = append(caches, cache)
	}
	return caches, nil
}

// TelemetryConfig returns the run's telemetry configuration, or the defaults.
func (c *RunConfig) TelemetryConfig() *telemetry.Config {
	if c.Telemetry != nil {
		return c.Telemetry
	}
	return telemetry.DefaultConfig()
}
