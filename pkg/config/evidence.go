package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/genprop/genprop/pkg/engine"
)

// EvidenceFormat names a per-sample evidence file format.
type EvidenceFormat string

const (
	// EvidenceLongForm is a tab separated file of observed results:
	// property_id, step number or "-" for the property itself, and result.
	EvidenceLongForm EvidenceFormat = "longform"

	// EvidenceInterProScan is InterProScan TSV output. Signature and
	// InterPro accessions become matched identifiers.
	EvidenceInterProScan EvidenceFormat = "interproscan"
)

// InterProScan TSV column indexes (0-based).
const (
	ipsSignatureColumn = 4
	ipsInterProColumn  = 11
)

// EvidenceFile is one evidence input of a sample.
type EvidenceFile struct {
	Path   string         `json:"path" yaml:"path" validate:"required"`
	Format EvidenceFormat `json:"format" yaml:"format" validate:"required,oneof=longform interproscan"`
}

// LoadEvidence reads every file into a single cache for sample.
func LoadEvidence(sample string, files ...EvidenceFile) (*engine.AssignmentCache, error) {
	cache := engine.NewAssignmentCache(sample)
	for _, f := range files {
		if err := readEvidenceFile(f, cache); err != nil {
			return nil, err
		}
	}
	return cache, nil
}

func readEvidenceFile(f EvidenceFile, cache *engine.AssignmentCache) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("failed to open evidence %s: %w", f.Path, err)
	}
	defer file.Close()

	switch f.Format {
	case EvidenceLongForm:
		err = ReadLongForm(file, cache)
	case EvidenceInterProScan:
		err = ReadInterProScan(file, cache)
	default:
		return fmt.Errorf("unsupported evidence format %q for %s", f.Format, f.Path)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", f.Path, err)
	}
	return nil
}

// ParseLongForm reads a long form results file into a new cache for sample.
func ParseLongForm(r io.Reader, sample string) (*engine.AssignmentCache, error) {
	cache := engine.NewAssignmentCache(sample)
	if err := ReadLongForm(r, cache); err != nil {
		return nil, err
	}
	return cache, nil
}

// ReadLongForm adds the results of a long form file to cache. Lines starting
// with '#' and blank lines are skipped.
func ReadLongForm(r io.Reader, cache *engine.AssignmentCache) error {
	reader := newTSVReader(r)
	reader.FieldsPerRecord = 3

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read long form results: %w", err)
		}
		line, _ := reader.FieldPos(0)

		id := strings.TrimSpace(record[0])
		if id == "" {
			return fmt.Errorf("line %d: empty property id", line)
		}

		result, err := engine.ParseResult(record[2])
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		step := strings.TrimSpace(record[1])
		if step == "-" || step == "" {
			cache.CacheProperty(id, result)
			continue
		}

		number, err := strconv.Atoi(step)
		if err != nil || number < 1 {
			return fmt.Errorf("line %d: invalid step number %q", line, step)
		}
		cache.CacheStep(id, number, result)
	}
}

// ParseInterProScan reads InterProScan TSV output into a new cache for sample.
func ParseInterProScan(r io.Reader, sample string) (*engine.AssignmentCache, error) {
	cache := engine.NewAssignmentCache(sample)
	if err := ReadInterProScan(r, cache); err != nil {
		return nil, err
	}
	return cache, nil
}

// ReadInterProScan adds the signature and InterPro accessions of each match
// to cache. Missing InterPro columns and "-" placeholders are ignored.
func ReadInterProScan(r io.Reader, cache *engine.AssignmentCache) error {
	reader := newTSVReader(r)
	reader.FieldsPerRecord = -1

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read InterProScan results: %w", err)
		}
		if len(record) <= ipsSignatureColumn {
			line, _ := reader.FieldPos(0)
			return fmt.Errorf("line %d: expected at least %d columns, got %d",
				line, ipsSignatureColumn+1, len(record))
		}

		cache.AddMatches(accession(record, ipsSignatureColumn), accession(record, ipsInterProColumn))
	}
}

func accession(record []string, col int) string {
	if col >= len(record) {
		return ""
	}
	v := strings.TrimSpace(record[col])
	if v == "-" {
		return ""
	}
	return v
}

func newTSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.Comment = '#'
	reader.LazyQuotes = true
	return reader
}
