package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/genprop/genprop/pkg/engine"
	"github.com/genprop/genprop/pkg/results"
)

// View selects which rows of the result tables are shown.
type View string

const (
	ViewAll       View = "all"
	ViewDiffering View = "differing"
	ViewSupported View = "supported"
)

// ParseView parses a --view flag value.
func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewAll, ViewDiffering, ViewSupported:
		return View(s), nil
	default:
		return "", fmt.Errorf("invalid view %q: must be one of all, differing, supported", s)
	}
}

// propertyTable returns the property table for view.
func propertyTable(res *results.Results, view View) *results.Table[string] {
	switch view {
	case ViewDiffering:
		return res.DifferingPropertyResults()
	case ViewSupported:
		return res.SupportedPropertyResults()
	default:
		return res.Properties()
	}
}

// stepTable returns the step table for view.
func stepTable(res *results.Results, view View) *results.Table[results.StepKey] {
	switch view {
	case ViewDiffering:
		return res.DifferingStepResults()
	case ViewSupported:
		return res.SupportedStepResults()
	default:
		return res.Steps()
	}
}

// renderResults writes the property table, and the step table when steps is
// set, as terminal tables.
func renderResults(w io.Writer, res *results.Results, view View, steps bool) error {
	properties := propertyTable(res, view)
	if err := renderTable(w, "property", properties, func(id string) []string {
		name := ""
		if p, ok := res.Tree().Property(id); ok {
			name = p.Name
		}
		return []string{id, name}
	}, "name"); err != nil {
		return err
	}

	if !steps {
		return nil
	}

	fmt.Fprintln(w)
	return renderTable(w, "property", stepTable(res, view), func(key results.StepKey) []string {
		return []string{key.PropertyID, strconv.Itoa(key.Number)}
	}, "step")
}

// renderTable renders t with the columns produced by label followed by one
// column per sample.
func renderTable[K comparable](w io.Writer, first string, t *results.Table[K], label func(K) []string, second string) error {
	if t.Len() == 0 {
		_, err := fmt.Fprintln(w, "no matching rows")
		return err
	}

	header := append([]string{first, second}, t.Samples()...)
	data := pterm.TableData{header}
	for _, key := range t.Keys() {
		row := label(key)
		for _, r := range t.Lookup(key) {
			row = append(row, colorResult(r))
		}
		data = append(data, row)
	}

	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func colorResult(r engine.Result) string {
	switch r {
	case engine.Yes:
		return pterm.FgGreen.Sprint(r.String())
	case engine.Partial:
		return pterm.FgYellow.Sprint(r.String())
	default:
		return pterm.FgRed.Sprint(r.String())
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
