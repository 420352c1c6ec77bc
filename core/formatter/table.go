package formatter

import (
	"fmt"
	"io"
	"time"

	"github.com/courseops/mimeo/domain/materials"
	"github.com/courseops/mimeo/ports"
	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Aligned text table output"
}

// FormatReport renders a tally line followed by one row per artifact.
// A publication with no artifacts still gets a row of its own.
func (f *TableFormatter) FormatReport(w io.Writer, report *materials.Report, opts Options) error {
	fmt.Fprintf(w, "As of %s: %d released, %d pending, %d overdue, %d unready (%d artifacts)\n",
		report.Now.Format(time.RFC3339),
		report.Tally.Released, report.Tally.Pending, report.Tally.Overdue, report.Tally.Unready,
		report.Tally.Total())

	var rows []table.Row
	for _, col := range report.Collections {
		for _, pub := range col.Publications {
			if len(pub.Artifacts) == 0 {
				rows = append(rows, table.Row{col.Key, pub.Key, "-", pub.State, formatTime(pub.ReleaseTime)})
				continue
			}
			for _, art := range pub.Artifacts {
				rows = append(rows, table.Row{col.Key, pub.Key, art.Key, art.State, formatTime(art.ReleaseTime)})
			}
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "No publications discovered.")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if !opts.NoHeader {
		tw.AppendHeader(table.Row{"Collection", "Publication", "Artifact", "State", "Release"})
	}
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

// FormatRuns renders run history as a table.
func (f *TableFormatter) FormatRuns(w io.Writer, runs []ports.Run, opts Options) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if !opts.NoHeader {
		tw.AppendHeader(table.Row{"Run", "Started", "Elapsed", "Outcome", "Artifacts", "Error"})
	}
	for _, run := range runs {
		tw.AppendRow(table.Row{
			run.ID,
			run.StartedAt.Format(time.RFC3339),
			formatElapsed(run),
			runOutcome(run),
			run.Artifacts,
			run.Error,
		})
	}
	tw.Render()
	return nil
}

// FormatDocument renders the resolved document as YAML. Resolved files
// are nested mappings and do not tabulate.
func (f *TableFormatter) FormatDocument(w io.Writer, doc map[string]any, opts Options) error {
	return NewYAMLFormatter().FormatDocument(w, doc, opts)
}

// FormatError formats an error message.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	fmt.Fprintf(w, "Error: %s\n", err.Error())
	return nil
}

func runOutcome(run ports.Run) string {
	switch {
	case run.FinishedAt.IsZero():
		return "running"
	case run.Succeeded:
		return "ok"
	default:
		return "failed"
	}
}

func formatElapsed(run ports.Run) string {
	if run.FinishedAt.IsZero() {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func init() {
	Register(NewTableFormatter())
}
