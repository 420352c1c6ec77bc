package formatter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/courseops/mimeo/domain/materials"
	"github.com/courseops/mimeo/ports"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Description returns the formatter description.
func (f *JSONFormatter) Description() string {
	return "JSON output format"
}

// FormatReport formats a status report as JSON.
func (f *JSONFormatter) FormatReport(w io.Writer, report *materials.Report, opts Options) error {
	return f.encode(w, report, opts.Compact)
}

// FormatRuns formats run history as JSON.
func (f *JSONFormatter) FormatRuns(w io.Writer, runs []ports.Run, opts Options) error {
	output := map[string]any{
		"count": len(runs),
		"runs":  runs,
	}
	return f.encode(w, output, opts.Compact)
}

// FormatDocument formats a resolved definition file as JSON.
func (f *JSONFormatter) FormatDocument(w io.Writer, doc map[string]any, opts Options) error {
	return f.encode(w, doc, opts.Compact)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	return f.encode(w, output, false)
}

// encode writes JSON to the writer.
func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

func init() {
	if err := Register(NewJSONFormatter()); err != nil {
		fmt.Printf("failed to register json formatter: %v\n", err)
	}
}
