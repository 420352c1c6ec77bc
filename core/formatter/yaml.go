package formatter

import (
	"fmt"
	"io"

	"github.com/courseops/mimeo/domain/materials"
	"github.com/courseops/mimeo/ports"
	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats output as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Name returns the formatter name.
func (f *YAMLFormatter) Name() string {
	return "yaml"
}

// Description returns the formatter description.
func (f *YAMLFormatter) Description() string {
	return "YAML output format"
}

// FormatReport formats a status report as YAML.
func (f *YAMLFormatter) FormatReport(w io.Writer, report *materials.Report, opts Options) error {
	return f.encode(w, report)
}

// FormatRuns formats run history as YAML.
func (f *YAMLFormatter) FormatRuns(w io.Writer, runs []ports.Run, opts Options) error {
	output := map[string]any{
		"count": len(runs),
		"runs":  runs,
	}
	return f.encode(w, output)
}

// FormatDocument formats a resolved definition file as YAML.
func (f *YAMLFormatter) FormatDocument(w io.Writer, doc map[string]any, opts Options) error {
	return f.encode(w, doc)
}

// FormatError formats an error as YAML.
func (f *YAMLFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	return f.encode(w, output)
}

// encode writes YAML to the writer.
func (f *YAMLFormatter) encode(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(data)
}

func init() {
	if err := Register(NewYAMLFormatter()); err != nil {
		fmt.Printf("failed to register yaml formatter: %v\n", err)
	}
}
