package discover

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/courseops/mimeo/core/schema"
)

func TestLoadDocumentScalars(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{name: "string", input: `value: hello`, want: "hello"},
		{name: "integer", input: `value: 42`, want: 42},
		{name: "negative integer", input: `value: -7`, want: -7},
		{name: "float", input: `value: 2.5`, want: 2.5},
		{name: "boolean", input: `value: true`, want: true},
		{name: "null", input: `value: null`, want: nil},
		{name: "empty value", input: `value:`, want: nil},
		{name: "plain date", input: `value: 2024-09-01`, want: schema.Date{Year: 2024, Month: time.September, Day: 1}},
		{
			name:  "plain datetime",
			input: `value: 2024-09-04 23:59:00`,
			want:  time.Date(2024, time.September, 4, 23, 59, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339 datetime",
			input: `value: 2024-09-04T23:59:00Z`,
			want:  time.Date(2024, time.September, 4, 23, 59, 0, 0, time.UTC),
		},
		{name: "quoted date stays a string", input: `value: "2024-09-01"`, want: "2024-09-01"},
		{name: "placeholder", input: `value: ${this.other}`, want: "${this.other}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := LoadDocument([]byte(tt.input))
			if err != nil {
				t.Fatalf("LoadDocument() error = %v", err)
			}
			m, ok := doc.(map[string]any)
			if !ok {
				t.Fatalf("LoadDocument() = %T, want a mapping", doc)
			}
			got := m["value"]
			if gt, ok := got.(time.Time); ok {
				wt, wok := tt.want.(time.Time)
				if !wok || !gt.Equal(wt) {
					t.Errorf("LoadDocument() value = %v, want %v", got, tt.want)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LoadDocument() value = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestLoadDocumentStructure(t *testing.T) {
	input := `
metadata:
  title: Homework 1
  points: [10, 20]
artifacts:
  homework.pdf:
    recipe: make
`
	doc, err := LoadDocument([]byte(input))
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}

	want := map[string]any{
		"metadata": map[string]any{
			"title":  "Homework 1",
			"points": []any{10, 20},
		},
		"artifacts": map[string]any{
			"homework.pdf": map[string]any{"recipe": "make"},
		},
	}
	if !reflect.DeepEqual(doc, want) {
		t.Errorf("LoadDocument() = %#v, want %#v", doc, want)
	}
}

func TestLoadDocumentAnchors(t *testing.T) {
	input := `
base: &due 2024-09-04 23:59:00
due: *due
`
	doc, err := LoadDocument([]byte(input))
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	m := doc.(map[string]any)
	base, due := m["base"].(time.Time), m["due"].(time.Time)
	if !base.Equal(due) {
		t.Errorf("alias = %v, want %v", due, base)
	}
}

func TestLoadDocumentEmpty(t *testing.T) {
	doc, err := LoadDocument(nil)
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if doc != nil {
		t.Errorf("LoadDocument() = %v, want nil", doc)
	}
}

func TestLoadDocumentRejectsNonStringKeys(t *testing.T) {
	if _, err := LoadDocument([]byte(`{1: one}`)); err == nil {
		t.Fatal("LoadDocument() expected error for integer key")
	}
}

func TestLoadDocumentRejectsBadYAML(t *testing.T) {
	if _, err := LoadDocument([]byte("a: [unclosed")); err == nil {
		t.Fatal("LoadDocument() expected error")
	}
}

func TestLoadVarsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vars.yaml")
	content := `
course:
  name: CS 101
  start: 2024-09-01
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	vars, err := LoadVarsFile(path)
	if err != nil {
		t.Fatalf("LoadVarsFile() error = %v", err)
	}
	course := vars["course"].(map[string]any)
	if course["name"] != "CS 101" {
		t.Errorf("course.name = %v, want %q", course["name"], "CS 101")
	}
	if _, ok := course["start"].(schema.Date); !ok {
		t.Errorf("course.start = %T, want schema.Date", course["start"])
	}
}

func TestLoadVarsFileRejectsNonMapping(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vars.yaml")
	if err := os.WriteFile(path, []byte("- a\n- b\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := LoadVarsFile(path); err == nil {
		t.Fatal("LoadVarsFile() expected error for a sequence")
	}
}
