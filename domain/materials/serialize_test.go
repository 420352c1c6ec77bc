package materials

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/courseops/mimeo/core/schema"
)

func publishedFixture() *Universe[PublishedArtifact] {
	due := time.Date(2024, time.September, 4, 23, 59, 0, 0, time.UTC)

	// Insertion order matches sorted order because decoded manifests
	// iterate sorted.
	u := NewUniverse[PublishedArtifact]()

	free := NewCollection[PublishedArtifact](Permissive())
	syllabus := NewPublication[PublishedArtifact]()
	syllabus.Put("syllabus", PublishedArtifact{Path: "default/syllabus/syllabus.pdf"})
	free.Put("syllabus", syllabus)
	u.Put("default", free)

	spec := &PublicationSpec{
		RequiredArtifacts: []string{"homework"},
		OptionalArtifacts: []string{"solutions"},
		MetadataSchema: &schema.Node{
			Kind: schema.KindDict,
			Required: map[string]*schema.Node{
				"due": {Kind: schema.KindDatetime},
			},
			Optional: map[string]*schema.Node{
				"points": {Kind: schema.KindInteger, Default: 100},
			},
		},
		IsOrdered: true,
	}

	col := NewCollection[PublishedArtifact](spec)
	pub := NewPublication[PublishedArtifact]()
	pub.Metadata = map[string]any{
		"due":    due,
		"handed": schema.Date{Year: 2024, Month: time.August, Day: 28},
		"points": 100,
		"title":  "Intro",
		"extras": []any{"hints", 2},
	}
	pub.Put("homework", PublishedArtifact{Path: "homeworks/01-intro/homework.pdf"})
	pub.Put("solutions", PublishedArtifact{Path: "homeworks/01-intro/solutions.pdf", ReleaseTime: &due})
	col.Put("01-intro", pub)
	u.Put("homeworks", col)

	return u
}

func TestManifestRoundTrip(t *testing.T) {
	u := publishedFixture()

	var buf bytes.Buffer
	if err := EncodeManifest(&buf, u); err != nil {
		t.Fatalf("EncodeManifest() error = %v", err)
	}

	got, err := DecodeManifest(&buf)
	if err != nil {
		t.Fatalf("DecodeManifest() error = %v", err)
	}

	if !reflect.DeepEqual(got, u) {
		t.Errorf("round trip mismatch\n got: %+v\nwant: %+v", got, u)
	}
}

func TestManifestTemporalTags(t *testing.T) {
	u := publishedFixture()

	var buf bytes.Buffer
	if err := EncodeManifest(&buf, u); err != nil {
		t.Fatalf("EncodeManifest() error = %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, `"__type__": "datetime"`) {
		t.Error("manifest missing datetime tag")
	}
	if !strings.Contains(out, `"__type__": "date"`) {
		t.Error("manifest missing date tag")
	}
	if !strings.Contains(out, `"2024-08-28"`) {
		t.Error("manifest missing date value")
	}
}

func TestManifestDeterministic(t *testing.T) {
	u := publishedFixture()

	var a, b bytes.Buffer
	if err := EncodeManifest(&a, u); err != nil {
		t.Fatalf("EncodeManifest() error = %v", err)
	}
	if err := EncodeManifest(&b, u); err != nil {
		t.Fatalf("EncodeManifest() error = %v", err)
	}
	if a.String() != b.String() {
		t.Error("two encodings of the same universe differ")
	}
}

func TestDecodeManifestRejectsGarbage(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: "collections:"},
		{
			name:  "bad value tag",
			input: `{"collections":{"c":{"publication_spec":{"required_artifacts":[],"optional_artifacts":[],"metadata_schema":null,"allow_unspecified_artifacts":true,"is_ordered":false},"publications":{"p":{"metadata":{"x":{"__type__":"interval","value":"1h"}},"ready":true,"release_time":null,"artifacts":{}}}}}}`,
		},
		{
			name:  "bad tagged datetime",
			input: `{"collections":{"c":{"publication_spec":{"required_artifacts":[],"optional_artifacts":[],"metadata_schema":null,"allow_unspecified_artifacts":true,"is_ordered":false},"publications":{"p":{"metadata":{"x":{"__type__":"datetime","value":"tomorrow"}},"ready":true,"release_time":null,"artifacts":{}}}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeManifest(strings.NewReader(tt.input)); err == nil {
				t.Fatal("DecodeManifest() expected error, got nil")
			}
		})
	}
}
