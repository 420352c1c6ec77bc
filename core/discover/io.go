package discover

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/courseops/mimeo/core/resolve"
	"github.com/courseops/mimeo/core/schema"
	"github.com/courseops/mimeo/domain/materials"
)

// MalformedFileError reports a definition file whose contents could not
// be resolved. Whatever rule was violated underneath, content problems
// surface only as this type; the reason carries the detail.
type MalformedFileError struct {
	Path   string
	Reason string

	cause error
}

func (e *MalformedFileError) Error() string {
	return fmt.Sprintf("the file %s is malformed: %s", e.Path, e.Reason)
}

// Unwrap exposes the violated rule, so callers can still test against
// the resolution sentinels.
func (e *MalformedFileError) Unwrap() error {
	return e.cause
}

func malformed(path string, err error) *MalformedFileError {
	return &MalformedFileError{Path: path, Reason: err.Error(), cause: err}
}

// ReadCollectionFile loads a collection file and returns the publication
// spec it declares. The metadata_schema inside the spec, when present,
// must itself be a well-formed schema fragment.
func ReadCollectionFile(path string, vars map[string]any) (*materials.PublicationSpec, error) {
	_, spec, err := ResolveCollectionFile(path, vars)
	return spec, err
}

// ResolveCollectionFile loads a collection file, returning the resolved
// document alongside the publication spec it declares.
func ResolveCollectionFile(path string, vars map[string]any) (map[string]any, *materials.PublicationSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read collection file: %w", err)
	}

	doc, err := LoadDocument(data)
	if err != nil {
		return nil, nil, malformed(path, err)
	}

	resolved, err := resolve.Resolve(doc, collectionSchema, resolve.Environment{Vars: vars})
	if err != nil {
		return nil, nil, malformed(path, err)
	}

	m := resolved.(map[string]any)
	specDoc := m["publication_spec"].(map[string]any)
	spec := &materials.PublicationSpec{
		RequiredArtifacts:         stringSlice(specDoc["required_artifacts"]),
		OptionalArtifacts:         stringSlice(specDoc["optional_artifacts"]),
		AllowUnspecifiedArtifacts: specDoc["allow_unspecified_artifacts"].(bool),
		IsOrdered:                 specDoc["is_ordered"].(bool),
	}

	if fragment, ok := specDoc["metadata_schema"].(map[string]any); ok {
		full := map[string]any{"type": "dict"}
		for key, value := range fragment {
			full[key] = value
		}
		node, err := schema.ParseFragment(full)
		if err != nil {
			return nil, nil, malformed(path, err)
		}
		spec.MetadataSchema = node
	}

	if err := spec.Validate(); err != nil {
		return nil, nil, malformed(path, err)
	}
	return m, spec, nil
}

// ReadPublicationFile loads a publication file and resolves it against
// the schema derived from spec. A nil spec substitutes the permissive
// one, which is how a lone file outside any collection is resolved. The
// resolved document is returned alongside the publication so ordered
// collections can hand it to the next sibling as ${previous.*}.
func ReadPublicationFile(path string, spec *materials.PublicationSpec, vars map[string]any, previous map[string]any) (*materials.Publication[materials.UnbuiltArtifact], map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read publication file: %w", err)
	}

	doc, err := resolvePublicationDocument(data, spec, vars, previous)
	if err != nil {
		return nil, nil, malformed(path, err)
	}

	pub, err := publicationFromDocument(doc, filepath.Dir(path))
	if err != nil {
		return nil, nil, malformed(path, err)
	}
	return pub, doc, nil
}

func resolvePublicationDocument(data []byte, spec *materials.PublicationSpec, vars map[string]any, previous map[string]any) (map[string]any, error) {
	if spec == nil {
		spec = materials.Permissive()
	}

	doc, err := LoadDocument(data)
	if err != nil {
		return nil, err
	}

	resolved, err := resolve.Resolve(doc, BuildPublicationSchema(spec), resolve.Environment{Vars: vars, Previous: previous})
	if err != nil {
		return nil, err
	}

	m := resolved.(map[string]any)

	// An artifact with no path names a file matching its own key.
	for key, value := range m["artifacts"].(map[string]any) {
		def := value.(map[string]any)
		if def["path"] == nil {
			def["path"] = key
		}
	}
	return m, nil
}

// publicationFromDocument shapes a resolved publication document into a
// Publication whose artifacts run their recipes in workdir.
func publicationFromDocument(doc map[string]any, workdir string) (*materials.Publication[materials.UnbuiltArtifact], error) {
	pub := materials.NewPublication[materials.UnbuiltArtifact]()
	pub.Ready = doc["ready"].(bool)
	pub.ReleaseTime = timeValue(doc["release_time"])

	switch md := doc["metadata"].(type) {
	case map[string]any:
		pub.Metadata = md
	case nil:
	default:
		return nil, fmt.Errorf("metadata must be a mapping")
	}

	artifacts := doc["artifacts"].(map[string]any)
	keys := make([]string, 0, len(artifacts))
	for key := range artifacts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		def := artifacts[key].(map[string]any)
		art := materials.UnbuiltArtifact{
			WorkDir:     workdir,
			Path:        def["path"].(string),
			Ready:       def["ready"].(bool),
			MissingOK:   def["missing_ok"].(bool),
			ReleaseTime: timeValue(def["release_time"]),
		}
		if recipe, ok := def["recipe"].(string); ok {
			art.Recipe = recipe
		}
		pub.Put(key, art)
	}
	return pub, nil
}

func timeValue(v any) *time.Time {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return &t
}

func stringSlice(v any) []string {
	l, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, len(l))
	for i, elem := range l {
		out[i], _ = elem.(string)
	}
	return out
}
