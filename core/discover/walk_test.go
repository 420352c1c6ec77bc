package discover

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/courseops/mimeo/core/schema"
)

// fixtureTree writes a small course tree: one ordered collection with
// two publications, one default-collection publication at the root, and
// a directory worth skipping.
func fixtureTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, root, "homeworks/collection.yaml", `
publication_spec:
  required_artifacts: [homework.pdf]
  is_ordered: true
  metadata_schema:
    required_keys:
      due:
        type: date
`)
	writeFile(t, root, "homeworks/01/publication.yaml", `
metadata:
  due: 2024-09-08
artifacts:
  homework.pdf:
    recipe: make
`)
	writeFile(t, root, "homeworks/02/publication.yaml", `
metadata:
  due: 7 days after ${previous.metadata.due}
artifacts:
  homework.pdf:
    recipe: make
`)
	writeFile(t, root, "syllabus/publication.yaml", `
artifacts:
  syllabus.pdf: {}
`)
	writeFile(t, root, "drafts/publication.yaml", `
this is not even yaml: [
`)
	return root
}

func TestDiscover(t *testing.T) {
	root := fixtureTree(t)

	universe, err := Discover(root, Options{SkipDirectories: []string{"drafts"}})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	wantCollections := []string{"homeworks", "default"}
	if got := universe.Keys(); !reflect.DeepEqual(got, wantCollections) {
		t.Fatalf("collections = %v, want %v", got, wantCollections)
	}

	homeworks, _ := universe.Get("homeworks")
	if got := homeworks.Keys(); !reflect.DeepEqual(got, []string{"01", "02"}) {
		t.Fatalf("homeworks publications = %v", got)
	}

	second, _ := homeworks.Get("02")
	want := schema.Date{Year: 2024, Month: 9, Day: 15}
	if got, ok := second.Metadata["due"].(schema.Date); !ok || got != want {
		t.Errorf("02 due = %v, want %v (via previous)", second.Metadata["due"], want)
	}

	deflt, _ := universe.Get("default")
	if got := deflt.Keys(); !reflect.DeepEqual(got, []string{"syllabus"}) {
		t.Fatalf("default publications = %v", got)
	}
	pub, _ := deflt.Get("syllabus")
	art, ok := pub.Get("syllabus.pdf")
	if !ok {
		t.Fatal("syllabus.pdf missing")
	}
	if art.WorkDir != filepath.Join(root, "syllabus") {
		t.Errorf("WorkDir = %q", art.WorkDir)
	}
}

func TestDiscoverWithoutSkipHitsMalformedFile(t *testing.T) {
	root := fixtureTree(t)

	_, err := Discover(root, Options{})
	var mfe *MalformedFileError
	if !errors.As(err, &mfe) {
		t.Fatalf("Discover() error = %v, want MalformedFileError from drafts", err)
	}
	if filepath.Dir(mfe.Path) != filepath.Join(root, "drafts") {
		t.Errorf("error path = %q, want the drafts publication", mfe.Path)
	}
}

func TestDiscoverNestedCollection(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "outer/collection.yaml", `
publication_spec:
  required_artifacts: []
`)
	writeFile(t, root, "outer/inner/collection.yaml", `
publication_spec:
  required_artifacts: []
`)

	_, err := Discover(root, Options{})
	var de *DiscoveryError
	if !errors.As(err, &de) {
		t.Fatalf("Discover() error = %v, want DiscoveryError", err)
	}
	if de.Dir != filepath.Join(root, "outer", "inner") {
		t.Errorf("error dir = %q", de.Dir)
	}
}

func TestDiscoverEmptyTree(t *testing.T) {
	universe, err := Discover(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if got := universe.Keys(); !reflect.DeepEqual(got, []string{"default"}) {
		t.Errorf("collections = %v, want just the default", got)
	}
	deflt, _ := universe.Get("default")
	if deflt.Len() != 0 {
		t.Errorf("default collection has %d publications, want 0", deflt.Len())
	}
}

func TestDiscoverVarsReachPublications(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes/publication.yaml", `
metadata:
  course: ${vars.course.name}
artifacts:
  notes.pdf: {}
`)

	universe, err := Discover(root, Options{
		Vars: map[string]any{"course": map[string]any{"name": "CS 101"}},
	})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	deflt, _ := universe.Get("default")
	pub, _ := deflt.Get("notes")
	if pub.Metadata["course"] != "CS 101" {
		t.Errorf("course = %v, want CS 101", pub.Metadata["course"])
	}
}

func TestDiscoverPublicationInCollectionRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "unit/collection.yaml", `
publication_spec:
  required_artifacts: []
  allow_unspecified_artifacts: true
`)
	writeFile(t, root, "unit/publication.yaml", `
artifacts:
  overview.pdf: {}
`)

	universe, err := Discover(root, Options{})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	unit, _ := universe.Get("unit")
	if got := unit.Keys(); !reflect.DeepEqual(got, []string{"."}) {
		t.Errorf("publication keys = %v, want [.]", got)
	}
}
