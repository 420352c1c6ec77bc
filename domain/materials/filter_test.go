package materials

import (
	"reflect"
	"strings"
	"testing"
)

func testUniverse() *Universe[UnbuiltArtifact] {
	u := NewUniverse[UnbuiltArtifact]()

	homeworks := NewCollection[UnbuiltArtifact](Permissive())
	hw1 := NewPublication[UnbuiltArtifact]()
	hw1.Put("homework", UnbuiltArtifact{Path: "homework.pdf", Ready: true})
	hw1.Put("solutions", UnbuiltArtifact{Path: "solutions.pdf", Ready: true})
	homeworks.Put("01-intro", hw1)
	hw2 := NewPublication[UnbuiltArtifact]()
	hw2.Put("homework", UnbuiltArtifact{Path: "homework.pdf", Ready: true})
	homeworks.Put("02-sorting", hw2)
	u.Put("homeworks", homeworks)

	defaultCol := NewCollection[UnbuiltArtifact](Permissive())
	syllabus := NewPublication[UnbuiltArtifact]()
	syllabus.Put("syllabus", UnbuiltArtifact{Path: "syllabus.pdf", Ready: true})
	defaultCol.Put("syllabus", syllabus)
	u.Put("default", defaultCol)

	return u
}

func TestFilterArtifacts(t *testing.T) {
	u := testUniverse()

	got := FilterArtifacts(u, func(_, _, artifact string, _ UnbuiltArtifact) bool {
		return strings.HasPrefix(artifact, "home")
	})

	hw, _ := got.Get("homeworks")
	pub, _ := hw.Get("01-intro")
	if !reflect.DeepEqual(pub.Keys(), []string{"homework"}) {
		t.Errorf("01-intro keys = %v, want [homework]", pub.Keys())
	}

	// Drained publications remain until RemoveEmpty.
	def, _ := got.Get("default")
	syllabus, ok := def.Get("syllabus")
	if !ok || syllabus.Len() != 0 {
		t.Errorf("syllabus after filter = %v artifacts, want 0", syllabus.Len())
	}

	// The input is untouched.
	origDef, _ := u.Get("default")
	origSyllabus, _ := origDef.Get("syllabus")
	if origSyllabus.Len() != 1 {
		t.Errorf("input mutated: syllabus has %d artifacts", origSyllabus.Len())
	}
}

func TestRemoveEmpty(t *testing.T) {
	u := testUniverse()
	filtered := FilterArtifacts(u, func(_, _, artifact string, _ UnbuiltArtifact) bool {
		return artifact == "solutions"
	})

	got := RemoveEmpty(filtered)

	if !reflect.DeepEqual(got.Keys(), []string{"homeworks"}) {
		t.Fatalf("Keys() = %v, want [homeworks]", got.Keys())
	}
	hw, _ := got.Get("homeworks")
	if !reflect.DeepEqual(hw.Keys(), []string{"01-intro"}) {
		t.Errorf("homeworks keys = %v, want [01-intro]", hw.Keys())
	}
}

func TestFilterKeepsPublicationFields(t *testing.T) {
	u := testUniverse()
	col, _ := u.Get("homeworks")
	pub, _ := col.Get("01-intro")
	pub.Metadata["title"] = "Introduction"
	pub.Ready = false

	got := FilterArtifacts(u, func(_, _, _ string, _ UnbuiltArtifact) bool { return true })

	outCol, _ := got.Get("homeworks")
	outPub, _ := outCol.Get("01-intro")
	if outPub.Metadata["title"] != "Introduction" {
		t.Errorf("metadata lost: %v", outPub.Metadata)
	}
	if outPub.Ready {
		t.Error("Ready flag lost")
	}
}
