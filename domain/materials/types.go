// Package materials models course material trees: universes of
// collections, collections of publications, and publications of keyed
// artifacts. The artifact type parameter tracks pipeline progress, from
// UnbuiltArtifact at discovery through BuiltArtifact to
// PublishedArtifact in the publish root.
package materials

import (
	"fmt"
	"time"

	"github.com/courseops/mimeo/core/schema"
)

// UnbuiltArtifact describes an artifact as discovered, before any recipe
// has run.
type UnbuiltArtifact struct {
	// WorkDir is the directory recipes run in, the directory of the
	// publication file that declared the artifact.
	WorkDir string

	// Path is the artifact file relative to WorkDir.
	Path string

	// Recipe is a shell command that produces the file. Empty means the
	// file is expected to already exist.
	Recipe string

	// Ready gates the artifact; unready artifacts are withheld until
	// flipped on.
	Ready bool

	// MissingOK tolerates the file being absent at build time.
	MissingOK bool

	// ReleaseTime withholds the artifact until the given instant. Nil
	// means releasable immediately.
	ReleaseTime *time.Time
}

// BuiltArtifact is an artifact whose recipe has run and whose file
// exists under WorkDir.
type BuiltArtifact struct {
	WorkDir     string
	Path        string
	Ready       bool
	ReleaseTime *time.Time
}

// PublishedArtifact is an artifact copied into the publish root.
type PublishedArtifact struct {
	// Path is relative to the publish root.
	Path string

	ReleaseTime *time.Time
}

// PublicationSpec constrains the publications of one collection.
type PublicationSpec struct {
	// RequiredArtifacts must appear in every publication.
	RequiredArtifacts []string

	// OptionalArtifacts may appear without being required.
	OptionalArtifacts []string

	// MetadataSchema types publication metadata. Nil accepts metadata of
	// any shape.
	MetadataSchema *schema.Node

	// AllowUnspecifiedArtifacts permits artifact keys beyond the
	// required and optional lists.
	AllowUnspecifiedArtifacts bool

	// IsOrdered makes sibling order meaningful: each publication sees
	// its predecessor's resolved document as ${previous.*}.
	IsOrdered bool
}

// Permissive returns the spec substituted when a collection declares
// none: nothing required, everything allowed.
func Permissive() *PublicationSpec {
	return &PublicationSpec{AllowUnspecifiedArtifacts: true}
}

// Validate checks the spec for contradictions.
func (s *PublicationSpec) Validate() error {
	seen := make(map[string]string, len(s.RequiredArtifacts)+len(s.OptionalArtifacts))
	for _, key := range s.RequiredArtifacts {
		if where, dup := seen[key]; dup {
			return fmt.Errorf("artifact %q listed as %s and required", key, where)
		}
		seen[key] = "required"
	}
	for _, key := range s.OptionalArtifacts {
		if where, dup := seen[key]; dup {
			return fmt.Errorf("artifact %q listed as %s and optional", key, where)
		}
		seen[key] = "optional"
	}
	if s.MetadataSchema != nil {
		return s.MetadataSchema.Validate()
	}
	return nil
}

// Publication is a keyed set of artifacts plus the metadata that
// travels with them. Keys iterate in insertion order.
type Publication[A any] struct {
	Metadata    map[string]any
	Ready       bool
	ReleaseTime *time.Time

	artifacts map[string]A
	order     []string
}

// NewPublication returns an empty, ready publication.
func NewPublication[A any]() *Publication[A] {
	return &Publication[A]{
		Metadata:  map[string]any{},
		Ready:     true,
		artifacts: map[string]A{},
	}
}

// Put adds or replaces the artifact stored under key.
func (p *Publication[A]) Put(key string, a A) {
	if _, exists := p.artifacts[key]; !exists {
		p.order = append(p.order, key)
	}
	p.artifacts[key] = a
}

// Get returns the artifact stored under key.
func (p *Publication[A]) Get(key string) (A, bool) {
	a, ok := p.artifacts[key]
	return a, ok
}

// Keys returns the artifact keys in insertion order.
func (p *Publication[A]) Keys() []string {
	keys := make([]string, len(p.order))
	copy(keys, p.order)
	return keys
}

// Len returns the number of artifacts.
func (p *Publication[A]) Len() int {
	return len(p.artifacts)
}

// Collection is a keyed set of publications governed by one spec.
type Collection[A any] struct {
	Spec *PublicationSpec

	publications map[string]*Publication[A]
	order        []string
}

// NewCollection returns an empty collection governed by spec.
func NewCollection[A any](spec *PublicationSpec) *Collection[A] {
	return &Collection[A]{
		Spec:         spec,
		publications: map[string]*Publication[A]{},
	}
}

// Put adds or replaces the publication stored under key.
func (c *Collection[A]) Put(key string, p *Publication[A]) {
	if _, exists := c.publications[key]; !exists {
		c.order = append(c.order, key)
	}
	c.publications[key] = p
}

// Get returns the publication stored under key.
func (c *Collection[A]) Get(key string) (*Publication[A], bool) {
	p, ok := c.publications[key]
	return p, ok
}

// Keys returns the publication keys in insertion order.
func (c *Collection[A]) Keys() []string {
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys
}

// Len returns the number of publications.
func (c *Collection[A]) Len() int {
	return len(c.publications)
}

// Universe is the root container: every collection discovered under one
// input directory.
type Universe[A any] struct {
	collections map[string]*Collection[A]
	order       []string
}

// NewUniverse returns an empty universe.
func NewUniverse[A any]() *Universe[A] {
	return &Universe[A]{collections: map[string]*Collection[A]{}}
}

// Put adds or replaces the collection stored under key.
func (u *Universe[A]) Put(key string, c *Collection[A]) {
	if _, exists := u.collections[key]; !exists {
		u.order = append(u.order, key)
	}
	u.collections[key] = c
}

// Get returns the collection stored under key.
func (u *Universe[A]) Get(key string) (*Collection[A], bool) {
	c, ok := u.collections[key]
	return c, ok
}

// Keys returns the collection keys in insertion order.
func (u *Universe[A]) Keys() []string {
	keys := make([]string, len(u.order))
	copy(keys, u.order)
	return keys
}

// Len returns the number of collections.
func (u *Universe[A]) Len() int {
	return len(u.collections)
}
