package discover

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/courseops/mimeo/core/schema"
	"github.com/courseops/mimeo/domain/materials"
	"github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
)

// DefaultCacheSize bounds the cache when NewCache is given no size.
const DefaultCacheSize = 512

// Cache memoizes resolved publication documents across discovery walks,
// for watch mode where most files are unchanged between rebuilds. An
// entry is keyed by the file's path, size, and mtime together with
// fingerprints of everything else resolution depends on: the governing
// spec, the external variables, and the previous sibling's document.
// Safe for concurrent use; cached documents are never shared with
// callers.
type Cache struct {
	entries *lru.Cache[string, map[string]any]
}

// NewCache returns a cache holding up to size documents.
// A size of zero or less means DefaultCacheSize.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, map[string]any](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) readPublication(path string, spec *materials.PublicationSpec, vars map[string]any, previous map[string]any) (*materials.Publication[materials.UnbuiltArtifact], map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat publication file: %w", err)
	}
	key := cacheKey(path, info, spec, vars, previous)

	if doc, ok := c.entries.Get(key); ok {
		doc = cloneDocument(doc)
		pub, err := publicationFromDocument(doc, filepath.Dir(path))
		if err != nil {
			return nil, nil, malformed(path, err)
		}
		return pub, doc, nil
	}

	pub, doc, err := ReadPublicationFile(path, spec, vars, previous)
	if err != nil {
		return nil, nil, err
	}
	c.entries.Add(key, cloneDocument(doc))
	return pub, doc, nil
}

func cacheKey(path string, info os.FileInfo, spec *materials.PublicationSpec, vars map[string]any, previous map[string]any) string {
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "%s|%d|%d|", path, info.Size(), info.ModTime().UnixNano())
	hashValue(h, specValue(spec))
	hashValue(h, vars)
	hashValue(h, previous)
	return hex.EncodeToString(h.Sum(nil))
}

// specValue renders a spec as plain values so it hashes the same way
// documents do.
func specValue(spec *materials.PublicationSpec) map[string]any {
	if spec == nil {
		spec = materials.Permissive()
	}
	v := map[string]any{
		"required_artifacts":          anySlice(spec.RequiredArtifacts),
		"optional_artifacts":          anySlice(spec.OptionalArtifacts),
		"allow_unspecified_artifacts": spec.AllowUnspecifiedArtifacts,
		"is_ordered":                  spec.IsOrdered,
	}
	if spec.MetadataSchema != nil {
		v["metadata_schema"] = spec.MetadataSchema.Fragment()
	}
	return v
}

// hashValue writes a canonical, type-tagged encoding of v: maps in
// sorted key order, so equal documents hash equally.
func hashValue(w io.Writer, v any) {
	switch t := v.(type) {
	case nil:
		io.WriteString(w, "z;")
	case bool:
		fmt.Fprintf(w, "b%t;", t)
	case int:
		fmt.Fprintf(w, "i%d;", t)
	case int64:
		fmt.Fprintf(w, "i%d;", t)
	case float64:
		fmt.Fprintf(w, "f%g;", t)
	case string:
		fmt.Fprintf(w, "s%d:%s;", len(t), t)
	case time.Time:
		io.WriteString(w, "t"+t.UTC().Format(time.RFC3339Nano)+";")
	case schema.Date:
		io.WriteString(w, "d"+t.String()+";")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for key := range t {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		fmt.Fprintf(w, "m%d:", len(t))
		for _, key := range keys {
			hashValue(w, key)
			hashValue(w, t[key])
		}
	case []any:
		fmt.Fprintf(w, "l%d:", len(t))
		for _, elem := range t {
			hashValue(w, elem)
		}
	default:
		fmt.Fprintf(w, "?%v;", t)
	}
}

func cloneDocument(doc map[string]any) map[string]any {
	return cloneValue(doc).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, value := range t {
			out[key] = cloneValue(value)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, value := range t {
			out[i] = cloneValue(value)
		}
		return out
	}
	return v
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
