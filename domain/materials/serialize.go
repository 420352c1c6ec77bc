package materials

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/courseops/mimeo/core/schema"
)

// ManifestName is the manifest file written at the publish root.
const ManifestName = "materials.json"

// The manifest is plain JSON. Dates and datetimes inside free-form
// metadata are wrapped in a type-tagged envelope so decoding restores
// them exactly; everywhere else the type is known from position.
type manifestDoc struct {
	Collections map[string]manifestCollection `json:"collections"`
}

type manifestCollection struct {
	Spec         manifestSpec                   `json:"publication_spec"`
	Publications map[string]manifestPublication `json:"publications"`
}

type manifestSpec struct {
	RequiredArtifacts         []string `json:"required_artifacts"`
	OptionalArtifacts         []string `json:"optional_artifacts"`
	MetadataSchema            any      `json:"metadata_schema"`
	AllowUnspecifiedArtifacts bool     `json:"allow_unspecified_artifacts"`
	IsOrdered                 bool     `json:"is_ordered"`
}

type manifestPublication struct {
	Metadata    map[string]any              `json:"metadata"`
	Ready       bool                        `json:"ready"`
	ReleaseTime *time.Time                  `json:"release_time"`
	Artifacts   map[string]manifestArtifact `json:"artifacts"`
}

type manifestArtifact struct {
	Path        string     `json:"path"`
	ReleaseTime *time.Time `json:"release_time"`
}

// EncodeManifest writes the published universe as JSON. Map keys are
// emitted sorted, so output is deterministic; decoded containers iterate
// in sorted key order.
func EncodeManifest(w io.Writer, u *Universe[PublishedArtifact]) error {
	doc := manifestDoc{Collections: make(map[string]manifestCollection, u.Len())}

	for _, ck := range u.Keys() {
		col, _ := u.Get(ck)

		mc := manifestCollection{
			Spec: manifestSpec{
				RequiredArtifacts:         col.Spec.RequiredArtifacts,
				OptionalArtifacts:         col.Spec.OptionalArtifacts,
				AllowUnspecifiedArtifacts: col.Spec.AllowUnspecifiedArtifacts,
				IsOrdered:                 col.Spec.IsOrdered,
			},
			Publications: make(map[string]manifestPublication, col.Len()),
		}
		if col.Spec.MetadataSchema != nil {
			mc.Spec.MetadataSchema = tagValue(col.Spec.MetadataSchema.Fragment())
		}

		for _, pk := range col.Keys() {
			pub, _ := col.Get(pk)

			mp := manifestPublication{
				Metadata:    map[string]any{},
				Ready:       pub.Ready,
				ReleaseTime: pub.ReleaseTime,
				Artifacts:   make(map[string]manifestArtifact, pub.Len()),
			}
			for k, v := range pub.Metadata {
				mp.Metadata[k] = tagValue(v)
			}
			for _, ak := range pub.Keys() {
				a, _ := pub.Get(ak)
				mp.Artifacts[ak] = manifestArtifact{Path: a.Path, ReleaseTime: a.ReleaseTime}
			}

			mc.Publications[pk] = mp
		}

		doc.Collections[ck] = mc
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// DecodeManifest reads a manifest back into a published universe.
func DecodeManifest(r io.Reader) (*Universe[PublishedArtifact], error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc manifestDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	u := NewUniverse[PublishedArtifact]()

	for _, ck := range sortedKeys(doc.Collections) {
		mc := doc.Collections[ck]

		spec := &PublicationSpec{
			RequiredArtifacts:         mc.Spec.RequiredArtifacts,
			OptionalArtifacts:         mc.Spec.OptionalArtifacts,
			AllowUnspecifiedArtifacts: mc.Spec.AllowUnspecifiedArtifacts,
			IsOrdered:                 mc.Spec.IsOrdered,
		}
		if mc.Spec.MetadataSchema != nil {
			untagged, err := untagValue(mc.Spec.MetadataSchema)
			if err != nil {
				return nil, fmt.Errorf("decode manifest: collection %q: %w", ck, err)
			}
			fragment, ok := untagged.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("decode manifest: collection %q: metadata_schema is not a mapping", ck)
			}
			node, err := schema.ParseFragment(fragment)
			if err != nil {
				return nil, fmt.Errorf("decode manifest: collection %q: %w", ck, err)
			}
			spec.MetadataSchema = node
		}

		col := NewCollection[PublishedArtifact](spec)

		for _, pk := range sortedKeys(mc.Publications) {
			mp := mc.Publications[pk]

			pub := NewPublication[PublishedArtifact]()
			pub.Ready = mp.Ready
			pub.ReleaseTime = mp.ReleaseTime
			for k, v := range mp.Metadata {
				untagged, err := untagValue(v)
				if err != nil {
					return nil, fmt.Errorf("decode manifest: publication %q: %w", pk, err)
				}
				pub.Metadata[k] = untagged
			}
			for _, ak := range sortedKeys(mp.Artifacts) {
				ma := mp.Artifacts[ak]
				pub.Put(ak, PublishedArtifact{Path: ma.Path, ReleaseTime: ma.ReleaseTime})
			}

			col.Put(pk, pub)
		}

		u.Put(ck, col)
	}

	return u, nil
}

const (
	tagKey      = "__type__"
	tagValueKey = "value"
	tagDate     = "date"
	tagDatetime = "datetime"
)

func tagValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return map[string]any{tagKey: tagDatetime, tagValueKey: t.Format(time.RFC3339Nano)}
	case schema.Date:
		return map[string]any{tagKey: tagDate, tagValueKey: t.String()}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = tagValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = tagValue(e)
		}
		return out
	}
	return v
}

func untagValue(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("bad number %q", t.String())
		}
		return f, nil
	case map[string]any:
		if kind, tagged := t[tagKey]; tagged {
			raw, _ := t[tagValueKey].(string)
			switch kind {
			case tagDatetime:
				ts, err := time.Parse(time.RFC3339Nano, raw)
				if err != nil {
					return nil, fmt.Errorf("bad datetime %q", raw)
				}
				return ts, nil
			case tagDate:
				d, err := schema.ParseDate(raw)
				if err != nil {
					return nil, fmt.Errorf("bad date %q", raw)
				}
				return d, nil
			default:
				return nil, fmt.Errorf("unknown value tag %v", kind)
			}
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			u, err := untagValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = u
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			u, err := untagValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = u
		}
		return out, nil
	}
	return v, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
