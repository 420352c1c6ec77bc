package discover

import (
	"github.com/courseops/mimeo/core/schema"
	"github.com/courseops/mimeo/domain/materials"
)

// artifactSchema admits one artifact definition. Every key is optional:
// a bare `artifact: {}` names a ready file matching the artifact key.
var artifactSchema = &schema.Node{
	Kind: schema.KindDict,
	Optional: map[string]*schema.Node{
		"path":         {Kind: schema.KindString, Nullable: true},
		"recipe":       {Kind: schema.KindString, Nullable: true},
		"ready":        {Kind: schema.KindBoolean, Default: true},
		"missing_ok":   {Kind: schema.KindBoolean, Default: false},
		"release_time": {Kind: schema.KindDatetime, Nullable: true},
	},
}

// publicationSpecSchema admits the publication_spec mapping of a
// collection file. metadata_schema is taken as-is here and checked as a
// schema fragment afterwards, since its keys are the user's to choose.
var publicationSpecSchema = &schema.Node{
	Kind: schema.KindDict,
	Required: map[string]*schema.Node{
		"required_artifacts": {
			Kind:    schema.KindList,
			Element: &schema.Node{Kind: schema.KindString},
		},
	},
	Optional: map[string]*schema.Node{
		"optional_artifacts": {
			Kind:    schema.KindList,
			Element: &schema.Node{Kind: schema.KindString},
			Default: []any{},
		},
		"metadata_schema": {
			Kind:     schema.KindDict,
			Nullable: true,
			Extra:    &schema.Node{Kind: schema.KindAny},
		},
		"allow_unspecified_artifacts": {Kind: schema.KindBoolean, Default: false},
		"is_ordered":                  {Kind: schema.KindBoolean, Default: false},
	},
}

var collectionSchema = &schema.Node{
	Kind: schema.KindDict,
	Required: map[string]*schema.Node{
		"publication_spec": publicationSpecSchema,
	},
}

// BuildArtifactsSchema constructs the schema for the artifacts mapping
// of a publication file: spec-required artifacts become required keys,
// spec-optional ones optional keys, and undeclared keys are admitted
// only when the spec allows unspecified artifacts.
func BuildArtifactsSchema(spec *materials.PublicationSpec) *schema.Node {
	node := &schema.Node{
		Kind:     schema.KindDict,
		Required: make(map[string]*schema.Node, len(spec.RequiredArtifacts)),
		Optional: make(map[string]*schema.Node, len(spec.OptionalArtifacts)),
	}
	for _, key := range spec.RequiredArtifacts {
		node.Required[key] = artifactSchema
	}
	for _, key := range spec.OptionalArtifacts {
		node.Optional[key] = artifactSchema
	}
	if spec.AllowUnspecifiedArtifacts {
		node.Extra = artifactSchema
	}
	return node
}

// BuildPublicationSchema constructs the full schema for a publication
// file under the given spec. Metadata is typed by the spec's
// metadata_schema when one is declared, and accepted untouched (default
// empty) otherwise.
func BuildPublicationSchema(spec *materials.PublicationSpec) *schema.Node {
	metadata := spec.MetadataSchema
	if metadata == nil {
		metadata = &schema.Node{Kind: schema.KindAny, Default: map[string]any{}}
	}
	return &schema.Node{
		Kind: schema.KindDict,
		Required: map[string]*schema.Node{
			"artifacts": BuildArtifactsSchema(spec),
		},
		Optional: map[string]*schema.Node{
			"ready":        {Kind: schema.KindBoolean, Default: true},
			"release_time": {Kind: schema.KindDatetime, Nullable: true},
			"metadata":     metadata,
		},
	}
}
