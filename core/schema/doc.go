// Package schema describes the expected shape of YAML documents.
//
// A schema is a tree of nodes. Leaf nodes accept scalars (string, integer,
// boolean, date, datetime), container nodes describe dicts and lists, and
// the any kind accepts whatever it is given. Dict nodes distinguish
// required keys from optional ones and may carry a schema for undeclared
// keys; optional positions carry defaults.
//
// Fixed schemas are built as Node literals. Schemas embedded in documents
// (a collection's metadata_schema) arrive as plain mappings and go through
// ParseFragment.
package schema
