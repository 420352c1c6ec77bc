package schema

import (
	"fmt"
	"sort"
)

// Kind identifies the type of value a node accepts.
type Kind string

const (
	// Leaf kinds
	KindString   Kind = "string"
	KindInteger  Kind = "integer"
	KindBoolean  Kind = "boolean"
	KindDate     Kind = "date"
	KindDatetime Kind = "datetime"

	// Container kinds
	KindDict Kind = "dict"
	KindList Kind = "list"

	// KindAny accepts any value and performs no coercion.
	KindAny Kind = "any"
)

// Valid reports whether k is a recognized kind.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindInteger, KindBoolean, KindDate, KindDatetime,
		KindDict, KindList, KindAny:
		return true
	}
	return false
}

// Temporal reports whether k is a date or datetime kind.
func (k Kind) Temporal() bool {
	return k == KindDate || k == KindDatetime
}

// Node describes one position in a document.
type Node struct {
	// Kind is the node type. See Kind constants.
	Kind Kind

	// Nullable permits an explicit null at this position.
	Nullable bool

	// Default is substituted when an optional position is absent from the
	// document. A nil Default means an absent position resolves to null.
	// Defaults run through the same resolution pipeline as supplied
	// values, so they may contain placeholders.
	Default any

	// Required and Optional declare the keys of a dict node. A key may
	// appear in only one of the two.
	Required map[string]*Node
	Optional map[string]*Node

	// Extra is the schema applied to undeclared keys of a dict node.
	// When Extra is nil, undeclared keys are rejected.
	Extra *Node

	// Element is the schema applied to every element of a list node.
	Element *Node
}

// InvalidSchemaError reports a schema description that is not internally
// consistent, such as an unknown type or a list without an element schema.
type InvalidSchemaError struct {
	Reason string
}

func (e *InvalidSchemaError) Error() string {
	return "invalid schema: " + e.Reason
}

// Validate checks the node and everything below it for internal
// consistency. Documents are never needed for this check; it guards the
// schema itself, including schemas embedded in collection files.
func (n *Node) Validate() error {
	return n.validate("")
}

func (n *Node) validate(at string) error {
	if n == nil {
		return &InvalidSchemaError{Reason: describe(at, "nil node")}
	}
	if !n.Kind.Valid() {
		return &InvalidSchemaError{Reason: describe(at, fmt.Sprintf("unknown type %q", string(n.Kind)))}
	}

	switch n.Kind {
	case KindDict:
		for _, name := range sortedKeys(n.Required) {
			if _, ok := n.Optional[name]; ok {
				return &InvalidSchemaError{Reason: describe(at, fmt.Sprintf("key %q is both required and optional", name))}
			}
			if err := n.Required[name].validate(childPos(at, "required_keys."+name)); err != nil {
				return err
			}
		}
		for _, name := range sortedKeys(n.Optional) {
			if err := n.Optional[name].validate(childPos(at, "optional_keys."+name)); err != nil {
				return err
			}
		}
		if n.Extra != nil {
			if err := n.Extra.validate(childPos(at, "extra_keys_schema")); err != nil {
				return err
			}
		}
		if n.Element != nil {
			return &InvalidSchemaError{Reason: describe(at, "dict node does not take element_schema")}
		}
	case KindList:
		if n.Element == nil {
			return &InvalidSchemaError{Reason: describe(at, "list node requires element_schema")}
		}
		if n.Required != nil || n.Optional != nil || n.Extra != nil {
			return &InvalidSchemaError{Reason: describe(at, "list node does not take key schemas")}
		}
		return n.Element.validate(childPos(at, "element_schema"))
	default:
		if n.Required != nil || n.Optional != nil || n.Extra != nil {
			return &InvalidSchemaError{Reason: describe(at, fmt.Sprintf("%s node does not take key schemas", n.Kind))}
		}
		if n.Element != nil {
			return &InvalidSchemaError{Reason: describe(at, fmt.Sprintf("%s node does not take element_schema", n.Kind))}
		}
	}

	return nil
}

// Fragment renders the node back into its YAML-shaped description, the
// inverse of ParseFragment. Used when schemas travel inside serialized
// documents.
func (n *Node) Fragment() map[string]any {
	frag := map[string]any{"type": string(n.Kind)}
	if n.Nullable {
		frag["nullable"] = true
	}
	if n.Default != nil {
		frag["default"] = n.Default
	}
	if len(n.Required) > 0 {
		frag["required_keys"] = fragmentKeys(n.Required)
	}
	if len(n.Optional) > 0 {
		frag["optional_keys"] = fragmentKeys(n.Optional)
	}
	if n.Extra != nil {
		frag["extra_keys_schema"] = n.Extra.Fragment()
	}
	if n.Element != nil {
		frag["element_schema"] = n.Element.Fragment()
	}
	return frag
}

func fragmentKeys(keys map[string]*Node) map[string]any {
	out := make(map[string]any, len(keys))
	for name, child := range keys {
		out[name] = child.Fragment()
	}
	return out
}

func sortedKeys(m map[string]*Node) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func childPos(at, name string) string {
	if at == "" {
		return name
	}
	return at + "." + name
}

func describe(at, msg string) string {
	if at == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", at, msg)
}
