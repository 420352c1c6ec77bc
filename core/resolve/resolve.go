// Package resolve checks YAML documents against schemas and fills them
// in: defaults for absent optional keys, rejection of undeclared keys,
// scalar coercion, and substitution of ${...} placeholders.
//
// Placeholders may reference the document being resolved (this.* or
// self.*), externally supplied variables (vars.*), or the previously
// resolved sibling document (previous.*). Self references resolve
// lazily: when a placeholder names a position that has not been resolved
// yet, that position is resolved on demand and memoized, so documents
// may reference forward or backward freely. Chains that loop back into a
// position still being resolved fail with ErrCyclicReference.
package resolve

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/courseops/mimeo/core/schema"
)

// Environment supplies the external namespaces available to
// placeholders.
type Environment struct {
	// Vars backs ${vars.*} references.
	Vars map[string]any

	// Previous backs ${previous.*} references with the resolved document
	// of the preceding sibling. Nil when there is none, in which case
	// previous.* references fail as unresolvable.
	Previous map[string]any
}

// Resolve checks raw against node and returns the resolved document:
// fully defaulted, coerced, and with every placeholder substituted. The
// input is never modified; containers in the result are fresh.
func Resolve(raw any, node *schema.Node, env Environment) (any, error) {
	if err := node.Validate(); err != nil {
		return nil, err
	}
	r := &resolver{
		root:   raw,
		schema: node,
		env:    env,
		memo:   map[string]any{},
		active: map[string]bool{},
	}
	return r.resolveAt(Path{}, raw, node)
}

// absentValue marks a position not supplied by the document, as opposed
// to one holding an explicit null.
type absentValue struct{}

func isAbsent(v any) bool {
	_, ok := v.(absentValue)
	return ok
}

var anyNode = &schema.Node{Kind: schema.KindAny}

type resolver struct {
	root   any
	schema *schema.Node
	env    Environment

	// memo holds resolved values keyed by canonical path. Self
	// references and the main walk share it, so each position is
	// resolved exactly once.
	memo map[string]any

	// active holds the paths currently being resolved; re-entering one
	// is a cycle.
	active map[string]bool
}

// resolveAt resolves the position p, whose raw value and schema are
// already in hand, through the memo and cycle bookkeeping.
func (r *resolver) resolveAt(p Path, raw any, node *schema.Node) (any, error) {
	key := p.String()
	if v, ok := r.memo[key]; ok {
		return v, nil
	}
	if r.active[key] {
		return nil, errAt(p, ErrCyclicReference, "")
	}
	r.active[key] = true
	v, err := r.resolveValue(p, raw, node)
	delete(r.active, key)
	if err != nil {
		return nil, err
	}
	r.memo[key] = v
	return v, nil
}

func (r *resolver) resolveValue(p Path, raw any, node *schema.Node) (any, error) {
	if isAbsent(raw) {
		if node.Default != nil {
			return r.resolveValue(p, node.Default, node)
		}
		// An absent non-nullable dict still resolves against its schema
		// so that defaults inside it apply and required keys are
		// demanded. A nullable one is simply null.
		if node.Kind == schema.KindDict && !node.Nullable {
			return r.resolveDict(p, map[string]any{}, node)
		}
		return nil, nil
	}

	if raw == nil {
		if node.Kind == schema.KindAny || node.Nullable {
			return nil, nil
		}
		return nil, errAt(p, ErrTypeMismatch, "null is not allowed here")
	}

	switch node.Kind {
	case schema.KindDict:
		return r.resolveDict(p, raw, node)
	case schema.KindList:
		return r.resolveList(p, raw, node)
	case schema.KindAny:
		return r.resolveAny(p, raw)
	default:
		return r.resolveLeaf(p, raw, node)
	}
}

func (r *resolver) resolveDict(p Path, raw any, node *schema.Node) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errAt(p, ErrTypeMismatch, "expected a mapping, got %s", typeName(raw))
	}

	out := make(map[string]any, len(node.Required)+len(node.Optional))

	for _, name := range sortedNodeKeys(node.Required) {
		rawChild, present := m[name]
		if !present {
			return nil, errAt(p.Child(name), ErrMissingKey, "")
		}
		v, err := r.resolveAt(p.Child(name), rawChild, node.Required[name])
		if err != nil {
			return nil, err
		}
		out[name] = v
	}

	for _, name := range sortedNodeKeys(node.Optional) {
		var rawChild any = absentValue{}
		if v, present := m[name]; present {
			rawChild = v
		}
		v, err := r.resolveAt(p.Child(name), rawChild, node.Optional[name])
		if err != nil {
			return nil, err
		}
		out[name] = v
	}

	for _, name := range sortedMapKeys(m) {
		if _, declared := node.Required[name]; declared {
			continue
		}
		if _, declared := node.Optional[name]; declared {
			continue
		}
		if node.Extra == nil {
			return nil, errAt(p.Child(name), ErrUnknownKey, "")
		}
		v, err := r.resolveAt(p.Child(name), m[name], node.Extra)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}

	return out, nil
}

func (r *resolver) resolveList(p Path, raw any, node *schema.Node) (any, error) {
	l, ok := raw.([]any)
	if !ok {
		return nil, errAt(p, ErrTypeMismatch, "expected a sequence, got %s", typeName(raw))
	}

	out := make([]any, len(l))
	for i, rawElem := range l {
		v, err := r.resolveAt(p.Child(strconv.Itoa(i)), rawElem, node.Element)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// resolveAny passes values through untyped. Strings inside still
// interpolate, so free-form metadata can use placeholders; relative time
// expressions, however, only apply at date and datetime positions.
func (r *resolver) resolveAny(p Path, raw any) (any, error) {
	switch v := raw.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for _, name := range sortedMapKeys(v) {
			rv, err := r.resolveAt(p.Child(name), v[name], anyNode)
			if err != nil {
				return nil, err
			}
			out[name] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			rv, err := r.resolveAt(p.Child(strconv.Itoa(i)), elem, anyNode)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case string:
		return r.interpolate(p, v)
	default:
		return raw, nil
	}
}

func (r *resolver) resolveLeaf(p Path, raw any, node *schema.Node) (any, error) {
	if node.Kind.Temporal() {
		return r.resolveTemporal(p, raw, node)
	}

	value := raw
	if s, ok := raw.(string); ok {
		v, err := r.interpolate(p, s)
		if err != nil {
			return nil, err
		}
		value = v
	}
	return coerceScalar(p, value, node)
}

func coerceScalar(p Path, value any, node *schema.Node) (any, error) {
	if value == nil {
		if node.Nullable {
			return nil, nil
		}
		return nil, errAt(p, ErrTypeMismatch, "null is not allowed here")
	}

	switch node.Kind {
	case schema.KindString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		if s, ok := formatScalar(value); ok {
			return s, nil
		}
	case schema.KindInteger:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == math.Trunc(v) {
				return int(v), nil
			}
			return nil, errAt(p, ErrTypeMismatch, "%v is not an integer", v)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, errAt(p, ErrTypeMismatch, "cannot coerce %q to an integer", v)
			}
			return n, nil
		}
	case schema.KindBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, errAt(p, ErrTypeMismatch, "cannot coerce %q to a boolean", v)
			}
			return b, nil
		}
	}

	return nil, errAt(p, ErrTypeMismatch, "cannot coerce %s to %s", typeName(value), node.Kind)
}

// typeName names a raw value's type the way documents spell it.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64:
		return "integer"
	case float64:
		return "number"
	case time.Time:
		return "datetime"
	case schema.Date:
		return "date"
	case map[string]any:
		return "mapping"
	case []any:
		return "sequence"
	}
	return "unsupported value"
}

func sortedNodeKeys(m map[string]*schema.Node) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedMapKeys(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
