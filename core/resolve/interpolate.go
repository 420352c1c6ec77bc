package resolve

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/courseops/mimeo/core/schema"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^{}]*)\}`)

// interpolate substitutes every ${...} placeholder in s. A string that
// is exactly one placeholder resolves to the referenced value itself,
// preserving its type; placeholders embedded in surrounding text render
// into it, which requires the referenced values to be scalars.
func (r *resolver) interpolate(p Path, s string) (any, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		ref := strings.TrimSpace(s[matches[0][2]:matches[0][3]])
		return r.resolveReference(p, ref)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		ref := strings.TrimSpace(s[m[2]:m[3]])
		value, err := r.resolveReference(p, ref)
		if err != nil {
			return nil, err
		}
		text, ok := formatScalar(value)
		if !ok {
			return nil, errAt(p, ErrTypeMismatch,
				"reference %q resolves to a %s and cannot be embedded in a string", ref, typeName(value))
		}
		b.WriteString(s[last:m[0]])
		b.WriteString(text)
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// formatScalar renders a resolved scalar for embedding into a larger
// string. Containers and nulls report false.
func formatScalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case time.Time:
		return t.Format("2006-01-02 15:04:05"), true
	case schema.Date:
		return t.String(), true
	}
	return "", false
}

func (r *resolver) resolveReference(p Path, ref string) (any, error) {
	if ref == "" {
		return nil, errAt(p, ErrUnresolvableReference, "empty placeholder")
	}

	segs := strings.Split(ref, ".")
	switch segs[0] {
	case "this", "self":
		return r.resolveSelf(segs[1:], ref)
	case "vars":
		if r.env.Vars == nil {
			return nil, errAt(p, ErrUnresolvableReference, "%q: no variables in scope", ref)
		}
		return navigateResolved(p, r.env.Vars, segs[1:], ref)
	case "previous":
		if r.env.Previous == nil {
			return nil, errAt(p, ErrUnresolvableReference, "%q: no previous publication in scope", ref)
		}
		return navigateResolved(p, r.env.Previous, segs[1:], ref)
	}
	return nil, errAt(p, ErrUnresolvableReference, "%q: unknown namespace %q", ref, segs[0])
}

// resolveSelf resolves a this.* or self.* reference by locating the
// named position in the raw document and resolving it on demand.
func (r *resolver) resolveSelf(segs []string, ref string) (any, error) {
	raw, node, err := r.locate(segs, ref)
	if err != nil {
		return nil, err
	}
	p := make(Path, len(segs))
	copy(p, segs)
	return r.resolveAt(p, raw, node)
}

// locate walks the raw document and its schema together to the position
// named by segs, substituting defaults for absent optional positions
// encountered along the way.
func (r *resolver) locate(segs []string, ref string) (any, *schema.Node, error) {
	raw := r.root
	node := r.schema
	walked := Path{}

	for _, seg := range segs {
		switch node.Kind {
		case schema.KindDict:
			if isAbsent(raw) {
				switch {
				case node.Default != nil:
					raw = node.Default
				case !node.Nullable:
					raw = map[string]any{}
				default:
					return nil, nil, errAt(walked, ErrUnresolvableReference, "%q: no value at %q", ref, seg)
				}
			}
			m, ok := raw.(map[string]any)
			if !ok {
				return nil, nil, errAt(walked, ErrUnresolvableReference, "%q: cannot descend into %s", ref, typeName(raw))
			}

			var child *schema.Node
			switch {
			case node.Required[seg] != nil:
				child = node.Required[seg]
				if _, present := m[seg]; !present {
					return nil, nil, errAt(walked, ErrUnresolvableReference, "%q: required key %q has no value", ref, seg)
				}
			case node.Optional[seg] != nil:
				child = node.Optional[seg]
			case node.Extra != nil:
				child = node.Extra
				if _, present := m[seg]; !present {
					return nil, nil, errAt(walked, ErrUnresolvableReference, "%q: no key %q", ref, seg)
				}
			default:
				return nil, nil, errAt(walked, ErrUnresolvableReference, "%q: no key %q", ref, seg)
			}

			if v, present := m[seg]; present {
				raw = v
			} else {
				raw = absentValue{}
			}
			node = child

		case schema.KindList:
			if isAbsent(raw) {
				if node.Default == nil {
					return nil, nil, errAt(walked, ErrUnresolvableReference, "%q: list has no value", ref)
				}
				raw = node.Default
			}
			l, ok := raw.([]any)
			if !ok {
				return nil, nil, errAt(walked, ErrUnresolvableReference, "%q: cannot index into %s", ref, typeName(raw))
			}
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(l) {
				return nil, nil, errAt(walked, ErrUnresolvableReference, "%q: no element %q", ref, seg)
			}
			raw = l[i]
			node = node.Element

		case schema.KindAny:
			if isAbsent(raw) {
				raw = node.Default
			}
			switch c := raw.(type) {
			case map[string]any:
				v, present := c[seg]
				if !present {
					return nil, nil, errAt(walked, ErrUnresolvableReference, "%q: no key %q", ref, seg)
				}
				raw = v
			case []any:
				i, err := strconv.Atoi(seg)
				if err != nil || i < 0 || i >= len(c) {
					return nil, nil, errAt(walked, ErrUnresolvableReference, "%q: no element %q", ref, seg)
				}
				raw = c[i]
			default:
				return nil, nil, errAt(walked, ErrUnresolvableReference, "%q: cannot descend into %s", ref, typeName(raw))
			}
			node = anyNode

		default:
			return nil, nil, errAt(walked, ErrUnresolvableReference, "%q: cannot descend into a %s", ref, node.Kind)
		}

		walked = walked.Child(seg)
	}

	return raw, node, nil
}

// navigateResolved walks an already resolved structure, as used for the
// vars and previous namespaces.
func navigateResolved(p Path, root map[string]any, segs []string, ref string) (any, error) {
	var cur any = root
	for _, seg := range segs {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, errAt(p, ErrUnresolvableReference, "%q: no key %q", ref, seg)
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(c) {
				return nil, errAt(p, ErrUnresolvableReference, "%q: no element %q", ref, seg)
			}
			cur = c[i]
		default:
			return nil, errAt(p, ErrUnresolvableReference, "%q: cannot descend into %s at %q", ref, typeName(cur), seg)
		}
	}
	return cur, nil
}
