package schema

import (
	"fmt"
	"sort"
)

// ParseFragment builds a Node from its YAML-shaped description: a mapping
// with a "type" key plus the structural keys that type takes
// (required_keys, optional_keys, extra_keys_schema for dicts,
// element_schema for lists, and nullable/default everywhere). The parsed
// node is validated before it is returned.
func ParseFragment(fragment map[string]any) (*Node, error) {
	node, err := parseFragment(fragment, "")
	if err != nil {
		return nil, err
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}
	return node, nil
}

func parseFragment(fragment map[string]any, at string) (*Node, error) {
	node := &Node{}

	if _, ok := fragment["type"]; !ok {
		return nil, &InvalidSchemaError{Reason: describe(at, `missing "type" key`)}
	}

	keys := make([]string, 0, len(fragment))
	for key := range fragment {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := fragment[key]
		switch key {
		case "type":
			s, ok := value.(string)
			if !ok {
				return nil, &InvalidSchemaError{Reason: describe(at, fmt.Sprintf("type must be a string, got %T", value))}
			}
			node.Kind = Kind(s)
		case "nullable":
			b, ok := value.(bool)
			if !ok {
				return nil, &InvalidSchemaError{Reason: describe(at, fmt.Sprintf("nullable must be a boolean, got %T", value))}
			}
			node.Nullable = b
		case "default":
			node.Default = value
		case "required_keys":
			children, err := parseKeyMap(value, childPos(at, key))
			if err != nil {
				return nil, err
			}
			node.Required = children
		case "optional_keys":
			children, err := parseKeyMap(value, childPos(at, key))
			if err != nil {
				return nil, err
			}
			node.Optional = children
		case "extra_keys_schema":
			child, err := parseSubFragment(value, childPos(at, key))
			if err != nil {
				return nil, err
			}
			node.Extra = child
		case "element_schema":
			child, err := parseSubFragment(value, childPos(at, key))
			if err != nil {
				return nil, err
			}
			node.Element = child
		default:
			return nil, &InvalidSchemaError{Reason: describe(at, fmt.Sprintf("unknown key %q", key))}
		}
	}

	return node, nil
}

func parseKeyMap(value any, at string) (map[string]*Node, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, &InvalidSchemaError{Reason: describe(at, fmt.Sprintf("mapping expected, got %T", value))}
	}

	children := make(map[string]*Node, len(m))
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		child, err := parseSubFragment(m[name], childPos(at, name))
		if err != nil {
			return nil, err
		}
		children[name] = child
	}

	return children, nil
}

func parseSubFragment(value any, at string) (*Node, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, &InvalidSchemaError{Reason: describe(at, fmt.Sprintf("schema mapping expected, got %T", value))}
	}
	return parseFragment(m, at)
}
