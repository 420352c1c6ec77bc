package discover

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/courseops/mimeo/core/schema"
	"gopkg.in/yaml.v3"
)

// LoadDocument parses YAML bytes into the plain value shapes the
// resolution engine works on: map[string]any, []any, string, int,
// float64, bool, nil, schema.Date for plain YYYY-MM-DD scalars, and
// time.Time for full timestamps. Quoting a temporal scalar keeps it a
// string.
func LoadDocument(data []byte) (any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 {
		return nil, nil
	}
	return decodeNode(&root)
}

func decodeNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return decodeNode(n.Content[0])

	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if key.Kind != yaml.ScalarNode || key.ShortTag() != "!!str" {
				return nil, fmt.Errorf("line %d: mapping keys must be strings", key.Line)
			}
			value, err := decodeNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m[key.Value] = value
		}
		return m, nil

	case yaml.SequenceNode:
		l := make([]any, len(n.Content))
		for i, elem := range n.Content {
			value, err := decodeNode(elem)
			if err != nil {
				return nil, err
			}
			l[i] = value
		}
		return l, nil

	case yaml.ScalarNode:
		return decodeScalar(n)

	case yaml.AliasNode:
		return decodeNode(n.Alias)
	}

	return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

func decodeScalar(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad boolean %q", n.Line, n.Value)
		}
		return b, nil
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad integer %q", n.Line, n.Value)
		}
		return int(i), nil
	case "!!float":
		switch n.Value {
		case ".inf", "+.inf", ".Inf", "+.Inf":
			return math.Inf(1), nil
		case "-.inf", "-.Inf":
			return math.Inf(-1), nil
		case ".nan", ".NaN":
			return math.NaN(), nil
		}
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad float %q", n.Line, n.Value)
		}
		return f, nil
	case "!!timestamp":
		v, err := decodeTimestamp(n.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	}
	return n.Value, nil
}

// timestampLayouts mirror the formats the YAML resolver recognizes
// beyond the bare date.
var timestampLayouts = []string{
	"2006-1-2T15:4:5.999999999Z07:00",
	"2006-1-2t15:4:5.999999999Z07:00",
	"2006-1-2 15:4:5.999999999",
}

func decodeTimestamp(s string) (any, error) {
	if t, err := time.Parse("2006-1-2", s); err == nil {
		return schema.DateOf(t), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("bad timestamp %q", s)
}

// LoadVarsFile reads a YAML file of external variables for ${vars.*}
// interpolation. The top level must be a mapping.
func LoadVarsFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vars file: %w", err)
	}
	doc, err := LoadDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse vars file %s: %w", path, err)
	}
	if doc == nil {
		return map[string]any{}, nil
	}
	vars, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("vars file %s must hold a mapping", path)
	}
	return vars, nil
}
