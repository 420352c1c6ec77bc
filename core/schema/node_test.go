package schema

import (
	"strings"
	"testing"
)

func TestKindValid(t *testing.T) {
	valid := []Kind{KindString, KindInteger, KindBoolean, KindDate, KindDatetime, KindDict, KindList, KindAny}
	for _, k := range valid {
		if !k.Valid() {
			t.Errorf("Kind(%q).Valid() = false, want true", k)
		}
	}
	for _, k := range []Kind{"", "float", "timestamp", "map"} {
		if k.Valid() {
			t.Errorf("Kind(%q).Valid() = true, want false", k)
		}
	}
}

func TestNodeValidate(t *testing.T) {
	tests := []struct {
		name    string
		node    *Node
		wantMsg string
	}{
		{
			name:    "unknown kind",
			node:    &Node{Kind: "float"},
			wantMsg: `unknown type "float"`,
		},
		{
			name:    "list without element",
			node:    &Node{Kind: KindList},
			wantMsg: "list node requires element_schema",
		},
		{
			name: "list with key schemas",
			node: &Node{
				Kind:     KindList,
				Element:  &Node{Kind: KindString},
				Required: map[string]*Node{"x": {Kind: KindString}},
			},
			wantMsg: "list node does not take key schemas",
		},
		{
			name:    "scalar with key schemas",
			node:    &Node{Kind: KindString, Optional: map[string]*Node{"x": {Kind: KindString}}},
			wantMsg: "string node does not take key schemas",
		},
		{
			name:    "scalar with element schema",
			node:    &Node{Kind: KindBoolean, Element: &Node{Kind: KindString}},
			wantMsg: "boolean node does not take element_schema",
		},
		{
			name: "duplicate key declaration",
			node: &Node{
				Kind:     KindDict,
				Required: map[string]*Node{"due": {Kind: KindDate}},
				Optional: map[string]*Node{"due": {Kind: KindDate}},
			},
			wantMsg: `key "due" is both required and optional`,
		},
		{
			name: "error deep inside a dict",
			node: &Node{
				Kind: KindDict,
				Optional: map[string]*Node{
					"grades": {Kind: KindList},
				},
			},
			wantMsg: "grades: list node requires element_schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestNodeValidateAccepts(t *testing.T) {
	node := &Node{
		Kind: KindDict,
		Required: map[string]*Node{
			"artifacts": {Kind: KindDict, Extra: &Node{Kind: KindAny}},
		},
		Optional: map[string]*Node{
			"metadata":     {Kind: KindAny, Default: map[string]any{}},
			"release_time": {Kind: KindDatetime, Nullable: true},
			"tags":         {Kind: KindList, Element: &Node{Kind: KindString}},
		},
	}
	if err := node.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
