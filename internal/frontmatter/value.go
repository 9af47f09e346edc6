package frontmatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	}
	return "unknown"
}

// Value is a single metadata value: a string, a number, a bool or an ordered
// list of strings. The zero Value is the empty string.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []string
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List returns a list Value holding a copy of items.
func List(items ...string) Value {
	return Value{kind: KindList, list: append([]string{}, items...)}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsList returns a copy of the list held by v.
func (v Value) AsList() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return slices.Clone(v.list), true
}

// Interface returns v as a plain Go value (string, float64, bool or []string).
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		return slices.Clone(v.list)
	}
	return v.str
}

// Equal reports whether v and o hold the same variant and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		return slices.Equal(v.list, o.list)
	}
	return v.str == o.str
}

func (v Value) GoString() string {
	return fmt.Sprintf("frontmatter.Value{%s: %#v}", v.kind, v.Interface())
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindList && v.list == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler. Objects and nested arrays are
// kept as their compact JSON text so that no client input is rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("frontmatter: empty JSON value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case 'n':
		*v = String("")
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		items := make([]string, 0, len(raw))
		for _, item := range raw {
			var s string
			if err := json.Unmarshal(item, &s); err == nil {
				items = append(items, s)
				continue
			}
			items = append(items, compactJSON(item))
		}
		*v = List(items...)
	case '{':
		*v = String(compactJSON(data))
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = Number(f)
	}
	return nil
}

func compactJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}

// node renders v as a YAML node. String scalars carry an explicit !!str tag so
// the encoder quotes anything that would otherwise resolve to another type.
func (v Value) node() *yaml.Node {
	switch v.kind {
	case KindNumber:
		tag, text := "!!float", strconv.FormatFloat(v.num, 'g', -1, 64)
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1e15 {
			tag, text = "!!int", strconv.FormatFloat(v.num, 'f', -1, 64)
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: text}
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.b)}
	case KindList:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.list {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item})
		}
		return seq
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.str}
}

// valueFromNode converts a decoded YAML node. It reports false for null
// scalars, which are dropped from the metadata.
func valueFromNode(n *yaml.Node) (Value, bool) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return Value{}, false
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err == nil {
				return Bool(b), true
			}
		case "!!int", "!!float":
			var f float64
			if err := n.Decode(&f); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
				return Number(f), true
			}
		}
		return String(n.Value), true
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			if c.Kind == yaml.AliasNode && c.Alias != nil {
				c = c.Alias
			}
			if c.Kind != yaml.ScalarNode {
				return nodeAsJSON(n), true
			}
			items = append(items, c.Value)
		}
		return List(items...), true
	}
	return nodeAsJSON(n), true
}

// nodeAsJSON flattens a structure the Value variant cannot hold into a string.
func nodeAsJSON(n *yaml.Node) Value {
	var decoded any
	if err := n.Decode(&decoded); err != nil {
		return String(n.Value)
	}
	data, err := json.Marshal(decoded)
	if err != nil {
		return String(n.Value)
	}
	return String(string(data))
}
