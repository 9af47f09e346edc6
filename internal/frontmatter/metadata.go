package frontmatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/starford/quire/internal/apperr"
)

// Well-known metadata keys.
const (
	KeyTitle   = "title"
	KeyTags    = "tags"
	KeyCreated = "created"
	KeyUpdated = "updated"
)

// TimeLayout is the layout used for the created and updated timestamps.
const TimeLayout = "2006-01-02T15:04:05.000Z"

var timeLayouts = []string{TimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05", time.DateOnly}

// Metadata is an ordered mapping of string keys to Values. Keys keep the
// order in which they were first set. A nil *Metadata reads as empty.
type Metadata struct {
	keys   []string
	values map[string]Value
}

// New returns empty metadata.
func New() *Metadata {
	return &Metadata{values: make(map[string]Value)}
}

// Len returns the number of keys.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

// Get returns the value stored under key.
func (m *Metadata) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Set stores v under key. An existing key keeps its position.
func (m *Metadata) Set(key string, v Value) {
	if m.values == nil {
		m.values = make(map[string]Value)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Delete removes key.
func (m *Metadata) Delete(key string) {
	if m == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	m.keys = slices.DeleteFunc(m.keys, func(k string) bool { return k == key })
}

// Clone returns a deep copy. Cloning nil yields empty metadata.
func (m *Metadata) Clone() *Metadata {
	out := New()
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		if v.kind == KindList {
			v = List(v.list...)
		}
		out.Set(k, v)
	}
	return out
}

// Validate reports keys and text values that a YAML header cannot hold.
func (m *Metadata) Validate() error {
	for _, k := range m.Keys() {
		if !utf8.ValidString(k) {
			return fmt.Errorf("%w: key %q is not valid UTF-8", apperr.ErrInvalidMetadata, k)
		}
		v, _ := m.Get(k)
		texts := v.list
		if v.kind == KindString {
			texts = []string{v.str}
		}
		for _, t := range texts {
			if !utf8.ValidString(t) {
				return fmt.Errorf("%w: value of %q is not valid UTF-8", apperr.ErrInvalidMetadata, k)
			}
		}
	}
	return nil
}

// Equal reports whether both hold the same keys, in the same order, with
// equal values.
func (m *Metadata) Equal(o *Metadata) bool {
	if m.Len() != o.Len() {
		return false
	}
	for i, k := range m.Keys() {
		if o.keys[i] != k {
			return false
		}
		a, _ := m.Get(k)
		b, _ := o.Get(k)
		if !a.Equal(b) {
			return false
		}
	}
	return true
}

// Title returns the non-empty string title, or "".
func (m *Metadata) Title() string {
	v, ok := m.Get(KeyTitle)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return strings.TrimSpace(s)
}

// Tags returns the tags list. A single string tag is returned as a one-item list.
func (m *Metadata) Tags() []string {
	v, ok := m.Get(KeyTags)
	if !ok {
		return nil
	}
	if list, ok := v.AsList(); ok {
		return list
	}
	if s, ok := v.AsString(); ok && strings.TrimSpace(s) != "" {
		return []string{strings.TrimSpace(s)}
	}
	return nil
}

// Created returns the parsed created timestamp.
func (m *Metadata) Created() (time.Time, bool) { return m.Time(KeyCreated) }

// Updated returns the parsed updated timestamp.
func (m *Metadata) Updated() (time.Time, bool) { return m.Time(KeyUpdated) }

// Time parses the string stored under key as a timestamp.
func (m *Metadata) Time(key string) (time.Time, bool) {
	v, ok := m.Get(key)
	if !ok {
		return time.Time{}, false
	}
	s, ok := v.AsString()
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SetTime stores t under key in TimeLayout, converted to UTC.
func (m *Metadata) SetTime(key string, t time.Time) {
	m.Set(key, String(t.UTC().Format(TimeLayout)))
}

// MarshalJSON encodes the metadata as a JSON object in key order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		v, _ := m.Get(k)
		val, err := v.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("frontmatter: key %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the order of its keys. Null
// members are skipped.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = Metadata{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("frontmatter: metadata must be a JSON object")
	}
	out := Metadata{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if string(bytes.TrimSpace(raw)) == "null" {
			continue
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("frontmatter: key %q: %w", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (m *Metadata) MarshalYAML() (any, error) {
	return m.node(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Metadata) UnmarshalYAML(n *yaml.Node) error {
	out, err := metadataFromNode(n)
	if err != nil {
		return err
	}
	*m = *out
	return nil
}

func (m *Metadata) node() *yaml.Node {
	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			v.node(),
		)
	}
	return mapping
}

func metadataFromNode(n *yaml.Node) (*Metadata, error) {
	md := New()
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return md, nil
		}
		n = n.Content[0]
	}
	if n.Kind == 0 {
		return md, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("frontmatter: header is not a mapping (line %d)", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if v, ok := valueFromNode(val); ok {
			md.Set(key.Value, v)
		}
	}
	return md, nil
}
