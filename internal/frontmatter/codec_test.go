package frontmatter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func sampleMetadata() *Metadata {
	md := New()
	md.Set(KeyTitle, String("Cookies"))
	md.Set(KeyTags, List("baking", "sweet"))
	md.Set(KeyCreated, String("2024-03-01T10:00:00.000Z"))
	md.Set("servings", Number(12))
	md.Set("ratio", Number(1.5))
	md.Set("draft", Bool(false))
	return md
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		body string
		md   *Metadata
	}{
		{"typical", "# Cookies\n\nSimple cookies.\n", sampleMetadata()},
		{"empty metadata", "just text", New()},
		{"empty body", "", sampleMetadata()},
		{"body with leading newlines", "\n\n  indented\n", sampleMetadata()},
		{"body starting with delimiter", "---\nnot: header\n---\nmore", New()},
		{"body with crlf", "line one\r\nline two\r\n", sampleMetadata()},
		{"tricky strings", "body", func() *Metadata {
			md := New()
			md.Set("yes", String("yes"))
			md.Set("number-like", String("42"))
			md.Set("true", String("true"))
			md.Set("dashes", String("---"))
			md.Set("multi", String("first\nsecond\n"))
			md.Set("colon", String("a: b"))
			md.Set("empty", String(""))
			md.Set("empty-list", List())
			return md
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Encode(tc.body, tc.md)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			md, body := Decode(raw)
			if body != tc.body {
				t.Errorf("body = %q, want %q\nraw:\n%s", body, tc.body, raw)
			}
			if diff := cmp.Diff(tc.md, md); diff != "" {
				t.Errorf("metadata mismatch (-want +got):\n%s\nraw:\n%s", diff, raw)
			}
		})
	}
}

func TestEncode_KeyOrderIsDeterministic(t *testing.T) {
	md := New()
	md.Set("zeta", String("z"))
	md.Set("alpha", String("a"))
	md.Set(KeyTags, List("x", "y"))

	raw, err := Encode("body", md)
	if err != nil {
		t.Fatal(err)
	}
	want := "---\nzeta: z\nalpha: a\ntags:\n  - x\n  - y\n---\nbody"
	if string(raw) != want {
		t.Errorf("encoded = %q, want %q", raw, want)
	}
	again, _ := Encode("body", md)
	if string(again) != string(raw) {
		t.Error("encoding is not deterministic")
	}
}

func TestDecode_NoHeader(t *testing.T) {
	md, body := Decode([]byte("# Just a heading\nSome text.\n"))
	if md.Len() != 0 {
		t.Errorf("expected empty metadata, got keys %v", md.Keys())
	}
	if body != "# Just a heading\nSome text.\n" {
		t.Errorf("body = %q", body)
	}
}

func TestDecode_UnclosedHeader(t *testing.T) {
	raw := "---\ntitle: x\nno closing line\n"
	md, body := Decode([]byte(raw))
	if md.Len() != 0 || body != raw {
		t.Errorf("unclosed header should decode as body only, got %v %q", md.Keys(), body)
	}
}

func TestDecode_InvalidYAMLFallback(t *testing.T) {
	raw := "---\n: invalid: yaml: {{{\n---\nBody\n"
	md, body := Decode([]byte(raw))
	if md.Len() != 0 {
		t.Errorf("expected empty metadata on invalid YAML")
	}
	if body != raw {
		t.Errorf("body = %q, want full content", body)
	}
}

func TestDecode_ScalarHeaderFallback(t *testing.T) {
	raw := "---\njust a string\n---\nBody"
	md, body := Decode([]byte(raw))
	if md.Len() != 0 || body != raw {
		t.Errorf("non-mapping header should fall back, got %v %q", md.Keys(), body)
	}
}

func TestDecode_HandWrittenHeader(t *testing.T) {
	raw := "---\r\ntitle: Hello\r\ncreated: 2024-01-02\r\nempty:\r\nnested:\r\n  a: 1\r\nmixed:\r\n  - one\r\n  - {k: v}\r\n---\r\nBody\r\n"
	md, body := Decode([]byte(raw))
	if body != "Body\r\n" {
		t.Errorf("body = %q", body)
	}
	if md.Title() != "Hello" {
		t.Errorf("title = %q", md.Title())
	}
	created, ok := md.Created()
	if !ok || !created.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("created = %v, %v", created, ok)
	}
	if _, ok := md.Get("empty"); ok {
		t.Error("null values should be dropped")
	}
	nested, _ := md.Get("nested")
	if s, _ := nested.AsString(); s != `{"a":1}` {
		t.Errorf("nested = %#v", nested)
	}
	mixed, _ := md.Get("mixed")
	if s, _ := mixed.AsString(); s != `["one",{"k":"v"}]` {
		t.Errorf("mixed = %#v", mixed)
	}
}

func TestMetadata_JSONKeepsOrder(t *testing.T) {
	in := `{"zeta":"z","tags":["a","b"],"n":3,"ok":true,"skip":null,"obj":{"x": 1}}`
	var md Metadata
	if err := json.Unmarshal([]byte(in), &md); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff([]string{"zeta", "tags", "n", "ok", "obj"}, md.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	out, err := json.Marshal(&md)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"zeta":"z","tags":["a","b"],"n":3,"ok":true,"obj":"{\"x\":1}"}`
	if string(out) != want {
		t.Errorf("json = %s, want %s", out, want)
	}
}

func TestMetadata_JSONRejectsNonObject(t *testing.T) {
	var md Metadata
	if err := json.Unmarshal([]byte(`["a"]`), &md); err == nil {
		t.Error("expected error for array metadata")
	}
}

func TestMetadata_Accessors(t *testing.T) {
	md := New()
	if md.Title() != "" || md.Tags() != nil {
		t.Error("empty metadata should have no title or tags")
	}
	md.Set(KeyTags, String("solo"))
	if diff := cmp.Diff([]string{"solo"}, md.Tags()); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	now := time.Date(2025, 6, 7, 8, 9, 10, 11_000_000, time.FixedZone("X", 3600))
	md.SetTime(KeyUpdated, now)
	v, _ := md.Get(KeyUpdated)
	if s, _ := v.AsString(); s != "2025-06-07T07:09:10.011Z" {
		t.Errorf("updated = %q", s)
	}
	got, ok := md.Updated()
	if !ok || !got.Equal(now) {
		t.Errorf("Updated() = %v, %v", got, ok)
	}
}

func TestMetadata_SetKeepsPositionAndDelete(t *testing.T) {
	md := New()
	md.Set("a", String("1"))
	md.Set("b", String("2"))
	md.Set("a", String("3"))
	md.Delete("b")
	md.Delete("missing")
	if got := strings.Join(md.Keys(), ","); got != "a" {
		t.Errorf("keys = %s", got)
	}
	v, _ := md.Get("a")
	if s, _ := v.AsString(); s != "3" {
		t.Errorf("a = %q", s)
	}
}

func TestMetadata_CloneIsDeep(t *testing.T) {
	md := sampleMetadata()
	c := md.Clone()
	c.Set(KeyTitle, String("Other"))
	if md.Title() != "Cookies" {
		t.Error("clone shares storage with original")
	}
	var nilMD *Metadata
	if nilMD.Clone().Len() != 0 {
		t.Error("clone of nil should be empty")
	}
}
