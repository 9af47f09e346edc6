// Package frontmatter encodes and decodes Markdown documents that carry a
// YAML metadata header between "---" lines.
package frontmatter

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Decode splits raw into its metadata header and body. The header must open
// on the first line. Content without a header, without a closing delimiter or
// with a header that is not a YAML mapping decodes as empty metadata plus the
// whole content as body.
func Decode(raw []byte) (*Metadata, string) {
	header, body, ok := split(raw)
	if !ok {
		return New(), string(raw)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(header, &doc); err != nil {
		return New(), string(raw)
	}
	md, err := metadataFromNode(&doc)
	if err != nil {
		return New(), string(raw)
	}
	return md, string(body)
}

// Encode serializes md as a YAML header followed by body. Keys are written in
// metadata order. The header is always present, so any body survives a
// Decode unchanged.
func Encode(body string, md *Metadata) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	if md.Len() > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(md.node()); err != nil {
			return nil, fmt.Errorf("frontmatter: encode header: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("frontmatter: encode header: %w", err)
		}
	}
	buf.WriteString(delim + "\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// split locates the header between the opening delimiter line and the first
// closing delimiter line. body starts right after the closing line.
func split(raw []byte) (header, body []byte, ok bool) {
	line, off := cutLine(raw, 0)
	if string(line) != delim || off == len(raw) {
		return nil, nil, false
	}
	start := off
	for off < len(raw) {
		lineStart := off
		line, off = cutLine(raw, off)
		if string(line) == delim {
			return raw[start:lineStart], raw[off:], true
		}
	}
	return nil, nil, false
}

// cutLine returns the line beginning at off without its terminator, and the
// offset of the following line.
func cutLine(b []byte, off int) ([]byte, int) {
	i := bytes.IndexByte(b[off:], '\n')
	if i < 0 {
		return b[off:], len(b)
	}
	return bytes.TrimSuffix(b[off:off+i], []byte("\r")), off + i + 1
}
