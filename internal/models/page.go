// Package models defines the domain types for Quire.
package models

import (
	"encoding/json"
	"time"

	"github.com/starford/quire/internal/frontmatter"
)

// Document is a stored page: its Markdown body plus front matter metadata.
type Document struct {
	Path         string                `json:"path"`
	Body         string                `json:"markdown"`
	Metadata     *frontmatter.Metadata `json:"metadata"`
	LastModified time.Time             `json:"lastModified"`
	Checksum     string                `json:"checksum"`
}

// NodeType distinguishes folders from pages in the page tree.
type NodeType string

const (
	NodeFolder NodeType = "folder"
	NodePage   NodeType = "page"
)

// TreeNode is one entry of the page tree. Folders carry Children; pages carry
// LastModified and Size.
type TreeNode struct {
	Name         string
	Path         string
	Type         NodeType
	Children     []TreeNode
	LastModified time.Time
	Size         int64
}

// MarshalJSON emits only the fields that belong to the node's type.
func (n TreeNode) MarshalJSON() ([]byte, error) {
	if n.Type == NodeFolder {
		children := n.Children
		if children == nil {
			children = []TreeNode{}
		}
		return json.Marshal(struct {
			Name     string     `json:"name"`
			Path     string     `json:"path"`
			Type     NodeType   `json:"type"`
			Children []TreeNode `json:"children"`
		}{n.Name, n.Path, n.Type, children})
	}
	return json.Marshal(struct {
		Name         string    `json:"name"`
		Path         string    `json:"path"`
		Type         NodeType  `json:"type"`
		LastModified time.Time `json:"lastModified"`
		Size         int64     `json:"size"`
	}{n.Name, n.Path, n.Type, n.LastModified, n.Size})
}

// SearchResult is a single search hit.
type SearchResult struct {
	Path     string                `json:"path"`
	Title    string                `json:"title"`
	Excerpt  string                `json:"excerpt"`
	Metadata *frontmatter.Metadata `json:"metadata"`
}
