package pages

import (
	"context"
	"os"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
)

// Listing is the result of ListTree: the ordered page tree plus the errors
// that were swallowed while building it.
type Listing struct {
	Nodes       []models.TreeNode
	Diagnostics []Diagnostic
}

// ListTree walks root and returns its page tree. Hidden and ignored entries
// are skipped, folders without any descendant page are pruned, and siblings
// are ordered folders first, then pages, each by collated name.
//
// ListTree never fails: an unreadable directory contributes no pages and a
// Diagnostic. Cancelling ctx stops the walk early.
func ListTree(ctx context.Context, root string, opts ...WalkOption) Listing {
	w := newWalker(ctx, root, opts)
	nodes, _, diags := w.tree("")
	if nodes == nil {
		nodes = []models.TreeNode{}
	}
	return Listing{Nodes: nodes, Diagnostics: diags}
}

// tree builds the listing of the directory at rel. empty reports whether the
// subtree holds no page, in which case the caller drops the folder.
func (w *walker) tree(rel string) (nodes []models.TreeNode, empty bool, diags []Diagnostic) {
	entries, err := w.entries(rel)
	if err != nil {
		return nil, true, []Diagnostic{{Path: rel, Err: err}}
	}
	for _, e := range entries {
		if err := w.ctx.Err(); err != nil {
			diags = append(diags, Diagnostic{Path: rel, Err: err})
			break
		}
		if e.dir {
			children, childEmpty, childDiags := w.tree(e.rel)
			diags = append(diags, childDiags...)
			if childEmpty {
				continue
			}
			nodes = append(nodes, models.TreeNode{
				Name:     e.name,
				Path:     e.rel,
				Type:     models.NodeFolder,
				Children: children,
			})
			continue
		}
		info, err := os.Stat(w.abs(e.rel))
		if err != nil {
			diags = append(diags, Diagnostic{Path: e.rel, Err: err})
			continue
		}
		nodes = append(nodes, models.TreeNode{
			Name:         e.name,
			Path:         storage.LogicalPath(e.rel),
			Type:         models.NodePage,
			LastModified: info.ModTime(),
			Size:         info.Size(),
		})
	}
	return nodes, len(nodes) == 0, diags
}
