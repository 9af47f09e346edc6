package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quire/internal/pages"
	"github.com/starford/quire/internal/testutil"
)

func testServer(t *testing.T) (*Server, *pages.Store, string) {
	t.Helper()
	root, fs := testutil.TestStorage(t)
	store := pages.NewStore(fs, testutil.Logger())
	return New(store, "test"), store, root
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" helper, so dispatch to the handlers.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_pages":
		result, err = srv.listPages(ctx, req)
	case "read_page":
		result, err = srv.readPage(ctx, req)
	case "write_page":
		result, err = srv.writePage(ctx, req)
	case "delete_page":
		result, err = srv.deletePage(ctx, req)
	case "search_pages":
		result, err = srv.searchPages(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestWriteAndReadPage(t *testing.T) {
	srv, store, _ := testServer(t)

	r := callTool(t, srv, "write_page", map[string]any{
		"path":     "notes/test",
		"content":  "# Test\nHello",
		"metadata": map[string]any{"title": "Test", "tags": []any{"a"}},
	})
	if text := resultText(r); text != "saved: notes/test" {
		t.Errorf("write result = %q", text)
	}

	doc, err := store.Read(context.Background(), "notes/test")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Metadata.Title() != "Test" || len(doc.Metadata.Tags()) != 1 {
		t.Errorf("metadata = %v", doc.Metadata.Keys())
	}
	if _, ok := doc.Metadata.Created(); !ok {
		t.Error("created not set")
	}

	r = callTool(t, srv, "read_page", map[string]any{"path": "notes/test"})
	text := resultText(r)
	if !strings.HasPrefix(text, "path: notes/test\nmetadata: {") || !strings.HasSuffix(text, "\n\n# Test\nHello") {
		t.Errorf("read result = %q", text)
	}
}

func TestWritePage_InvalidPath(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "write_page", map[string]any{"path": "../escape", "content": "x"})
	if !r.IsError || !strings.Contains(resultText(r), "invalid path") {
		t.Errorf("result = %+v", r)
	}
}

func TestReadPageMissing(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "read_page", map[string]any{"path": "nope"})
	if !r.IsError || resultText(r) != "not found: nope" {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestDeletePage(t *testing.T) {
	srv, _, root := testServer(t)
	testutil.WriteFile(t, root, "gone.md", "x")

	if r := callTool(t, srv, "delete_page", map[string]any{"path": "gone"}); r.IsError {
		t.Fatalf("delete failed: %s", resultText(r))
	}
	if r := callTool(t, srv, "delete_page", map[string]any{"path": "gone"}); !r.IsError {
		t.Error("second delete should fail")
	}
}

func TestListPages(t *testing.T) {
	srv, _, root := testServer(t)
	testutil.WriteFile(t, root, "a.md", "a")
	testutil.WriteFile(t, root, "docs/guides/b.md", "b")

	var all []map[string]any
	_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "list_pages", map[string]any{}))), &all)
	if len(all) != 2 || all[0]["path"] != "docs" || all[1]["path"] != "a" {
		t.Errorf("list = %v", all)
	}

	var sub []map[string]any
	_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "list_pages", map[string]any{"folder": "docs/guides/"}))), &sub)
	if len(sub) != 1 || sub[0]["path"] != "docs/guides/b" {
		t.Errorf("sub list = %v", sub)
	}

	if r := callTool(t, srv, "list_pages", map[string]any{"folder": "missing"}); !r.IsError {
		t.Error("missing folder should be an error")
	}
}

func TestSearchPages(t *testing.T) {
	srv, _, root := testServer(t)
	for _, name := range []string{"a.md", "b.md", "c.md"} {
		testutil.WriteFile(t, root, name, "shared needle")
	}

	var results []map[string]any
	_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "search_pages", map[string]any{"query": "needle", "limit": 2}))), &results)
	if len(results) != 2 || results[0]["excerpt"] != "shared needle" {
		t.Errorf("results = %v", results)
	}

	r := callTool(t, srv, "search_pages", map[string]any{"query": "n"})
	if strings.TrimSpace(resultText(r)) != "[]" {
		t.Errorf("short query = %q", resultText(r))
	}
}

func TestPageFormatResource(t *testing.T) {
	srv, _, _ := testServer(t)
	contents, err := srv.readPageFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("contents = %v, err = %v", contents, err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != PageFormatURI || !strings.Contains(tc.Text, "---") {
		t.Errorf("resource = %+v", contents[0])
	}
}
