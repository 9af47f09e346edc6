// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the wiki's pages to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/frontmatter"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/pages"
)

// PageFormatURI addresses the page format resource.
const PageFormatURI = "quire://page-format"

// defaultSearchLimit caps search_pages results when no limit is given.
const defaultSearchLimit = 20

// Server wraps the MCP server with page tools.
type Server struct {
	mcp   *server.MCPServer
	pages *pages.Store
}

// New creates a new MCP server with all page tools registered.
func New(store *pages.Store, version string) *Server {
	s := &Server{pages: store}

	s.mcp = server.NewMCPServer(
		"Quire",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List all pages as a folder tree (folders first, then pages, alphabetical)."),
		mcp.WithString("folder", mcp.Description("Optional folder path to list (empty for the whole wiki)")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read a page: its metadata as JSON followed by the Markdown body."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Logical page path without extension (e.g. projects/ideas)")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("write_page",
		mcp.WithDescription("Create or replace a page. created/updated timestamps are managed automatically. "+
			"Read the "+PageFormatURI+" resource for the file format."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Logical page path without extension; folders are created as needed")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown body without a YAML header")),
		mcp.WithObject("metadata", mcp.Description("Optional metadata such as title and tags")),
	), s.writePage)

	s.mcp.AddTool(mcp.NewTool("delete_page",
		mcp.WithDescription("Delete a page."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Logical page path without extension")),
	), s.deletePage)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Case-insensitive search through page names, bodies and metadata. "+
			"Queries shorter than two characters return nothing."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search term")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchPages)

	s.mcp.AddResource(
		mcp.NewResource(PageFormatURI, "Page Format",
			mcp.WithResourceDescription("How pages are stored on disk: YAML header and Markdown body."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPageFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns a store error into a tool-level error result.
func toolError(path string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path))
	case errors.Is(err, apperr.ErrInvalidPath):
		return mcp.NewToolResultError(fmt.Sprintf("invalid path: %s", path))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodes := s.pages.Tree(ctx)
	folder := strings.Trim(req.GetString("folder", ""), "/")
	if folder == "" {
		return jsonResult(nodes), nil
	}
	sub, ok := findFolder(nodes, folder)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("folder not found: %s", folder)), nil
	}
	return jsonResult(sub), nil
}

// findFolder returns the children of the folder at path.
func findFolder(nodes []models.TreeNode, path string) ([]models.TreeNode, bool) {
	for _, n := range nodes {
		if n.Type != models.NodeFolder {
			continue
		}
		if n.Path == path {
			return n.Children, true
		}
		if strings.HasPrefix(path, n.Path+"/") {
			return findFolder(n.Children, path)
		}
	}
	return nil, false
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.pages.Read(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	md, err := json.Marshal(doc.Metadata)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("path: %s\nmetadata: %s\n\n%s", doc.Path, md, doc.Body)), nil
}

func (s *Server) writePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var md *frontmatter.Metadata
	if raw, ok := req.GetArguments()["metadata"]; ok && raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		md = frontmatter.New()
		if err := json.Unmarshal(data, md); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid metadata: %v", err)), nil
		}
	}
	if _, err := s.pages.Write(ctx, path, content, md); err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", path)), nil
}

func (s *Server) deletePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.pages.Delete(ctx, path); err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", path)), nil
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultSearchLimit)
	return jsonResult(s.pages.Search(ctx, query, limit)), nil
}

func (s *Server) readPageFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      PageFormatURI,
			MIMEType: "text/markdown",
			Text:     PageFormat,
		},
	}, nil
}
