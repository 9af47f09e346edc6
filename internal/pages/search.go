package pages

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/starford/quire/internal/frontmatter"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
)

const (
	// MinQueryLength is the shortest trimmed query, in runes, that is searched.
	MinQueryLength = 2
	// ExcerptLength is the maximum excerpt length in runes before "..." is added.
	ExcerptLength = 200
)

// SearchOutcome holds the hits of a search in traversal order and the
// per-file failures that were skipped.
type SearchOutcome struct {
	Results     []models.SearchResult
	Diagnostics []Diagnostic
}

// Search scans every visible page under root for query, case-insensitively,
// in file names, bodies and metadata. Results follow the tree listing order.
// A limit of 0 returns every hit. Queries whose trimmed length is below
// MinQueryLength return no results without touching the filesystem; longer
// queries are matched as given, surrounding spaces included.
func Search(ctx context.Context, root, query string, limit int, opts ...WalkOption) SearchOutcome {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < MinQueryLength {
		return SearchOutcome{Results: []models.SearchResult{}}
	}
	s := &searcher{
		walker:  newWalker(ctx, root, opts),
		term:    strings.ToLower(query),
		limit:   limit,
		results: []models.SearchResult{},
	}
	s.dir("")
	return SearchOutcome{Results: s.results, Diagnostics: s.diags}
}

type searcher struct {
	*walker
	term    string
	limit   int
	results []models.SearchResult
	diags   []Diagnostic
}

func (s *searcher) full() bool {
	return s.limit > 0 && len(s.results) >= s.limit
}

// dir scans the directory at rel depth-first. Unlike the tree it descends
// into every folder; there is nothing to prune.
func (s *searcher) dir(rel string) {
	entries, err := s.entries(rel)
	if err != nil {
		s.diags = append(s.diags, Diagnostic{Path: rel, Err: err})
		return
	}
	for _, e := range entries {
		if s.full() {
			return
		}
		if err := s.ctx.Err(); err != nil {
			s.diags = append(s.diags, Diagnostic{Path: rel, Err: err})
			return
		}
		if e.dir {
			s.dir(e.rel)
			continue
		}
		hit, err := s.file(e)
		if err != nil {
			s.diags = append(s.diags, Diagnostic{Path: e.rel, Err: err})
			continue
		}
		if hit != nil {
			s.results = append(s.results, *hit)
		}
	}
}

func (s *searcher) file(e dirEntry) (*models.SearchResult, error) {
	data, err := os.ReadFile(s.abs(e.rel))
	if err != nil {
		return nil, err
	}
	md, body := frontmatter.Decode(data)
	mdJSON, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	if !s.contains(e.file) && !s.contains(body) && !s.contains(string(mdJSON)) {
		return nil, nil
	}
	title := md.Title()
	if title == "" {
		title = e.name
	}
	return &models.SearchResult{
		Path:     storage.LogicalPath(e.rel),
		Title:    title,
		Excerpt:  excerpt(body, s.term),
		Metadata: md,
	}, nil
}

func (s *searcher) contains(text string) bool {
	return strings.Contains(strings.ToLower(text), s.term)
}

// excerpt returns the first non-blank body line containing term, or the start
// of the body when the match was elsewhere. term must be lower case.
func excerpt(body, term string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) != "" && strings.Contains(strings.ToLower(line), term) {
			return truncate(line)
		}
	}
	return truncate(body)
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= ExcerptLength {
		return s
	}
	return string([]rune(s)[:ExcerptLength]) + "..."
}
