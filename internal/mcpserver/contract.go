package mcpserver

// PageFormat describes how Quire stores pages, for LLM clients that read or
// edit the files directly.
const PageFormat = `# Quire Page Format

Each page is one UTF-8 Markdown file under the storage root. The logical
path ` + "`projects/ideas`" + ` is stored at ` + "`<root>/projects/ideas.md`" + `.

## Structure

` + "```" + `markdown
---
title: Project ideas            # optional display title
tags:                           # optional list of strings
  - planning
created: 2025-01-15T09:30:00.000Z
updated: 2025-01-20T17:02:11.000Z
---
Body text in standard Markdown.
` + "```" + `

## Rules

1. The header starts with ` + "`---`" + ` on the very first line and ends at the
   next line that is exactly ` + "`---`" + `. A file without it is all body.
2. Header values are strings, numbers, booleans or lists of strings.
3. ` + "`created`" + ` is set on the first save and kept afterwards; ` + "`updated`" + ` is set on
   every save. Both are ISO-8601 UTC timestamps. The write_page tool manages
   them, so pass only the body and any other metadata.
4. Paths use forward slashes, no ` + "`..`" + ` segments and no ` + "`.md`" + ` suffix.
   Folders are created on demand.
5. Names starting with ` + "`.`" + ` are hidden from listings and search.
`
