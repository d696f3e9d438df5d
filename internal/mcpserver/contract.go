package mcpserver

// NoteFormatContract describes how notes are submitted to noteweave and
// what background enrichment adds to them.
const NoteFormatContract = `# noteweave Note Format Contract

A note is one captured item. It is created PENDING and enriched in the
background; enrichment fields appear only once processStatus is DONE.

## Types

| type  | content                                   |
|-------|-------------------------------------------|
| LINK  | absolute http(s) URL of the page          |
| TEXT  | Markdown body                             |
| MEDIA | file name or URL of the media, never data |

## TEXT notes

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL – defaults to the first H1
tags:                               # OPTIONAL – YAML list or single value
  - tag-one
published: 2025-01-15               # OPTIONAL – ISO-8601 date or datetime
---

Body text in standard Markdown. Inline #tags are collected too.

Use [[Other note title]] to link another note by its title.
Use [[Other note title|alias]] for display text that differs from the target.
` + "```" + `

## Rules

1. **Content is immutable.** Submit new content as a new note; only the
   title and tags can be edited.
2. **Duplicates are rejected.** The same type and content (ignoring
   surrounding whitespace) can only be stored once.
3. **Wikilinks** resolve case-insensitively against existing note titles
   when the note is created. Unresolved targets are ignored.
4. **Tags** are matched case-insensitively and stored as written.
5. **Encoding** is UTF-8.

## Enrichment

Once DONE a note carries summary, excerpt, keyInsights, topics
(lowercase, deduplicated) and sentiment (positive, neutral or negative).
A FAILED note keeps its diagnostic and can be retried with reprocess_note.
Related notes are ranked from shared topics and embedding similarity;
notes that are not DONE have no related notes.
`
