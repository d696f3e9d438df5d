package parser

import (
	"strings"
	"testing"
	"time"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntype: link\nurl: https://go.dev\ntags:\n  - go\n  - notes\n---\n# Hello\nBody text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Hello" {
		t.Errorf("title = %q, want %q", r.Title, "Hello")
	}
	if len(r.Tags) < 2 || r.Tags[0] != "go" || r.Tags[1] != "notes" {
		t.Errorf("tags = %v, want [go notes]", r.Tags)
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
	if r.Frontmatter == nil || r.Frontmatter.Type != "link" || r.Frontmatter.URL != "https://go.dev" {
		t.Errorf("frontmatter = %+v", r.Frontmatter)
	}
}

func TestParse_ScalarTags(t *testing.T) {
	r, _ := Parse([]byte("---\ntags: solo\n---\nbody"))
	if len(r.Tags) != 1 || r.Tags[0] != "solo" {
		t.Errorf("tags = %v, want [solo]", r.Tags)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	input := []byte("# Just a heading\nSome text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
	if r.Body != string(input) {
		t.Errorf("body should be the whole input on fallback")
	}
}

func TestResult_PublishedAt(t *testing.T) {
	r, _ := Parse([]byte("---\npublished: 2024-05-02\n---\nx"))
	got := r.PublishedAt()
	want := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", got, want)
	}

	r, _ = Parse([]byte("---\npublished: soon\n---\nx"))
	if r.PublishedAt() != nil {
		t.Error("unparseable date should yield nil")
	}
}

func TestExtractLinks_Basic(t *testing.T) {
	body := "See [[Note A]] and [[Note B|alias]].\nAlso [[note a]] again."
	links := extractLinks(body)
	if len(links) != 2 {
		t.Fatalf("len(links) = %d, want 2", len(links))
	}
	if links[0] != "Note A" || links[1] != "Note B" {
		t.Errorf("links = %v", links)
	}
}

func TestExtractLinks_EmptyTarget(t *testing.T) {
	links := extractLinks("see [[ ]] and [[|alias]]")
	if len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := &Frontmatter{Tags: stringList{"alpha"}}
	tags := extractTags("Some text #beta and #alpha again.", fm)
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "beta" {
		t.Errorf("tags = %v, want [alpha beta]", tags)
	}
}

func TestDeriveTitle_FrontmatterOverH1(t *testing.T) {
	title := deriveTitle(&Frontmatter{Title: "FM Title"}, "# H1 Title\ntext")
	if title != "FM Title" {
		t.Errorf("title = %q, want %q", title, "FM Title")
	}
}

func TestDeriveTitle_H1Fallback(t *testing.T) {
	title := deriveTitle(nil, "some text\n# My Heading\nmore")
	if title != "My Heading" {
		t.Errorf("title = %q, want %q", title, "My Heading")
	}
}

func TestPlainText_StripsMarkup(t *testing.T) {
	md := "# Title\n\nSome **bold** and [a link](https://x.test) plus [[Wiki Note]].\n\n<div>html</div>\n\n```go\nfmt.Println(1)\n```\n"
	got := PlainText(md)

	for _, want := range []string{"Title", "Some bold and a link plus Wiki Note.", "fmt.Println(1)"} {
		if !strings.Contains(got, want) {
			t.Errorf("PlainText missing %q in %q", want, got)
		}
	}
	for _, bad := range []string{"**", "](", "<div>", "[[", "```"} {
		if strings.Contains(got, bad) {
			t.Errorf("PlainText kept markup %q in %q", bad, got)
		}
	}
}

func TestPlainText_Empty(t *testing.T) {
	if got := PlainText("   \n"); got != "" {
		t.Errorf("PlainText = %q, want empty", got)
	}
}
