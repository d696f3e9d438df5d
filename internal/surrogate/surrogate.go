// Package surrogate derives the text representation of a note that is sent
// to the AI capability. Raw binary content is never part of it.
package surrogate

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/noteweave/internal/models"
	"github.com/starford/noteweave/internal/parser"
)

// DefaultMaxChars bounds the surrogate handed to the model.
const DefaultMaxChars = 8000

// Surrogate is the textual stand-in for a note.
type Surrogate struct {
	Text string
	// PublishedAt is reported by some LINK pages.
	PublishedAt *time.Time
}

// Fetcher loads page metadata for LINK notes.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*PageMeta, error)
}

// Builder turns notes into surrogates.
type Builder struct {
	fetcher  Fetcher
	maxChars int
	logger   *slog.Logger
}

// NewBuilder returns a Builder. A nil fetcher disables page lookups, so LINK
// notes fall back to their title, tags and URL.
func NewBuilder(fetcher Fetcher, maxChars int, logger *slog.Logger) *Builder {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{fetcher: fetcher, maxChars: maxChars, logger: logger}
}

// Build returns the surrogate for n. It never fails on a page lookup error;
// an empty surrogate is an error since there would be nothing to enrich.
func (b *Builder) Build(ctx context.Context, n *models.Note) (Surrogate, error) {
	var s Surrogate
	switch n.Type {
	case models.NoteTypeLink:
		s = b.link(ctx, n)
	case models.NoteTypeMedia:
		s.Text = media(n)
	default:
		s.Text = joinNonEmpty(n.Title, parser.PlainText(n.Content))
	}

	s.Text = truncate(strings.TrimSpace(s.Text), b.maxChars)
	if s.Text == "" {
		return Surrogate{}, fmt.Errorf("surrogate: note %s has no usable text", n.ID)
	}
	return s, nil
}

func (b *Builder) link(ctx context.Context, n *models.Note) Surrogate {
	target := strings.TrimSpace(n.Content)
	fallback := Surrogate{Text: joinNonEmpty(n.Title, tagLine(n.Tags), target)}
	if b.fetcher == nil {
		return fallback
	}

	meta, err := b.fetcher.Fetch(ctx, target)
	if err != nil {
		b.logger.Warn("link metadata unavailable",
			slog.String("note_id", n.ID),
			slog.String("url", target),
			slog.String("error", err.Error()),
		)
		return fallback
	}
	title := meta.Title
	if title == "" {
		title = n.Title
	}
	return Surrogate{
		Text:        joinNonEmpty(title, meta.Description, tagLine(n.Tags), meta.Body, target),
		PublishedAt: meta.PublishedAt,
	}
}

// media describes a media note by its title, tags and file name. The
// content is a reference to the file and is never inlined.
func media(n *models.Note) string {
	return joinNonEmpty(n.Title, tagLine(n.Tags), fileName(n.Content))
}

func fileName(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		ref = u.Path
	}
	base := path.Base(ref)
	if base == "." || base == "/" {
		return ""
	}
	if dec, err := url.PathUnescape(base); err == nil {
		base = dec
	}
	return strings.NewReplacer("_", " ", "-", " ").Replace(base)
}

func tagLine(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "Tags: " + strings.Join(tags, ", ")
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	r := []rune(s)
	return string(r[:maxChars])
}
