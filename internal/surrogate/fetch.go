package surrogate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta is what a LINK note's page says about itself.
type PageMeta struct {
	Title       string
	Description string
	Body        string // leading paragraph text
	PublishedAt *time.Time
}

// HTTPFetcher reads page metadata over HTTP.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	bodyChars int
}

// NewHTTPFetcher returns a fetcher with the given request timeout and read
// limit.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; noteweave/1.0)"
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBytes:  maxBytes,
		bodyChars: 2000,
	}
}

// Fetch downloads rawURL and extracts its metadata.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*PageMeta, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: HTTP %d", resp.StatusCode)
	}
	return ParsePage(io.LimitReader(resp.Body, f.maxBytes), f.bodyChars)
}

// ParsePage extracts title, description, publication time and the leading
// paragraph text from an HTML document. Open Graph values win over the
// plain <title> and description meta.
func ParsePage(r io.Reader, bodyChars int) (*PageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse html: %w", err)
	}

	meta := &PageMeta{
		Title:       firstNonEmpty(metaContent(doc, `meta[property="og:title"]`), doc.Find("title").First().Text()),
		Description: firstNonEmpty(metaContent(doc, `meta[property="og:description"]`), metaContent(doc, `meta[name="description"]`)),
	}
	if ts := firstNonEmpty(
		metaContent(doc, `meta[property="article:published_time"]`),
		attr(doc.Find("time[datetime]").First(), "datetime"),
	); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			t = t.UTC()
			meta.PublishedAt = &t
		}
	}

	var b strings.Builder
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		txt := strings.Join(strings.Fields(s.Text()), " ")
		if txt == "" {
			return true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(txt)
		return b.Len() < bodyChars
	})
	meta.Body = truncate(b.String(), bodyChars)
	return meta, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	return attr(doc.Find(selector).First(), "content")
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
