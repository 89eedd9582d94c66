package parser

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"TenderRadar/internal/ports"
)

// DefaultContentSelectors are tried in order, most specific first.
var DefaultContentSelectors = []string{".content", ".article-content", "#content", ".article", ".main", "body"}

const (
	defaultMinContentLength = 50
	defaultFallbackLength   = 4000
)

// DomainAuth tells the fetcher which harvested cookie and referer a host needs.
type DomainAuth struct {
	Family  string
	Referer string
}

// Content formats a DetailFetcher can store.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// DetailOptions tunes content extraction.
type DetailOptions struct {
	// Format is FormatText (default) or FormatMarkdown. Markdown keeps the
	// tables and lists of the matched node; the body fallback is always text.
	Format         string
	Selectors      []string
	MinLength      int
	FallbackLength int
	Domains        map[string]DomainAuth
}

// DetailFetcher extracts the readable body of announcement pages.
type DetailFetcher struct {
	client *http.Client
	store  ports.CredentialStore
	opts   DetailOptions
	logger *slog.Logger
}

var _ ports.DetailFetcher = (*DetailFetcher)(nil)

// NewDetailFetcher applies defaults for zero options.
func NewDetailFetcher(client *http.Client, store ports.CredentialStore, opts DetailOptions, logger *slog.Logger) *DetailFetcher {
	if client == nil {
		client = NewHTTPClient(ClientOptions{})
	}
	if len(opts.Selectors) == 0 {
		opts.Selectors = DefaultContentSelectors
	}
	if opts.MinLength <= 0 {
		opts.MinLength = defaultMinContentLength
	}
	if opts.FallbackLength <= 0 {
		opts.FallbackLength = defaultFallbackLength
	}
	return &DetailFetcher{client: client, store: store, opts: opts, logger: nopLogger(logger)}
}

// FetchContent returns the first selector text longer than MinLength, else a
// prefix of the whole body text. Failures yield "".
func (f *DetailFetcher) FetchContent(ctx context.Context, pageURL string) string {
	if strings.TrimSpace(pageURL) == "" {
		return ""
	}

	doc, err := fetchDocument(ctx, f.client, pageURL, f.headersFor(ctx, pageURL))
	if err != nil {
		f.logger.Warn("fetch detail failed", "url", pageURL, "error", err)
		return ""
	}
	doc.Find("script, style, noscript").Remove()

	for _, sel := range f.opts.Selectors {
		node := doc.Find(sel)
		text := strings.TrimSpace(node.Text())
		if utf8.RuneCountInString(text) <= f.opts.MinLength {
			continue
		}
		if f.opts.Format == FormatMarkdown {
			if markdown, err := toMarkdown(node.First()); err == nil && markdown != "" {
				return markdown
			}
		}
		return text
	}
	return truncateRunes(strings.TrimSpace(doc.Find("body").Text()), f.opts.FallbackLength)
}

func (f *DetailFetcher) headersFor(ctx context.Context, pageURL string) map[string]string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	auth, ok := f.opts.Domains[strings.ToLower(u.Hostname())]
	if !ok {
		return nil
	}
	headers := map[string]string{"Referer": auth.Referer}
	if f.store != nil && auth.Family != "" {
		if cred, ok := f.store.Get(ctx, auth.Family); ok {
			headers["Cookie"] = cred.Cookie
		}
	}
	return headers
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}

func toMarkdown(node *goquery.Selection) (string, error) {
	html, err := node.Html()
	if err != nil {
		return "", err
	}
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(markdown), nil
}
