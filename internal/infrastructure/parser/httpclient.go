package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// DesktopUserAgent is sent on every outbound request.
const DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

const (
	defaultTimeout   = 20 * time.Second
	maxResponseBytes = 8 << 20
	acceptLanguage   = "zh-CN,zh;q=0.9"
)

// ErrAccessDenied is returned when a site answers with an anti-bot status.
var ErrAccessDenied = errors.New("access denied")

// ClientOptions tunes the shared outbound HTTP client.
type ClientOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// NewHTTPClient builds the client shared by adapters and the detail fetcher.
// All requests pass through a token bucket.
func NewHTTPClient(opts ClientOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 2
	}
	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &rateLimitedTransport{
			base:    http.DefaultTransport,
			limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		},
	}
}

type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return t.base.RoundTrip(req)
}

// request is a fully built outbound call.
type request struct {
	Method      string
	URL         string
	Body        string
	ContentType string
	Headers     map[string]string
}

func do(ctx context.Context, client *http.Client, r request) ([]byte, string, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != "" {
		body = strings.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", DesktopUserAgent)
	req.Header.Set("Accept-Language", acceptLanguage)
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	for k, v := range r.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request %s: %w", r.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusPreconditionFailed {
		return nil, "", fmt.Errorf("%w: %s returned %s", ErrAccessDenied, r.URL, resp.Status)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", fmt.Errorf("%s returned %s", r.URL, resp.Status)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return payload, resp.Header.Get("Content-Type"), nil
}

// fetchDocument GETs a page and parses it, decoding legacy charsets such as GBK.
func fetchDocument(ctx context.Context, client *http.Client, pageURL string, headers map[string]string) (*goquery.Document, error) {
	payload, contentType, err := do(ctx, client, request{
		Method:  http.MethodGet,
		URL:     pageURL,
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}
	return parseDocument(payload, contentType)
}

func parseDocument(payload []byte, contentType string) (*goquery.Document, error) {
	reader, err := charset.NewReader(bytes.NewReader(payload), contentType)
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}
