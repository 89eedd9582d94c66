package browser

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-rod/rod"

	"TenderRadar/internal/infrastructure/parser"
	"TenderRadar/internal/ports"
)

const inPageFetch = `async (method, url, headers, body) => {
	const init = { method, headers, credentials: 'include' };
	if (body) init.body = body;
	const resp = await fetch(url, init);
	return { status: resp.status, text: await resp.text() };
}`

// session is a live page handed to WithSession callbacks.
type session struct {
	page    *rod.Page
	rec     *recorder
	timeout time.Duration
}

func (s *session) Capture() ports.Capture {
	return s.rec.snapshot()
}

// Fetch runs the request from inside the page so it carries the page's
// cookies and passes its anti-bot checks.
func (s *session) Fetch(ctx context.Context, req ports.BrowserRequest) ([]byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	headers := req.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	res, err := s.page.Context(ctx).Timeout(s.timeout).Eval(inPageFetch, method, req.URL, headers, req.Body)
	if err != nil {
		return nil, fmt.Errorf("in-page fetch %s: %w", req.URL, err)
	}
	status := res.Value.Get("status").Int()
	switch {
	case status == http.StatusForbidden || status == http.StatusPreconditionFailed:
		return nil, fmt.Errorf("%w: in-page fetch %s returned %d", parser.ErrAccessDenied, req.URL, status)
	case status < http.StatusOK || status >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("in-page fetch %s returned %d", req.URL, status)
	}
	return []byte(res.Value.Get("text").Str()), nil
}
