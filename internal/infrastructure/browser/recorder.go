package browser

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"TenderRadar/internal/ports"
)

// recorder collects what the page does on the network while it loads.
// Callbacks arrive from the event goroutine; Capture may be read at any time.
type recorder struct {
	target ports.HarvestTarget

	mu       sync.Mutex
	token    string
	cookie   string
	wanted   map[proto.NetworkRequestID]string
	bodies   [][]byte
	requests []string

	matched     chan struct{}
	matchedOnce sync.Once
}

func newRecorder(target ports.HarvestTarget) *recorder {
	return &recorder{
		target:  target,
		wanted:  map[proto.NetworkRequestID]string{},
		matched: make(chan struct{}),
	}
}

// firstMatch is closed once a token or an intercepted body has been seen.
func (r *recorder) firstMatch() <-chan struct{} {
	return r.matched
}

func (r *recorder) signal() {
	r.matchedOnce.Do(func() { close(r.matched) })
}

func (r *recorder) matches(rawURL string) bool {
	return r.target.InterceptPattern != "" && strings.Contains(rawURL, r.target.InterceptPattern)
}

// requestSent records the token of an intercepted request and remembers its
// id so the response body can be read once loading finishes.
func (r *recorder) requestSent(id proto.NetworkRequestID, rawURL string) {
	if !r.matches(rawURL) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wanted[id] = rawURL
	r.requests = append(r.requests, rawURL)
	if token := tokenFromURL(rawURL, r.target.TokenParam); token != "" {
		r.token = token
		r.signal()
	}
}

// finished reports whether the body of id should be read.
func (r *recorder) finished(id proto.NetworkRequestID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.wanted[id]
	delete(r.wanted, id)
	return ok
}

func (r *recorder) addBody(body []byte) {
	if len(body) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, body)
	r.signal()
}

func (r *recorder) setToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token == "" {
		r.token = token
	}
}

func (r *recorder) setCookie(cookie string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cookie = cookie
}

func (r *recorder) hasToken() bool {
	return r.currentToken() != ""
}

func (r *recorder) currentToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

func (r *recorder) snapshot() ports.Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	bodies := make([][]byte, len(r.bodies))
	copy(bodies, r.bodies)
	return ports.Capture{
		Token:     r.token,
		Cookie:    r.cookie,
		Bodies:    bodies,
		Requests:  append([]string(nil), r.requests...),
		Completed: time.Now(),
	}
}

func tokenFromURL(rawURL, param string) string {
	if param == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(param)
}

// tokenAfterFetch prefers a token the recorder saw on the in-page request itself
// (page scripts often decorate outgoing calls), then the final response URL.
func tokenAfterFetch(rec *recorder, returnedURL, param string) string {
	if token := rec.currentToken(); token != "" {
		return token
	}
	return tokenFromURL(returnedURL, param)
}

// scanScriptToken looks for an inline assignment of the token parameter,
// either as a query string fragment or as a JS property.
func scanScriptToken(scripts, param string) string {
	if param == "" || scripts == "" {
		return ""
	}
	quoted := regexp.QuoteMeta(param)
	patterns := []*regexp.Regexp{
		regexp.MustCompile(quoted + `=([A-Za-z0-9_\-.]+)`),
		regexp.MustCompile(`["']?` + quoted + `["']?\s*:\s*["']([^"']+)["']`),
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(scripts); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

// cookieHeader renders a cookie jar as a Cookie request header value.
func cookieHeader(cookies []*proto.NetworkCookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
