// Package browser drives a headless Chromium to obtain session credentials
// for sources that gate their listing APIs behind client-side scripts.
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/infrastructure/parser"
	"TenderRadar/internal/ports"
)

// ErrBrowserUnavailable is returned when no Chromium executable can be found.
var ErrBrowserUnavailable = errors.New("browser unavailable")

// DefaultCandidates are tried when no explicit executable is configured.
var DefaultCandidates = []string{
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/usr/lib/chromium/chrome",
}

const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// Options tunes the harvester timings.
type Options struct {
	ExecutablePath  string
	Candidates      []string
	NavigateTimeout time.Duration
	SettleWait      time.Duration
	TokenGrace      time.Duration
	FetchTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if len(o.Candidates) == 0 {
		o.Candidates = DefaultCandidates
	}
	if o.NavigateTimeout <= 0 {
		o.NavigateTimeout = 60 * time.Second
	}
	if o.SettleWait <= 0 {
		o.SettleWait = 8 * time.Second
	}
	if o.TokenGrace <= 0 {
		o.TokenGrace = 5 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 20 * time.Second
	}
	return o
}

// Harvester opens short-lived browser sessions and records what the target
// page sends and receives. Harvested credentials are written to the store.
type Harvester struct {
	opts   Options
	store  ports.CredentialStore
	logger *slog.Logger
	exists func(path string) bool
}

var _ ports.CredentialHarvester = (*Harvester)(nil)

// NewHarvester builds a harvester; store may be nil.
func NewHarvester(opts Options, store ports.CredentialStore, logger *slog.Logger) *Harvester {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Harvester{
		opts:   opts.withDefaults(),
		store:  store,
		logger: logger.With("component", "browser"),
		exists: fileExists,
	}
}

// ResolveExecutable returns the configured path when it exists, else the
// first existing candidate.
func ResolveExecutable(override string, candidates []string, exists func(string) bool) (string, bool) {
	if override != "" && exists(override) {
		return override, true
	}
	for _, c := range candidates {
		if exists(c) {
			return c, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WithSession launches Chromium, opens target.EntryURL, waits for the page to
// settle and hands the live session to fn. The browser is torn down on every
// exit path.
func (h *Harvester) WithSession(ctx context.Context, target ports.HarvestTarget, fn func(ports.BrowserSession) error) error {
	bin, ok := ResolveExecutable(h.opts.ExecutablePath, h.opts.Candidates, h.exists)
	if !ok {
		return ErrBrowserUnavailable
	}
	logger := h.logger.With("family", target.Family)

	l := launcher.New().Context(ctx).Bin(bin).Headless(true).NoSandbox(true).
		Set("disable-dev-shm-usage").Set("disable-gpu")
	defer l.Kill()

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: launch %s: %v", ErrBrowserUnavailable, bin, err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	defer func() { _ = b.Close() }()

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      parser.DesktopUserAgent,
		AcceptLanguage: "zh-CN,zh;q=0.9",
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	_, _ = page.EvalOnNewDocument(hideWebdriver)

	rec := newRecorder(target)
	eventCtx, stopEvents := context.WithCancel(ctx)
	defer stopEvents()
	wait := page.Context(eventCtx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Request != nil {
				rec.requestSent(e.RequestID, e.Request.URL)
			}
		},
		func(e *proto.NetworkLoadingFinished) {
			if rec.finished(e.RequestID) {
				rec.addBody(responseBody(page, e.RequestID))
			}
		},
	)
	go wait()

	started := time.Now()
	if err := page.Timeout(h.opts.NavigateTimeout).Navigate(target.EntryURL); err != nil {
		return fmt.Errorf("navigate %s: %w", target.EntryURL, err)
	}
	if err := page.Timeout(h.opts.NavigateTimeout).WaitLoad(); err != nil {
		logger.Warn("page load incomplete", "error", err)
	}
	if err := settle(ctx, h.opts.SettleWait, rec.firstMatch()); err != nil {
		return err
	}
	if target.TokenParam != "" && !rec.hasToken() {
		if err := sleep(ctx, h.opts.TokenGrace); err != nil {
			return err
		}
	}
	if target.TokenParam != "" && !rec.hasToken() && target.GatedURL != "" {
		returned := gatedRequest(page, target.GatedURL, h.opts.FetchTimeout)
		if token := tokenAfterFetch(rec, returned, target.TokenParam); token != "" {
			rec.setToken(token)
		} else {
			logger.Debug("in-page request carried no token", "url", target.GatedURL)
		}
	}
	if target.TokenParam != "" && !rec.hasToken() {
		if token := scanScriptToken(inlineScripts(page), target.TokenParam); token != "" {
			rec.setToken(token)
		}
	}

	cookieURL := target.CookieURL
	if cookieURL == "" {
		cookieURL = target.EntryURL
	}
	if cookies, err := page.Cookies([]string{cookieURL}); err == nil {
		rec.setCookie(cookieHeader(cookies))
	} else {
		logger.Warn("read cookies failed", "error", err)
	}

	capture := rec.snapshot()
	logger.Info("browser session ready",
		"token", capture.Token != "",
		"cookie", capture.Cookie != "",
		"captured_bodies", len(capture.Bodies),
		"elapsed", time.Since(started).Round(time.Millisecond))

	if h.store != nil && capture.Cookie != "" {
		h.store.Put(ctx, domain.Credential{
			Family:     target.Family,
			Cookie:     capture.Cookie,
			Token:      capture.Token,
			CapturedAt: capture.Completed,
			Origin:     "browser",
		})
	}

	return fn(&session{page: page, rec: rec, timeout: h.opts.FetchTimeout})
}

func responseBody(page *rod.Page, id proto.NetworkRequestID) []byte {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(page)
	if err != nil {
		return nil
	}
	if res.Base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(res.Body)
		if err != nil {
			return nil
		}
		return decoded
	}
	return []byte(res.Body)
}

const gatedFetch = `async (url) => {
	try {
		const resp = await fetch(url, { method: 'POST', credentials: 'include', headers: { 'Content-Type': 'application/json' }, body: '{}' });
		return resp.url || url;
	} catch (e) {
		return '';
	}
}`

// gatedRequest calls the gated endpoint from the page so that page scripts
// attach the token; the request itself is observed by the recorder.
func gatedRequest(page *rod.Page, endpoint string, timeout time.Duration) string {
	res, err := page.Timeout(timeout).Eval(gatedFetch, endpoint)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func inlineScripts(page *rod.Page) string {
	res, err := page.Timeout(5 * time.Second).Eval(`() => Array.from(document.scripts).map(s => s.textContent || '').join('\n')`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// settle waits for d, returning early once done is closed.
func settle(ctx context.Context, d time.Duration, done <-chan struct{}) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	case <-timer.C:
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
