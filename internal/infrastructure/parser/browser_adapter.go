package parser

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

// BrowserAdapter harvests token-gated APIs. Tiers, in order: rows observed
// passively by the browser, the same requests replayed inside the page, and
// a direct HTTP call with the harvested cookie and token.
type BrowserAdapter struct {
	client    *http.Client
	harvester ports.CredentialHarvester
	store     ports.CredentialStore
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.SourceAdapter = (*BrowserAdapter)(nil)

// NewBrowserAdapter wires the harvester and the process-wide credential store.
func NewBrowserAdapter(client *http.Client, harvester ports.CredentialHarvester, store ports.CredentialStore, logger *slog.Logger) *BrowserAdapter {
	if client == nil {
		client = NewHTTPClient(ClientOptions{})
	}
	return &BrowserAdapter{
		client:    client,
		harvester: harvester,
		store:     store,
		logger:    nopLogger(logger),
		now:       time.Now,
	}
}

// Harvest runs the tiers and returns candidates deduplicated by title+URL.
func (a *BrowserAdapter) Harvest(ctx context.Context, source domain.Source) []domain.CandidateItem {
	cfg, err := resolveAPIConfig(source)
	if err != nil {
		a.logger.Warn("browser source skipped", "site", source.Name, "error", err)
		return nil
	}
	logger := a.logger.With("site", source.Name, "family", cfg.Family)
	collector := newItemCollector()
	done := map[string]bool{}

	if a.store != nil {
		if cred, ok := a.store.Override(cfg.Family); ok {
			logger.Info("credential override present, browser skipped")
			a.direct(ctx, cfg, source, cred, done, collector, logger)
			return collector.items
		}
	}

	if a.harvester != nil {
		captured := false
		err := a.harvester.WithSession(ctx, cfg.target(source), func(session ports.BrowserSession) error {
			captured = a.inBrowser(ctx, cfg, source, session, done, collector, logger)
			return nil
		})
		if err != nil {
			logger.Warn("browser session unavailable", "error", err)
		}
		if captured {
			return collector.items
		}
	}

	var cred domain.Credential
	if a.store != nil {
		cred, _ = a.store.Get(ctx, cfg.Family)
	}
	if !usable(cred, cfg) {
		if collector.size() == 0 {
			logger.Warn("no harvested credential, source yields nothing")
		}
		return collector.items
	}
	// Type codes the in-page fetch could not serve fall through to direct.
	a.direct(ctx, cfg, source, cred, done, collector, logger)
	return collector.items
}

// inBrowser reports true when passive capture alone produced rows.
func (a *BrowserAdapter) inBrowser(ctx context.Context, cfg apiConfig, source domain.Source, session ports.BrowserSession, done map[string]bool, collector *itemCollector, logger *slog.Logger) bool {
	capture := session.Capture()
	extractions := extractionsFor(cfg.RowsPath)
	for _, body := range capture.Bodies {
		rows, ok := ExtractRows(body, extractions)
		if !ok {
			continue
		}
		addRows(collector, rows, cfg, source, a.now())
	}
	if collector.size() > 0 {
		logger.Info("rows captured from page traffic", "items", collector.size())
		return true
	}

	token := capture.Token
	fetch := func(ctx context.Context, req request) ([]byte, error) {
		return session.Fetch(ctx, ports.BrowserRequest{
			Method:  req.Method,
			URL:     req.URL,
			Headers: withContentType(req.Headers, req.ContentType),
			Body:    req.Body,
		})
	}
	for _, code := range cfg.typeCodes() {
		rows := paginate(ctx, cfg, code, token, fetch, logger.With("tier", "browser", "type", code))
		if addRows(collector, rows, cfg, source, a.now()) > 0 {
			done[code] = true
		}
	}
	return false
}

func (a *BrowserAdapter) direct(ctx context.Context, cfg apiConfig, source domain.Source, cred domain.Credential, done map[string]bool, collector *itemCollector, logger *slog.Logger) {
	fetch := directFetcher(a.client, cred)
	for _, code := range cfg.typeCodes() {
		if done[code] {
			continue
		}
		rows := paginate(ctx, cfg, code, cred.Token, fetch, logger.With("tier", "direct", "type", code))
		addRows(collector, rows, cfg, source, a.now())
		done[code] = true
	}
}

// usable reports whether a credential can authorize direct calls: a cookie
// is always needed, a token only when the endpoint takes one.
func usable(cred domain.Credential, cfg apiConfig) bool {
	if cred.Cookie == "" {
		return false
	}
	return cfg.TokenParam == "" || cred.Token != ""
}

func withContentType(headers map[string]string, contentType string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		if k == "Referer" {
			continue
		}
		out[k] = v
	}
	if contentType != "" {
		out["Content-Type"] = contentType
	}
	return out
}

// isAccessDenied reports anti-bot rejections.
func isAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
