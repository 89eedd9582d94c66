package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

// SessionAdapter harvests server-rendered listings that require a session
// cookie. An access-denied answer triggers one retry inside a browser.
type SessionAdapter struct {
	client    *http.Client
	harvester ports.CredentialHarvester
	store     ports.CredentialStore
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.SourceAdapter = (*SessionAdapter)(nil)

// NewSessionAdapter wires the shared client, harvester and credential store.
func NewSessionAdapter(client *http.Client, harvester ports.CredentialHarvester, store ports.CredentialStore, logger *slog.Logger) *SessionAdapter {
	if client == nil {
		client = NewHTTPClient(ClientOptions{})
	}
	return &SessionAdapter{
		client:    client,
		harvester: harvester,
		store:     store,
		logger:    nopLogger(logger),
		now:       time.Now,
	}
}

// Harvest fetches the listing with the harvested cookie.
func (a *SessionAdapter) Harvest(ctx context.Context, source domain.Source) []domain.CandidateItem {
	cfg, err := decodeSelectorConfig(source)
	if err != nil {
		a.logger.Warn("session source skipped", "site", source.Name, "error", err)
		return nil
	}
	family := source.Family()
	logger := a.logger.With("site", source.Name, "family", family)

	headers := map[string]string{"Referer": orDefault(source.BaseURL, source.ListingURL)}
	if a.store != nil && family != "" {
		if cred, ok := a.store.Get(ctx, family); ok && cred.Cookie != "" {
			headers["Cookie"] = cred.Cookie
		} else {
			logger.Debug("no session cookie yet, trying anonymously")
		}
	}

	doc, err := fetchDocument(ctx, a.client, source.ListingURL, headers)
	if isAccessDenied(err) {
		logger.Info("listing blocked, retrying through browser", "error", err)
		doc, err = a.retryInBrowser(ctx, source, family)
	}
	if err != nil {
		logger.Error("fetch listing failed", "url", source.ListingURL, "error", err)
		return nil
	}

	items := extractListing(doc, cfg, source, a.now())
	logger.Debug("listing parsed", "items", len(items))
	return items
}

func (a *SessionAdapter) retryInBrowser(ctx context.Context, source domain.Source, family string) (*goquery.Document, error) {
	if a.harvester == nil {
		return nil, fmt.Errorf("%w and no browser configured", ErrAccessDenied)
	}
	target := ports.HarvestTarget{
		Family:    family,
		EntryURL:  source.ListingURL,
		CookieURL: orDefault(source.BaseURL, source.ListingURL),
	}

	var doc *goquery.Document
	err := a.harvester.WithSession(ctx, target, func(session ports.BrowserSession) error {
		payload, err := session.Fetch(ctx, ports.BrowserRequest{Method: http.MethodGet, URL: source.ListingURL})
		if err != nil {
			return fmt.Errorf("in-page listing fetch: %w", err)
		}
		parsed, err := parseDocument(payload, "text/html; charset=utf-8")
		if err != nil {
			return err
		}
		doc = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("browser retry: %w", err)
	}
	return doc, nil
}
