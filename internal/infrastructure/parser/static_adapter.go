package parser

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

// StaticAdapter harvests server-rendered listing pages via CSS selectors.
type StaticAdapter struct {
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.SourceAdapter = (*StaticAdapter)(nil)

// NewStaticAdapter wires an HTTP client; nil falls back to the shared defaults.
func NewStaticAdapter(client *http.Client, logger *slog.Logger) *StaticAdapter {
	if client == nil {
		client = NewHTTPClient(ClientOptions{})
	}
	return &StaticAdapter{client: client, logger: nopLogger(logger), now: time.Now}
}

// Harvest fetches the listing once and extracts its rows.
func (a *StaticAdapter) Harvest(ctx context.Context, source domain.Source) []domain.CandidateItem {
	cfg, err := decodeSelectorConfig(source)
	if err != nil {
		a.logger.Warn("static source skipped", "site", source.Name, "error", err)
		return nil
	}

	doc, err := fetchDocument(ctx, a.client, source.ListingURL, nil)
	if err != nil {
		a.logger.Error("fetch listing failed", "site", source.Name, "url", source.ListingURL, "error", err)
		return nil
	}

	items := extractListing(doc, cfg, source, a.now())
	a.logger.Debug("listing parsed", "site", source.Name, "items", len(items))
	return items
}

func nopLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.DiscardHandler)
}
