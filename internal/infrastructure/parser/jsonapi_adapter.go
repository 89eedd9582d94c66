package parser

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

// pageFetcher performs one already-built request and returns the raw payload.
type pageFetcher func(ctx context.Context, req request) ([]byte, error)

// JSONAPIAdapter harvests paginated JSON endpoints directly over HTTP.
type JSONAPIAdapter struct {
	client *http.Client
	store  ports.CredentialStore
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.SourceAdapter = (*JSONAPIAdapter)(nil)

// NewJSONAPIAdapter wires the shared client; store may be nil for open APIs.
func NewJSONAPIAdapter(client *http.Client, store ports.CredentialStore, logger *slog.Logger) *JSONAPIAdapter {
	if client == nil {
		client = NewHTTPClient(ClientOptions{})
	}
	return &JSONAPIAdapter{client: client, store: store, logger: nopLogger(logger), now: time.Now}
}

// Harvest walks every type code and page of the source's endpoint.
func (a *JSONAPIAdapter) Harvest(ctx context.Context, source domain.Source) []domain.CandidateItem {
	cfg, err := resolveAPIConfig(source)
	if err != nil {
		a.logger.Warn("api source skipped", "site", source.Name, "error", err)
		return nil
	}

	var cred domain.Credential
	if a.store != nil && cfg.Family != "" {
		cred, _ = a.store.Get(ctx, cfg.Family)
	}

	collector := newItemCollector()
	fetch := directFetcher(a.client, cred)
	for _, code := range cfg.typeCodes() {
		rows := paginate(ctx, cfg, code, cred.Token, fetch, a.logger.With("site", source.Name, "type", code))
		addRows(collector, rows, cfg, source, a.now())
	}
	a.logger.Debug("api harvest done", "site", source.Name, "items", collector.size())
	return collector.items
}

// directFetcher performs requests out of the browser with harvested values.
func directFetcher(client *http.Client, cred domain.Credential) pageFetcher {
	return func(ctx context.Context, req request) ([]byte, error) {
		headers := make(map[string]string, len(req.Headers)+1)
		for k, v := range req.Headers {
			headers[k] = v
		}
		if cred.Cookie != "" {
			headers["Cookie"] = cred.Cookie
		}
		req.Headers = headers
		payload, _, err := do(ctx, client, req)
		return payload, err
	}
}

// paginate requests pages until one returns zero rows, a request fails, or
// the page cap is reached.
func paginate(ctx context.Context, cfg apiConfig, typeCode, token string, fetch pageFetcher, logger *slog.Logger) []gjson.Result {
	extractions := extractionsFor(cfg.RowsPath)
	var all []gjson.Result
	for _, page := range cfg.pages() {
		req, err := cfg.build(typeCode, page, token)
		if err != nil {
			logger.Warn("build api request failed", "error", err)
			return all
		}
		payload, err := fetch(ctx, req)
		if err != nil {
			logger.Warn("api request failed", "page", page, "error", err)
			return all
		}
		rows, ok := ExtractRows(payload, extractions)
		if !ok {
			logger.Warn("unrecognized api response", "page", page, "bytes", len(payload))
			return all
		}
		logger.Debug("api page fetched", "page", page, "rows", len(rows))
		if len(rows) == 0 {
			return all
		}
		all = append(all, rows...)
	}
	return all
}

func addRows(collector *itemCollector, rows []gjson.Result, cfg apiConfig, source domain.Source, now time.Time) int {
	base := orDefault(source.BaseURL, cfg.Endpoint)
	added := 0
	for _, row := range rows {
		item, ok := mapRow(row, cfg.DetailURL, base, source, now)
		if !ok {
			continue
		}
		if collector.add(item) {
			added++
		}
	}
	return added
}
