package domain

import "strings"

// AdapterKind selects the harvesting strategy for a source.
type AdapterKind string

const (
	AdapterStatic      AdapterKind = "static_selector"
	AdapterJSONAPI     AdapterKind = "json_api"
	AdapterBrowser     AdapterKind = "browser_assisted"
	AdapterHTMLSession AdapterKind = "html_session"
)

// Source is a configured origin to harvest. It is owned by the admin surface
// and read-only here.
type Source struct {
	ID         int64
	Name       string
	BaseURL    string
	ListingURL string
	// CrawlerType is the raw type string as stored (e.g. "huaneng_api").
	CrawlerType string
	Config      map[string]any
	Enabled     bool
}

// Kind resolves the adapter kind from the stored crawler type.
func (s Source) Kind() AdapterKind {
	kind, _ := ParseCrawlerType(s.CrawlerType)
	return kind
}

// Family returns the credential family a gated source belongs to. An explicit
// "family" config entry wins over the family implied by the crawler type.
func (s Source) Family() string {
	if v, ok := s.Config["family"].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	_, family := ParseCrawlerType(s.CrawlerType)
	return family
}

// ParseCrawlerType maps stored crawler type strings to an adapter kind and the
// credential family implied by the name. Unknown values yield an empty kind.
func ParseCrawlerType(raw string) (AdapterKind, string) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "", "static", string(AdapterStatic):
		return AdapterStatic, ""
	case string(AdapterJSONAPI), "api":
		return AdapterJSONAPI, ""
	case string(AdapterBrowser), "browser":
		return AdapterBrowser, ""
	case string(AdapterHTMLSession), "session":
		return AdapterHTMLSession, ""
	case "huaneng_api":
		return AdapterBrowser, "huaneng"
	case "tang_api":
		return AdapterHTMLSession, "tang"
	}
	if family, ok := strings.CutSuffix(value, "_api"); ok && family != "" {
		return AdapterJSONAPI, family
	}
	return "", ""
}
