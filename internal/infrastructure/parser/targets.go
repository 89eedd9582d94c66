package parser

import (
	"fmt"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

// TangListingURL is the public notice list whose session cookie the tang
// family needs.
const TangListingURL = "https://tang.cdt-ec.com/notice/moreController/toMore?globleType=0"

// builtinSources stand in when no configured source belongs to a family.
var builtinSources = map[string]domain.Source{
	"huaneng": {Name: "huaneng", CrawlerType: "huaneng_api", BaseURL: "https://ec.chng.com.cn/"},
	"tang":    {Name: "tang", CrawlerType: "tang_api", BaseURL: "https://tang.cdt-ec.com", ListingURL: TangListingURL},
}

// HarvestTarget tells the browser what to open for a gated source.
func HarvestTarget(source domain.Source) (ports.HarvestTarget, error) {
	switch source.Kind() {
	case domain.AdapterBrowser, domain.AdapterJSONAPI:
		cfg, err := resolveAPIConfig(source)
		if err != nil {
			return ports.HarvestTarget{}, err
		}
		return cfg.target(source), nil
	case domain.AdapterHTMLSession:
		if source.ListingURL == "" {
			return ports.HarvestTarget{}, fmt.Errorf("source %d has no listing url", source.ID)
		}
		return ports.HarvestTarget{
			Family:    source.Family(),
			EntryURL:  source.ListingURL,
			CookieURL: orDefault(source.BaseURL, source.ListingURL),
		}, nil
	}
	return ports.HarvestTarget{}, fmt.Errorf("source %d (%s) is not credential gated", source.ID, source.CrawlerType)
}

// FamilyTarget picks the first source of the family, falling back to the
// built-in entry for known families.
func FamilyTarget(family string, sources []domain.Source) (ports.HarvestTarget, error) {
	for _, source := range sources {
		if source.Family() == family {
			return HarvestTarget(source)
		}
	}
	if source, ok := builtinSources[family]; ok {
		return HarvestTarget(source)
	}
	return ports.HarvestTarget{}, fmt.Errorf("no source configured for credential family %q", family)
}
