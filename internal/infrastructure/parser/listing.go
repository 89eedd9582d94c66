package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mitchellh/mapstructure"

	"TenderRadar/internal/domain"
)

const defaultAnchorSelector = "a"

// selectorConfig is the adapter config of static and session-cookie sources.
type selectorConfig struct {
	ListSelector  string `mapstructure:"listSelector"`
	TitleSelector string `mapstructure:"titleSelector"`
	LinkSelector  string `mapstructure:"linkSelector"`
	DateSelector  string `mapstructure:"dateSelector"`
	// TitleAttr reads the title from an attribute when anchors truncate text.
	TitleAttr string `mapstructure:"titleAttr"`
}

func decodeConfig(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("build config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("decode source config: %w", err)
	}
	return nil
}

func decodeSelectorConfig(source domain.Source) (selectorConfig, error) {
	var cfg selectorConfig
	if len(source.Config) == 0 {
		return cfg, fmt.Errorf("source %d has no selector config", source.ID)
	}
	if err := decodeConfig(source.Config, &cfg); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(cfg.ListSelector) == "" {
		return cfg, fmt.Errorf("source %d has no listSelector", source.ID)
	}
	return cfg, nil
}

// extractListing walks repeated list nodes and builds candidate items. Rows
// without title or link are dropped.
func extractListing(doc *goquery.Document, cfg selectorConfig, source domain.Source, now time.Time) []domain.CandidateItem {
	titleSel := orDefault(cfg.TitleSelector, defaultAnchorSelector)
	linkSel := orDefault(cfg.LinkSelector, defaultAnchorSelector)
	base := orDefault(source.BaseURL, source.ListingURL)

	items := make([]domain.CandidateItem, 0)
	doc.Find(cfg.ListSelector).Each(func(_ int, node *goquery.Selection) {
		titleNode := node.Find(titleSel).First()
		title := domain.TrimTitle(titleNode.Text())
		if cfg.TitleAttr != "" {
			if attr, ok := titleNode.Attr(cfg.TitleAttr); ok && strings.TrimSpace(attr) != "" {
				title = domain.TrimTitle(attr)
			}
		}
		href, _ := node.Find(linkSel).First().Attr("href")
		link := NormalizeURL(href, base)
		if title == "" || link == "" {
			return
		}

		var dateText string
		if cfg.DateSelector != "" {
			dateText = strings.TrimSpace(node.Find(cfg.DateSelector).First().Text())
		}

		items = append(items, domain.CandidateItem{
			Title:       title,
			URL:         link,
			PublishDate: ParseDate(dateText, now),
			SourceID:    source.ID,
			SourceName:  source.Name,
		})
	})
	return items
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
