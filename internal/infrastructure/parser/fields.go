package parser

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"TenderRadar/internal/domain"
)

var (
	titleAliases = []string{"title", "noticeTitle", "announcementTitle", "name"}
	linkAliases  = []string{"url", "noticeUrl", "detailUrl", "href", "link"}
	dateAliases  = []string{"publishDate", "releaseDate", "date", "release_time", "publish_time", "publishTime", "createTime"}
	idAliases    = []string{"id", "noticeId", "announcementId"}
)

func firstString(row gjson.Result, aliases []string) string {
	for _, alias := range aliases {
		value := row.Get(alias)
		if !value.Exists() || value.Type == gjson.Null {
			continue
		}
		if text := strings.TrimSpace(value.String()); text != "" {
			return text
		}
	}
	return ""
}

func rowDate(row gjson.Result, now time.Time) string {
	for _, alias := range dateAliases {
		value := row.Get(alias)
		switch value.Type {
		case gjson.Number:
			return epochDate(value.Int(), now.Location())
		case gjson.String:
			if parsed := ParseDate(value.Str, now); parsed != "" {
				return parsed
			}
			if text := strings.TrimSpace(value.Str); text != "" && isDigits(text) {
				if n := value.Int(); n > 0 {
					return epochDate(n, now.Location())
				}
			}
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// mapRow maps one heterogeneous API row onto a candidate item.
func mapRow(row gjson.Result, detailTemplate, base string, source domain.Source, now time.Time) (domain.CandidateItem, bool) {
	title := domain.TrimTitle(firstString(row, titleAliases))
	link := firstString(row, linkAliases)
	if link == "" && detailTemplate != "" {
		if id := firstString(row, idAliases); id != "" {
			link = strings.ReplaceAll(detailTemplate, "{id}", id)
		}
	}
	link = NormalizeURL(link, base)
	if title == "" || link == "" {
		return domain.CandidateItem{}, false
	}
	return domain.CandidateItem{
		Title:       title,
		URL:         link,
		PublishDate: rowDate(row, now),
		SourceID:    source.ID,
		SourceName:  source.Name,
	}, true
}

// itemCollector keeps candidates in arrival order, deduplicated by title+URL.
type itemCollector struct {
	seen  map[string]struct{}
	items []domain.CandidateItem
}

func newItemCollector() *itemCollector {
	return &itemCollector{seen: map[string]struct{}{}}
}

func (c *itemCollector) add(item domain.CandidateItem) bool {
	key := item.Key()
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	c.items = append(c.items, item)
	return true
}

func (c *itemCollector) size() int {
	return len(c.items)
}
