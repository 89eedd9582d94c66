package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCrawlerType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw    string
		kind   AdapterKind
		family string
	}{
		{"", AdapterStatic, ""},
		{"static", AdapterStatic, ""},
		{"json_api", AdapterJSONAPI, ""},
		{"chinalco_api", AdapterJSONAPI, "chinalco"},
		{" Huaneng_API ", AdapterBrowser, "huaneng"},
		{"tang_api", AdapterHTMLSession, "tang"},
		{"browser_assisted", AdapterBrowser, ""},
		{"_api", "", ""},
		{"rss", "", ""},
	}
	for _, tc := range cases {
		kind, family := ParseCrawlerType(tc.raw)
		assert.Equal(t, tc.kind, kind, tc.raw)
		assert.Equal(t, tc.family, family, tc.raw)
	}
}

func TestSourceFamilyPrefersConfig(t *testing.T) {
	t.Parallel()

	s := Source{CrawlerType: "huaneng_api", Config: map[string]any{"family": " hn2 "}}
	assert.Equal(t, "hn2", s.Family())
	assert.Equal(t, AdapterBrowser, s.Kind())

	s.Config = nil
	assert.Equal(t, "huaneng", s.Family())
}

func TestParseMatchMode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, MatchExact, ParseMatchMode("EXACT"))
	assert.Equal(t, MatchRegex, ParseMatchMode("regexp"))
	assert.Equal(t, MatchRegex, ParseMatchMode("regex"))
	assert.Equal(t, MatchContain, ParseMatchMode("fuzzy"))
	assert.Equal(t, MatchContain, ParseMatchMode(""))
}

func TestNewNotice(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.October, 19, 10, 30, 0, 0, time.UTC)
	item := CandidateItem{Title: "智慧园区弱电工程招标", URL: "https://example.com/n/1.html", SourceID: 7, SourceName: "示例"}

	n := NewNotice(item, "", now)
	assert.Equal(t, "2026-10-19", n.PublishDate)
	assert.Equal(t, item.Title, n.Content)
	assert.Equal(t, Fingerprint(item.Title), n.TitleHash)
	assert.Equal(t, n.TitleHash, n.ContentHash)
	assert.Equal(t, "7_"+n.TitleHash, n.UID)
	assert.Len(t, n.TitleHash, 32)

	item.PublishDate = "2026-01-12"
	n = NewNotice(item, "正文", now)
	assert.Equal(t, "2026-01-12", n.PublishDate)
	assert.Equal(t, Fingerprint("正文"), n.ContentHash)
}

func TestHarvestStatsAdd(t *testing.T) {
	t.Parallel()

	total := HarvestStats{Candidates: 1, Persisted: 1}
	total.Add(HarvestStats{Candidates: 2, Known: 1, Discarded: 1, Dispatched: 3})
	assert.Equal(t, HarvestStats{Candidates: 3, Known: 1, Discarded: 1, Persisted: 1, Dispatched: 3}, total)
}

func TestCredentialEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, Credential{}.Empty())
	assert.False(t, Credential{Token: "t"}.Empty())
}
