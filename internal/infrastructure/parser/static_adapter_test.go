package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"TenderRadar/internal/domain"
)

const listingHTML = `<html><body>
<ul class="list">
  <li><a href="/n/1.html">  智慧园区弱电工程招标 </a><span class="date">2026-01-12</span></li>
  <li><a href="javascript:void(0)">脚本链接</a><span class="date">2026-01-11</span></li>
  <li><span>无链接</span></li>
  <li><a href="n/2.html">办公楼装修采购</a><span class="date">1-5</span></li>
</ul>
</body></html>`

func selectorSource(srvURL string) domain.Source {
	return domain.Source{
		ID:          7,
		Name:        "示例集团",
		BaseURL:     srvURL + "/",
		ListingURL:  srvURL + "/list.html",
		CrawlerType: "static",
		Enabled:     true,
		Config: map[string]any{
			"listSelector": "ul.list li",
			"dateSelector": "span.date",
		},
	}
}

func TestStaticAdapterHarvest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DesktopUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer srv.Close()

	adapter := NewStaticAdapter(srv.Client(), nil)
	adapter.now = func() time.Time { return time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC) }

	items := adapter.Harvest(context.Background(), selectorSource(srv.URL))
	require.Len(t, items, 2)

	assert.Equal(t, "智慧园区弱电工程招标", items[0].Title)
	assert.Equal(t, srv.URL+"/n/1.html", items[0].URL)
	assert.Equal(t, "2026-01-12", items[0].PublishDate)
	assert.Equal(t, int64(7), items[0].SourceID)
	assert.Equal(t, "示例集团", items[0].SourceName)

	assert.Equal(t, srv.URL+"/n/2.html", items[1].URL)
	assert.Equal(t, "2026-01-05", items[1].PublishDate)
}

func TestStaticAdapterDecodesGBK(t *testing.T) {
	t.Parallel()

	encoded, err := simplifiedchinese.GBK.NewEncoder().String(listingHTML)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=gbk")
		_, _ = w.Write([]byte(encoded))
	}))
	defer srv.Close()

	items := NewStaticAdapter(srv.Client(), nil).Harvest(context.Background(), selectorSource(srv.URL))
	require.NotEmpty(t, items)
	assert.Equal(t, "智慧园区弱电工程招标", items[0].Title)
}

func TestStaticAdapterSkipsMisconfiguredSource(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls.Add(1) }))
	defer srv.Close()

	source := selectorSource(srv.URL)
	source.Config = map[string]any{"titleSelector": "a"}

	items := NewStaticAdapter(srv.Client(), nil).Harvest(context.Background(), source)
	assert.Empty(t, items)
	assert.Zero(t, calls.Load())
}

func TestStaticAdapterServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	items := NewStaticAdapter(srv.Client(), nil).Harvest(context.Background(), selectorSource(srv.URL))
	assert.Empty(t, items)
}

func TestExtractListingTitleAttr(t *testing.T) {
	t.Parallel()

	doc, err := parseDocument([]byte(`<div class="row"><a href="/d/9" title="完整标题：数据中心机房建设项目">数据中心...</a></div>`), "text/html")
	require.NoError(t, err)

	cfg := selectorConfig{ListSelector: "div.row", TitleAttr: "title"}
	items := extractListing(doc, cfg, domain.Source{ID: 1, BaseURL: "https://x.com"}, time.Now())
	require.Len(t, items, 1)
	assert.Equal(t, "完整标题：数据中心机房建设项目", items[0].Title)
	assert.Equal(t, "https://x.com/d/9", items[0].URL)
	assert.Empty(t, items[0].PublishDate)
}
