package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

const huanengRows = `{"data":{"list":[{"id":"101","title":"集控中心弱电改造","releaseDate":1768176000000}]}}`

func huanengSource(endpoint string) domain.Source {
	return domain.Source{
		ID:          11,
		Name:        "华能集团",
		BaseURL:     "https://ec.chng.com.cn",
		ListingURL:  "https://ec.chng.com.cn/channel/home/",
		CrawlerType: "huaneng_api",
		Enabled:     true,
		Config: map[string]any{
			"endpoint":  endpoint,
			"detailUrl": "https://ec.chng.com.cn/channel/home/#/detail?id={id}",
		},
	}
}

func newBrowserAdapter(client *http.Client, h ports.CredentialHarvester, s ports.CredentialStore) *BrowserAdapter {
	a := NewBrowserAdapter(client, h, s, nil)
	a.now = func() time.Time { return fixedNow }
	return a
}

func TestBrowserAdapterPassiveCapture(t *testing.T) {
	t.Parallel()

	session := &fakeSession{capture: ports.Capture{Bodies: [][]byte{[]byte(`{"code":1}`), []byte(huanengRows)}}}
	harvester := &fakeHarvester{session: session}

	items := newBrowserAdapter(nil, harvester, newFakeStore()).Harvest(context.Background(), huanengSource("https://ec.chng.com.cn/api/queryAnnouncementByTitle"))

	require.Len(t, items, 1)
	assert.Equal(t, "集控中心弱电改造", items[0].Title)
	assert.Equal(t, "https://ec.chng.com.cn/channel/home/#/detail?id=101", items[0].URL)
	assert.Equal(t, "2026-01-12", items[0].PublishDate)
	assert.Empty(t, session.requests)

	require.Len(t, harvester.targets, 1)
	assert.Equal(t, "huaneng", harvester.targets[0].Family)
	assert.Equal(t, "queryAnnouncementByTitle", harvester.targets[0].InterceptPattern)
	assert.Equal(t, "kbfJdf1e", harvester.targets[0].TokenParam)
	assert.Equal(t, "https://ec.chng.com.cn/api/queryAnnouncementByTitle", harvester.targets[0].GatedURL)
}

func TestBrowserAdapterInPageFetch(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		capture: ports.Capture{Token: "tok-1"},
		fetch: func(_ context.Context, req ports.BrowserRequest) ([]byte, error) {
			return []byte(huanengRows), nil
		},
	}

	items := newBrowserAdapter(nil, &fakeHarvester{session: session}, newFakeStore()).Harvest(context.Background(), huanengSource("https://ec.chng.com.cn/api/queryAnnouncementByTitle"))

	require.Len(t, items, 1)
	require.Len(t, session.requests, 1)
	req := session.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Contains(t, req.URL, "kbfJdf1e=tok-1")
	assert.Equal(t, "application/json", req.Headers["Content-Type"])
	assert.NotContains(t, req.Headers, "Referer")
}

func TestBrowserAdapterDirectFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-2", r.URL.Query().Get("kbfJdf1e"))
		assert.Equal(t, "JSESSIONID=x", r.Header.Get("Cookie"))
		fmt.Fprint(w, huanengRows)
	}))
	defer srv.Close()

	store := newFakeStore()
	store.creds["huaneng"] = domain.Credential{Family: "huaneng", Cookie: "JSESSIONID=x", Token: "tok-2"}
	harvester := &fakeHarvester{err: errors.New("browser unavailable")}

	items := newBrowserAdapter(srv.Client(), harvester, store).Harvest(context.Background(), huanengSource(srv.URL+"/api/queryAnnouncementByTitle"))
	require.Len(t, items, 1)
	assert.Equal(t, "集控中心弱电改造", items[0].Title)
}

func TestBrowserAdapterFailedTypeFallsThroughToDirect(t *testing.T) {
	t.Parallel()

	var (
		mu          sync.Mutex
		directTypes []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		directTypes = append(directTypes, fmt.Sprint(body["type"]))
		mu.Unlock()
		assert.Equal(t, "tok-3", r.URL.Query().Get("kbfJdf1e"))
		fmt.Fprint(w, `{"data":{"list":[{"id":"202","title":"B 类公告","releaseDate":1768176000000}]}}`)
	}))
	defer srv.Close()

	session := &fakeSession{
		capture: ports.Capture{Token: "tok-3"},
		fetch: func(_ context.Context, req ports.BrowserRequest) ([]byte, error) {
			if strings.Contains(req.Body, `"type":"a"`) {
				return []byte(`{"data":{"list":[{"id":"201","title":"A 类公告","releaseDate":1768176000000}]}}`), nil
			}
			return nil, errors.New("in-page fetch rejected")
		},
	}
	store := newFakeStore()
	store.creds["huaneng"] = domain.Credential{Family: "huaneng", Cookie: "JSESSIONID=x", Token: "tok-3"}

	source := huanengSource(srv.URL + "/api/queryAnnouncementByTitle")
	source.Config["typeParam"] = "type"
	source.Config["types"] = []any{"a", "b"}

	items := newBrowserAdapter(srv.Client(), &fakeHarvester{session: session}, store).Harvest(context.Background(), source)

	require.Len(t, items, 2)
	assert.Equal(t, "A 类公告", items[0].Title)
	assert.Equal(t, "B 类公告", items[1].Title)
	assert.Len(t, session.requests, 2)
	mu.Lock()
	assert.Equal(t, []string{"b"}, directTypes)
	mu.Unlock()
}

func TestBrowserAdapterWithoutCredentialYieldsNothing(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls.Add(1) }))
	defer srv.Close()

	store := newFakeStore()
	// A cookie without the token the endpoint requires is not enough.
	store.creds["huaneng"] = domain.Credential{Family: "huaneng", Cookie: "JSESSIONID=x"}
	harvester := &fakeHarvester{err: errors.New("browser unavailable")}

	items := newBrowserAdapter(srv.Client(), harvester, store).Harvest(context.Background(), huanengSource(srv.URL+"/api/queryAnnouncementByTitle"))
	assert.Empty(t, items)
	assert.Zero(t, calls.Load())
}

func TestBrowserAdapterOverrideSkipsBrowser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "env-token", r.URL.Query().Get("kbfJdf1e"))
		fmt.Fprint(w, huanengRows)
	}))
	defer srv.Close()

	store := newFakeStore()
	store.overrides["huaneng"] = domain.Credential{Family: "huaneng", Cookie: "a=b", Token: "env-token", Origin: "env"}
	harvester := &fakeHarvester{session: &fakeSession{}}

	items := newBrowserAdapter(srv.Client(), harvester, store).Harvest(context.Background(), huanengSource(srv.URL+"/api/queryAnnouncementByTitle"))
	require.Len(t, items, 1)
	assert.Empty(t, harvester.targets)
}

func TestSessionAdapterSendsCookie(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tang_sid=1", r.Header.Get("Cookie"))
		fmt.Fprint(w, listingHTML)
	}))
	defer srv.Close()

	store := newFakeStore()
	store.creds["tang"] = domain.Credential{Family: "tang", Cookie: "tang_sid=1"}
	source := selectorSource(srv.URL)
	source.CrawlerType = "tang_api"

	items := NewSessionAdapter(srv.Client(), nil, store, nil).Harvest(context.Background(), source)
	require.Len(t, items, 2)
}

func TestSessionAdapterRetriesInBrowserWhenBlocked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer srv.Close()

	source := selectorSource(srv.URL)
	source.CrawlerType = "tang_api"
	session := &fakeSession{fetch: func(_ context.Context, req ports.BrowserRequest) ([]byte, error) {
		if !strings.HasSuffix(req.URL, "/list.html") {
			return nil, errors.New("unexpected url")
		}
		return []byte(listingHTML), nil
	}}
	harvester := &fakeHarvester{session: session}

	items := NewSessionAdapter(srv.Client(), harvester, newFakeStore(), nil).Harvest(context.Background(), source)
	require.Len(t, items, 2)
	require.Len(t, harvester.targets, 1)
	assert.Equal(t, "tang", harvester.targets[0].Family)
	assert.Equal(t, source.ListingURL, harvester.targets[0].EntryURL)
}

func TestSessionAdapterBlockedWithoutBrowser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	source := selectorSource(srv.URL)
	source.CrawlerType = "tang_api"

	items := NewSessionAdapter(srv.Client(), nil, nil, nil).Harvest(context.Background(), source)
	assert.Empty(t, items)
}
