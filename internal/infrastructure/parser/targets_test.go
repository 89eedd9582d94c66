package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TenderRadar/internal/domain"
)

func TestFamilyTargetBuiltins(t *testing.T) {
	t.Parallel()

	hn, err := FamilyTarget("huaneng", nil)
	require.NoError(t, err)
	assert.Equal(t, "huaneng", hn.Family)
	assert.Equal(t, "https://ec.chng.com.cn/channel/home/", hn.EntryURL)
	assert.Equal(t, "kbfJdf1e", hn.TokenParam)
	assert.Equal(t, "queryAnnouncementByTitle", hn.InterceptPattern)
	assert.Contains(t, hn.GatedURL, "queryAnnouncementByTitle")

	tang, err := FamilyTarget("tang", nil)
	require.NoError(t, err)
	assert.Equal(t, TangListingURL, tang.EntryURL)
	assert.Equal(t, "https://tang.cdt-ec.com", tang.CookieURL)
	assert.Empty(t, tang.TokenParam)

	_, err = FamilyTarget("nobody", nil)
	assert.Error(t, err)
}

func TestFamilyTargetPrefersConfiguredSource(t *testing.T) {
	t.Parallel()

	sources := []domain.Source{
		{ID: 1, CrawlerType: "static", ListingURL: "https://a.example/list"},
		{ID: 2, CrawlerType: "tang_api", ListingURL: "https://mirror.example/list", BaseURL: "https://mirror.example"},
	}
	target, err := FamilyTarget("tang", sources)
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.example/list", target.EntryURL)
}

func TestHarvestTargetRejectsStatic(t *testing.T) {
	t.Parallel()

	_, err := HarvestTarget(domain.Source{ID: 3, CrawlerType: "static"})
	assert.Error(t, err)
}
