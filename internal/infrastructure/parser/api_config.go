package parser

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

// maxPages bounds the pages fetched per type code in one run.
const maxPages = 3

// apiConfig describes a paginated JSON endpoint. Built-in profiles supply
// defaults per source family; source config keys override them.
type apiConfig struct {
	Family           string         `mapstructure:"family"`
	Endpoint         string         `mapstructure:"endpoint"`
	Method           string         `mapstructure:"method"`
	BodyFormat       string         `mapstructure:"bodyFormat"`
	Params           map[string]any `mapstructure:"params"`
	PageParam        string         `mapstructure:"pageParam"`
	SizeParam        string         `mapstructure:"sizeParam"`
	PageSize         int            `mapstructure:"pageSize"`
	PageStart        int            `mapstructure:"pageStart"`
	TypeParam        string         `mapstructure:"typeParam"`
	Types            []string       `mapstructure:"types"`
	TokenParam       string         `mapstructure:"tokenParam"`
	RowsPath         string         `mapstructure:"rowsPath"`
	DetailURL        string         `mapstructure:"detailUrl"`
	EntryURL         string         `mapstructure:"entryUrl"`
	InterceptPattern string         `mapstructure:"interceptPattern"`
	Referer          string         `mapstructure:"referer"`
}

var apiProfiles = map[string]apiConfig{
	"huaneng": {
		Family:           "huaneng",
		Endpoint:         "https://ec.chng.com.cn/scm-uiaoauth-web/s/business/uiaouth/queryAnnouncementByTitle",
		Method:           http.MethodPost,
		BodyFormat:       "json",
		Params:           map[string]any{"title": ""},
		TokenParam:       "kbfJdf1e",
		EntryURL:         "https://ec.chng.com.cn/channel/home/",
		InterceptPattern: "queryAnnouncementByTitle",
		Referer:          "https://ec.chng.com.cn/channel/home/",
	},
}

func resolveAPIConfig(source domain.Source) (apiConfig, error) {
	family := source.Family()
	cfg := cloneProfile(apiProfiles[family])
	if len(source.Config) > 0 {
		if err := decodeConfig(source.Config, &cfg); err != nil {
			return apiConfig{}, err
		}
	}
	if cfg.Family == "" {
		cfg.Family = family
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = source.ListingURL
	}
	if cfg.Endpoint == "" {
		return apiConfig{}, fmt.Errorf("source %d has no api endpoint", source.ID)
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	// Pages are 1-based unless the source asks otherwise; "pageStart: 0"
	// selects 0-based paging.
	if _, set := source.Config["pageStart"]; !set && cfg.PageStart == 0 {
		cfg.PageStart = 1
	}
	if cfg.PageStart < 0 {
		cfg.PageStart = 0
	}
	if cfg.EntryURL == "" {
		cfg.EntryURL = source.ListingURL
	}
	if cfg.InterceptPattern == "" {
		if u, err := url.Parse(cfg.Endpoint); err == nil {
			cfg.InterceptPattern = path.Base(u.Path)
		}
	}
	return cfg, nil
}

func cloneProfile(p apiConfig) apiConfig {
	params := make(map[string]any, len(p.Params))
	for k, v := range p.Params {
		params[k] = v
	}
	p.Params = params
	p.Types = append([]string(nil), p.Types...)
	return p
}

// typeCodes returns the target parameters to iterate; a single empty code
// stands for "no type parameter".
func (c apiConfig) typeCodes() []string {
	if c.TypeParam == "" || len(c.Types) == 0 {
		return []string{""}
	}
	return c.Types
}

// pages returns the page numbers to request for one type code.
func (c apiConfig) pages() []int {
	if c.PageParam == "" {
		return []int{c.PageStart}
	}
	out := make([]int, 0, maxPages)
	for i := 0; i < maxPages; i++ {
		out = append(out, c.PageStart+i)
	}
	return out
}

func (c apiConfig) build(typeCode string, page int, token string) (request, error) {
	params := make(map[string]any, len(c.Params)+3)
	for k, v := range c.Params {
		params[k] = v
	}
	if c.TypeParam != "" && typeCode != "" {
		params[c.TypeParam] = typeCode
	}
	if c.PageParam != "" {
		params[c.PageParam] = page
	}
	if c.SizeParam != "" && c.PageSize > 0 {
		params[c.SizeParam] = c.PageSize
	}

	endpoint, err := url.Parse(c.Endpoint)
	if err != nil {
		return request{}, fmt.Errorf("parse endpoint: %w", err)
	}
	query := endpoint.Query()
	if c.TokenParam != "" && token != "" {
		query.Set(c.TokenParam, token)
	}

	req := request{Method: c.Method, Headers: map[string]string{
		"Accept":  "application/json, text/plain, */*",
		"Referer": c.Referer,
	}}
	switch {
	case c.Method == http.MethodGet:
		for k, v := range params {
			query.Set(k, stringify(v))
		}
	case strings.EqualFold(c.BodyFormat, "form"):
		form := url.Values{}
		for k, v := range params {
			form.Set(k, stringify(v))
		}
		req.Body = form.Encode()
		req.ContentType = "application/x-www-form-urlencoded"
	default:
		body, err := json.Marshal(params)
		if err != nil {
			return request{}, fmt.Errorf("marshal params: %w", err)
		}
		req.Body = string(body)
		req.ContentType = "application/json"
	}
	endpoint.RawQuery = query.Encode()
	req.URL = endpoint.String()
	return req, nil
}

func (c apiConfig) target(source domain.Source) ports.HarvestTarget {
	return ports.HarvestTarget{
		Family:           c.Family,
		EntryURL:         c.EntryURL,
		InterceptPattern: c.InterceptPattern,
		TokenParam:       c.TokenParam,
		GatedURL:         c.Endpoint,
		CookieURL:        orDefault(source.BaseURL, c.EntryURL),
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
