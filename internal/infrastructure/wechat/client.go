// Package wechat sends mini-program subscribe messages.
package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"TenderRadar/internal/ports"
)

// DefaultBaseURL is the public WeChat API host.
const DefaultBaseURL = "https://api.weixin.qq.com"

const (
	defaultPage      = "pages/index/index"
	tokenSafetyGap   = 60 * time.Second
	defaultExpiresIn = 7000
	thingMaxRunes    = 20
)

// ErrMissingCredentials is returned when no AppID or secret is configured.
var ErrMissingCredentials = errors.New("wechat app id or secret missing")

// Client talks to the WeChat server API. The access token is cached until
// shortly before it expires.
type Client struct {
	baseURL string
	appID   string
	secret  string
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

var _ ports.Messenger = (*Client)(nil)

// NewClient creates a reusable client; an empty baseURL targets production.
func NewClient(baseURL, appID, secret string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		appID:   appID,
		secret:  secret,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With("component", "wechat"),
		now:     time.Now,
	}
}

type apiError struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

type tokenResponse struct {
	apiError
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type dataValue struct {
	Value string `json:"value"`
}

type subscribeRequest struct {
	ToUser     string               `json:"touser"`
	TemplateID string               `json:"template_id"`
	Page       string               `json:"page"`
	Data       map[string]dataValue `json:"data"`
}

// Send delivers one subscribe message. Provider errors are reported in the
// result, never returned.
func (c *Client) Send(ctx context.Context, msg ports.Message) ports.SendResult {
	if msg.Recipient == "" || msg.TemplateID == "" {
		return ports.SendResult{OK: false, Message: "missing openid or template id"}
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return ports.SendResult{OK: false, Message: err.Error()}
	}

	page := msg.Page
	if page == "" {
		page = defaultPage
	}
	data := make(map[string]dataValue, len(msg.Fields))
	for key, value := range msg.Fields {
		data[key] = dataValue{Value: fitField(key, value)}
	}

	var resp apiError
	query := url.Values{"access_token": {token}}
	err = c.post(ctx, "/cgi-bin/message/subscribe/send", query, subscribeRequest{
		ToUser:     msg.Recipient,
		TemplateID: msg.TemplateID,
		Page:       page,
		Data:       data,
	}, &resp)
	if err != nil {
		return ports.SendResult{OK: false, Message: err.Error()}
	}
	if resp.ErrCode != 0 {
		return ports.SendResult{OK: false, Message: describe(resp)}
	}
	return ports.SendResult{OK: true}
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && c.expiresAt.Sub(now) > tokenSafetyGap {
		return c.token, nil
	}
	if c.appID == "" || c.secret == "" {
		return "", ErrMissingCredentials
	}

	var resp tokenResponse
	query := url.Values{
		"grant_type": {"client_credential"},
		"appid":      {c.appID},
		"secret":     {c.secret},
	}
	if err := c.get(ctx, "/cgi-bin/token", query, &resp); err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	if resp.ErrCode != 0 || resp.AccessToken == "" {
		return "", fmt.Errorf("fetch access token: %s", describe(resp.apiError))
	}

	expiresIn := resp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	c.token = resp.AccessToken
	c.expiresAt = now.Add(time.Duration(expiresIn) * time.Second)
	c.logger.Debug("access token refreshed", "expires_at", c.expiresAt)
	return c.token, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	return c.do(req, v)
}

func (c *Client) post(ctx context.Context, path string, query url.Values, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, query), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	return c.baseURL + path + "?" + query.Encode()
}

func describe(e apiError) string {
	if e.ErrMsg != "" {
		return e.ErrMsg
	}
	if e.ErrCode != 0 {
		return fmt.Sprintf("errcode %d", e.ErrCode)
	}
	return "send failed"
}

// fitField enforces the provider's length limit on thing.* values.
func fitField(key, value string) string {
	if !strings.HasPrefix(key, "thing") || utf8.RuneCountInString(value) <= thingMaxRunes {
		return value
	}
	runes := []rune(value)
	return string(runes[:thingMaxRunes-1]) + "…"
}
