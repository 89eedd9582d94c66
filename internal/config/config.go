package config

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"TenderRadar/internal/domain"
)

const (
	defaultTimezone = "Asia/Shanghai"
	defaultCron     = "*/30 * * * *"
	configPathEnv   = "TENDER_RADAR_CONFIG"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	HTTP          HTTPConfig         `yaml:"http"`
	Browser       BrowserConfig      `yaml:"browser"`
	Credentials   CredentialsConfig  `yaml:"credentials"`
	Detail        DetailConfig       `yaml:"detail"`
	Notifications NotificationConfig `yaml:"notifications"`
	Sites         []SiteConfig       `yaml:"sites"`
	Keywords      []KeywordConfig    `yaml:"keywords"`
	Subscribers   []SubscriberConfig `yaml:"subscribers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN selects
// the in-memory repository seeded from Sites, Keywords and Subscribers.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig is optional; without it credentials stay process-local and
// subscriptions use the static defaults.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SchedulerConfig defines when the crawler should run.
type SchedulerConfig struct {
	Enabled        bool           `yaml:"enabled"`
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	return time.UTC
}

// HTTPConfig tunes the shared outbound client.
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

type BrowserConfig struct {
	ExecutablePath  string        `yaml:"executablePath"`
	NavigateTimeout time.Duration `yaml:"navigateTimeout"`
	SettleWait      time.Duration `yaml:"settleWait"`
}

// CredentialsConfig locates harvested credentials per source family.
type CredentialsConfig struct {
	Files     map[string]string             `yaml:"files"`
	Overrides map[string]CredentialOverride `yaml:"overrides"`
	TTL       time.Duration                 `yaml:"ttl"`
}

// CredentialOverride bypasses the browser for a family.
type CredentialOverride struct {
	Cookie string `yaml:"cookie"`
	Token  string `yaml:"token"`
}

// DetailConfig controls announcement body extraction.
type DetailConfig struct {
	Format  string                `yaml:"format"`
	Domains map[string]DomainAuth `yaml:"domains"`
}

// DomainAuth maps a detail host to a credential family.
type DomainAuth struct {
	Family  string `yaml:"family"`
	Referer string `yaml:"referer"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Provider string         `yaml:"provider"`
	WeChat   WeChatConfig   `yaml:"wechat"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// WeChatConfig holds mini-program credentials and template layout.
type WeChatConfig struct {
	AppID       string            `yaml:"appId"`
	Secret      string            `yaml:"secret"`
	BaseURL     string            `yaml:"baseUrl"`
	TemplateIDs []string          `yaml:"templateIds"`
	Fields      map[string]string `yaml:"fields"`
	Page        string            `yaml:"page"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SiteConfig seeds a source for runs without a database.
type SiteConfig struct {
	ID          int64          `yaml:"id"`
	Name        string         `yaml:"name"`
	BaseURL     string         `yaml:"baseUrl"`
	ListingURL  string         `yaml:"listingUrl"`
	CrawlerType string         `yaml:"crawlerType"`
	Disabled    bool           `yaml:"disabled"`
	Config      map[string]any `yaml:"config"`
}

// Source converts the seed into a domain source.
func (s SiteConfig) Source() domain.Source {
	return domain.Source{
		ID:          s.ID,
		Name:        s.Name,
		BaseURL:     s.BaseURL,
		ListingURL:  s.ListingURL,
		CrawlerType: s.CrawlerType,
		Config:      s.Config,
		Enabled:     !s.Disabled,
	}
}

type KeywordConfig struct {
	Pattern  string `yaml:"pattern"`
	Mode     string `yaml:"mode"`
	Inactive bool   `yaml:"inactive"`
}

type SubscriberConfig struct {
	OpenID      string   `yaml:"openId"`
	TemplateIDs []string `yaml:"templateIds"`
}

// Sources returns the seeded sites, numbering those without an id.
func (c Config) Sources() []domain.Source {
	out := make([]domain.Source, 0, len(c.Sites))
	for i, site := range c.Sites {
		source := site.Source()
		if source.ID == 0 {
			source.ID = int64(i + 1)
		}
		out = append(out, source)
	}
	return out
}

// KeywordRules returns the seeded rules with stable ids.
func (c Config) KeywordRules() []domain.KeywordRule {
	out := make([]domain.KeywordRule, 0, len(c.Keywords))
	for i, kw := range c.Keywords {
		out = append(out, domain.KeywordRule{
			ID:      int64(i + 1),
			Pattern: kw.Pattern,
			Mode:    domain.ParseMatchMode(kw.Mode),
			Active:  !kw.Inactive,
		})
	}
	return out
}

func (c Config) SubscriberList() []domain.Subscriber {
	out := make([]domain.Subscriber, 0, len(c.Subscribers))
	for _, s := range c.Subscribers {
		out = append(out, domain.Subscriber{OpenID: s.OpenID, TemplateIDs: s.TemplateIDs})
	}
	return out
}

// CredentialOverrides converts configured overrides into domain credentials.
func (c Config) CredentialOverrides() map[string]domain.Credential {
	out := make(map[string]domain.Credential, len(c.Credentials.Overrides))
	for family, o := range c.Credentials.Overrides {
		out[family] = domain.Credential{Family: family, Cookie: o.Cookie, Token: o.Token}
	}
	return out
}

// Load reads .env and YAML configuration (if present) and applies
// environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if parsed, err := Parse(raw, cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = parsed
		}
	}

	cfg.applyEnvOverrides(os.Getenv)
	cfg.bindTimezone()
	return cfg
}

// Parse decodes YAML over base; keys absent from raw keep base values.
func Parse(raw []byte, base Config) (Config, error) {
	cfg := base
	cfg.Credentials.Files = cloneMap(base.Credentials.Files)
	cfg.Detail.Domains = cloneDomains(base.Detail.Domains)
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return base, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides(getenv func(string) string) {
	env := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				return v
			}
		}
		return ""
	}

	if v := env("DB_URL", "DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := env("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := env("ENABLE_CRAWLER"); v != "" {
		c.Scheduler.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := env("CRAWL_CRON"); v != "" {
		c.Scheduler.CronExpression = v
	}
	if v := env("CHROMIUM_PATH"); v != "" {
		c.Browser.ExecutablePath = v
	}

	c.overrideCredential("huaneng", env("HUANENG_COOKIE", "HN_COOKIE"), env("HUANENG_TOKEN", "HN_TOKEN"))
	c.overrideCredential("tang", env("TANG_COOKIE"), "")
	if v := env("HUANENG_JSON_PATH", "HN_JSON_PATH"); v != "" {
		c.setCredentialFile("huaneng", v)
	}
	if v := env("TANG_JSON_PATH", "TANG_COOKIE_PATH"); v != "" {
		c.setCredentialFile("tang", v)
	}

	wx := &c.Notifications.WeChat
	if v := env("WEAPP_APPID", "WX_APPID", "MINIAPP_APPID"); v != "" {
		wx.AppID = v
	}
	if v := env("WEAPP_SECRET", "WX_SECRET", "MINIAPP_SECRET"); v != "" {
		wx.Secret = v
	}
	if v := env("WEAPP_TEMPLATE_IDS"); v != "" {
		wx.TemplateIDs = splitList(v)
	}
	if v := env("WEAPP_TEMPLATE_FIELDS", "WEAPP_TEMPLATE_KEYS"); v != "" {
		var fields map[string]string
		if err := json.Unmarshal([]byte(v), &fields); err != nil {
			log.Printf("config: ignoring malformed template fields: %v", err)
		} else if len(fields) > 0 {
			wx.Fields = fields
		}
	}

	if v := env("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := env("TELEGRAM_CHAT_ID"); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) overrideCredential(family, cookie, token string) {
	if cookie == "" && token == "" {
		return
	}
	if c.Credentials.Overrides == nil {
		c.Credentials.Overrides = map[string]CredentialOverride{}
	}
	current := c.Credentials.Overrides[family]
	if cookie != "" {
		current.Cookie = cookie
	}
	if token != "" {
		current.Token = token
	}
	c.Credentials.Overrides[family] = current
}

func (c *Config) setCredentialFile(family, path string) {
	if c.Credentials.Files == nil {
		c.Credentials.Files = map[string]string{}
	}
	c.Credentials.Files[family] = path
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to UTC", tz)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cloneMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneDomains(in map[string]DomainAuth) map[string]DomainAuth {
	out := make(map[string]DomainAuth, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func defaultConfig() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Scheduler: SchedulerConfig{CronExpression: defaultCron, Timezone: defaultTimezone},
		HTTP:      HTTPConfig{Timeout: 20 * time.Second, RequestsPerSecond: 2, Burst: 2},
		Credentials: CredentialsConfig{
			Files: map[string]string{
				"huaneng": "/tmp/huaneng.json",
				"tang":    "/tmp/tang.json",
			},
			TTL: 12 * time.Hour,
		},
		Detail: DetailConfig{
			Format: "text",
			Domains: map[string]DomainAuth{
				"ec.chng.com.cn":  {Family: "huaneng", Referer: "https://ec.chng.com.cn/channel/home/"},
				"tang.cdt-ec.com": {Family: "tang", Referer: "https://tang.cdt-ec.com/"},
			},
		},
		Notifications: NotificationConfig{
			Provider: "wechat",
			WeChat:   WeChatConfig{Page: "pages/detail/detail?id=%d"},
		},
	}
}
