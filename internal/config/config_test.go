package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TenderRadar/internal/domain"
)

const sampleYAML = `
logging:
  level: warn
scheduler:
  enabled: true
  cronExpression: "0 */2 * * *"
detail:
  format: markdown
  domains:
    www.example.com:
      family: example
sites:
  - name: 示例集团
    listingUrl: https://www.example.com/list.html
    crawlerType: static
    config:
      listSelector: ul.list li
      pageSize: 20
  - id: 9
    name: 华能
    crawlerType: huaneng_api
    disabled: true
keywords:
  - pattern: 弱电
  - pattern: "智能化.*工程"
    mode: regex
  - pattern: 停用
    inactive: true
subscribers:
  - openId: o-1
    templateIds: [T1]
`

func TestParseKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(sampleYAML), defaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "0 */2 * * *", cfg.Scheduler.CronExpression)
	assert.Equal(t, 20*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "/tmp/huaneng.json", cfg.Credentials.Files["huaneng"])

	assert.Equal(t, "markdown", cfg.Detail.Format)
	assert.Equal(t, "huaneng", cfg.Detail.Domains["ec.chng.com.cn"].Family)
	assert.Equal(t, "example", cfg.Detail.Domains["www.example.com"].Family)
	_, leaked := defaultConfig().Detail.Domains["www.example.com"]
	assert.False(t, leaked)

	sources := cfg.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, int64(1), sources[0].ID)
	assert.True(t, sources[0].Enabled)
	assert.Equal(t, 20, sources[0].Config["pageSize"])
	assert.Equal(t, int64(9), sources[1].ID)
	assert.False(t, sources[1].Enabled)

	rules := cfg.KeywordRules()
	require.Len(t, rules, 3)
	assert.Equal(t, domain.MatchContain, rules[0].Mode)
	assert.Equal(t, domain.MatchRegex, rules[1].Mode)
	assert.False(t, rules[2].Active)

	subs := cfg.SubscriberList()
	require.Len(t, subs, 1)
	assert.Equal(t, []string{"T1"}, subs[0].TemplateIDs)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	base := defaultConfig()
	_, err := Parse([]byte("sites: [unterminated"), base)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"DB_URL":                "postgres://radar@db/radar",
		"DATABASE_DSN":          "postgres://ignored",
		"REDIS_URL":             "redis://cache:6379/1",
		"ENABLE_CRAWLER":        "TRUE",
		"CRAWL_CRON":            "*/10 * * * *",
		"CHROMIUM_PATH":         "/opt/chrome",
		"HN_COOKIE":             "sid=1",
		"HUANENG_TOKEN":         "tok",
		"TANG_COOKIE":           "JSESSIONID=2",
		"TANG_COOKIE_PATH":      "/data/tang.json",
		"WX_APPID":              "wx-app",
		"MINIAPP_SECRET":        "wx-secret",
		"WEAPP_TEMPLATE_IDS":    " T1, ,T2 ",
		"WEAPP_TEMPLATE_KEYS":   `{"thing1":"标题","time2":"时间"}`,
		"TELEGRAM_BOT_TOKEN":    "bot",
		"TELEGRAM_CHAT_ID":      "42",
		"LOG_LEVEL":             "error",
		"WEAPP_TEMPLATE_FIELDS": "",
	}
	cfg := defaultConfig()
	cfg.applyEnvOverrides(func(k string) string { return env[k] })

	assert.Equal(t, "postgres://radar@db/radar", cfg.Database.DSN)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "*/10 * * * *", cfg.Scheduler.CronExpression)
	assert.Equal(t, "/opt/chrome", cfg.Browser.ExecutablePath)
	assert.Equal(t, "error", cfg.Logging.Level)

	overrides := cfg.CredentialOverrides()
	assert.Equal(t, "sid=1", overrides["huaneng"].Cookie)
	assert.Equal(t, "tok", overrides["huaneng"].Token)
	assert.Equal(t, "JSESSIONID=2", overrides["tang"].Cookie)
	assert.Equal(t, "/data/tang.json", cfg.Credentials.Files["tang"])
	assert.Equal(t, "/tmp/huaneng.json", cfg.Credentials.Files["huaneng"])

	wx := cfg.Notifications.WeChat
	assert.Equal(t, "wx-app", wx.AppID)
	assert.Equal(t, "wx-secret", wx.Secret)
	assert.Equal(t, []string{"T1", "T2"}, wx.TemplateIDs)
	assert.Equal(t, map[string]string{"thing1": "标题", "time2": "时间"}, wx.Fields)

	assert.Equal(t, "bot", cfg.Notifications.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Notifications.Telegram.ChatID)
}

func TestBindTimezoneFallsBack(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Scheduler.Timezone = "Mars/Olympus"
	cfg.bindTimezone()
	assert.Equal(t, time.UTC, cfg.Scheduler.Location())
}
