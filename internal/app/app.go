package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"TenderRadar/internal/config"
	"TenderRadar/internal/domain"
	"TenderRadar/internal/infrastructure/browser"
	"TenderRadar/internal/infrastructure/credentials"
	"TenderRadar/internal/infrastructure/parser"
	"TenderRadar/internal/infrastructure/scheduler"
	"TenderRadar/internal/infrastructure/storage"
	"TenderRadar/internal/infrastructure/telegram"
	"TenderRadar/internal/infrastructure/wechat"
	"TenderRadar/internal/logging"
	"TenderRadar/internal/ports"
	"TenderRadar/internal/scanner"
	"TenderRadar/internal/usecase"
)

// shutdownGrace bounds how long a stop waits for the running harvest.
const shutdownGrace = time.Minute

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg           config.Config
	logger        *slog.Logger
	repository    ports.NoticeRepository
	credentials   *credentials.Store
	harvester     *browser.Harvester
	subscriptions *storage.SubscriptionStore
	pipeline      *usecase.Pipeline
	scheduler     *usecase.Scheduler

	db    *sqlx.DB
	redis *redis.Client
}

// New builds the application; it fails only when a configured backing store
// cannot be reached.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.NewWithOptions(os.Stdout, logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
	}

	if cfg.Database.DSN != "" {
		db, err := storage.OpenPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.db = db
		a.repository = storage.NewPostgresRepository(db)
	} else {
		baseLogger.Warn("no database configured, using in-memory repository seeded from config")
		a.repository = storage.NewMemoryRepository(cfg.Sources(), cfg.KeywordRules(), cfg.SubscriberList())
	}

	client := parser.NewHTTPClient(parser.ClientOptions{
		Timeout:           cfg.HTTP.Timeout,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
	})

	a.credentials = credentials.New(credentials.Options{
		Files:     cfg.Credentials.Files,
		Overrides: cfg.CredentialOverrides(),
		Redis:     a.redis,
		TTL:       cfg.Credentials.TTL,
	}, baseLogger)

	a.harvester = browser.NewHarvester(browser.Options{
		ExecutablePath:  cfg.Browser.ExecutablePath,
		NavigateTimeout: cfg.Browser.NavigateTimeout,
		SettleWait:      cfg.Browser.SettleWait,
	}, a.credentials, logging.Component(baseLogger, "browser"))

	registry := scanner.NewRegistry()
	registry.Register(domain.AdapterStatic, parser.NewStaticAdapter(client, logging.Component(baseLogger, "adapter.static")))
	registry.Register(domain.AdapterJSONAPI, parser.NewJSONAPIAdapter(client, a.credentials, logging.Component(baseLogger, "adapter.json")))
	registry.Register(domain.AdapterBrowser, parser.NewBrowserAdapter(client, a.harvester, a.credentials, logging.Component(baseLogger, "adapter.browser")))
	registry.Register(domain.AdapterHTMLSession, parser.NewSessionAdapter(client, a.harvester, a.credentials, logging.Component(baseLogger, "adapter.session")))

	detail := parser.NewDetailFetcher(client, a.credentials, detailOptions(cfg.Detail), logging.Component(baseLogger, "detail"))

	wx := cfg.Notifications.WeChat
	a.subscriptions = storage.NewSubscriptionStore(a.redis,
		domain.SubscriptionSettings{Enabled: true, TemplateIDs: wx.TemplateIDs}, baseLogger)

	messenger, templateOptional := newMessenger(cfg.Notifications, baseLogger)
	dispatcher := usecase.NewDispatcher(a.repository, messenger, a.subscriptions, usecase.DispatcherOptions{
		Fields:             wx.Fields,
		DefaultTemplateIDs: wx.TemplateIDs,
		TemplateOptional:   templateOptional,
		PageFormat:         wx.Page,
	}, logging.Component(baseLogger, "dispatcher"))

	stage := usecase.NewStage(usecase.StageDeps{
		Repository: a.repository,
		Fetcher:    detail,
		Matcher:    usecase.NewMatcher(logging.Component(baseLogger, "matcher")),
		Notifier:   dispatcher,
		Logger:     logging.Component(baseLogger, "filter"),
	})

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Repository: a.repository,
		Registry:   registry,
		Stage:      stage,
		Logger:     logging.Component(baseLogger, "pipeline"),
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), logging.Component(baseLogger, "scheduler"))
	a.scheduler = usecase.NewScheduler(driver, a.pipeline, logging.Component(baseLogger, "schedule"))
	return a, nil
}

// Run performs a single pass over every enabled source.
func (a *Application) Run(ctx context.Context) domain.HarvestStats {
	return a.pipeline.HarvestAll(ctx)
}

// RunSource harvests one source by id, enabled or not.
func (a *Application) RunSource(ctx context.Context, id int64) (domain.HarvestStats, error) {
	return a.pipeline.HarvestByID(ctx, id)
}

// Schedule runs the pipeline on the configured cron expression until ctx is
// cancelled.
func (a *Application) Schedule(ctx context.Context) error {
	if !a.cfg.Scheduler.Enabled {
		a.logger.Info("crawler disabled, set ENABLE_CRAWLER=true to schedule runs")
		return nil
	}
	return a.scheduler.Run(ctx, shutdownGrace)
}

// RefreshCredentials opens the family's entry page in the browser and writes
// the captured cookie and token to the family's credential file.
func (a *Application) RefreshCredentials(ctx context.Context, family string) (domain.Credential, error) {
	sources, err := a.repository.GetSources(ctx)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("load sources: %w", err)
	}
	target, err := parser.FamilyTarget(family, sources)
	if err != nil {
		return domain.Credential{}, err
	}

	var capture ports.Capture
	err = a.harvester.WithSession(ctx, target, func(session ports.BrowserSession) error {
		capture = session.Capture()
		return nil
	})
	if err != nil {
		return domain.Credential{}, fmt.Errorf("browser session: %w", err)
	}

	cred := domain.Credential{
		Family:     family,
		Cookie:     capture.Cookie,
		Token:      capture.Token,
		CapturedAt: capture.Completed,
		Origin:     "browser",
	}
	if cred.Cookie == "" {
		return cred, errors.New("browser session produced no cookie")
	}
	if err := a.credentials.Persist(cred, capture.Requests); err != nil {
		return cred, err
	}
	a.logger.Info("credentials refreshed", "family", family, "token", cred.Token != "", "requests", len(capture.Requests))
	return cred, nil
}

// Subscription returns the effective subscription switch.
func (a *Application) Subscription(ctx context.Context) domain.SubscriptionSettings {
	return a.subscriptions.Load(ctx)
}

// SetSubscription stores the switch in Redis for every running process.
func (a *Application) SetSubscription(ctx context.Context, settings domain.SubscriptionSettings) error {
	return a.subscriptions.Save(ctx, settings)
}

// Close releases database and cache connections.
func (a *Application) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", "error", err)
		}
	}
}

func detailOptions(cfg config.DetailConfig) parser.DetailOptions {
	domains := make(map[string]parser.DomainAuth, len(cfg.Domains))
	for host, auth := range cfg.Domains {
		domains[strings.ToLower(host)] = parser.DomainAuth{Family: auth.Family, Referer: auth.Referer}
	}
	return parser.DetailOptions{Format: cfg.Format, Domains: domains}
}

// newMessenger picks the configured provider. The second result tells the
// dispatcher that the provider renders plain text and needs no template.
func newMessenger(cfg config.NotificationConfig, logger *slog.Logger) (ports.Messenger, bool) {
	switch strings.ToLower(cfg.Provider) {
	case "telegram":
		if cfg.Telegram.BotToken == "" {
			logger.Warn("telegram provider selected without bot token, notifications disabled")
			return nil, false
		}
		return telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID), true
	case "", "wechat":
		if cfg.WeChat.AppID == "" || cfg.WeChat.Secret == "" {
			logger.Warn("wechat app id or secret missing, notifications disabled")
			return nil, false
		}
		return wechat.NewClient(cfg.WeChat.BaseURL, cfg.WeChat.AppID, cfg.WeChat.Secret, logging.Component(logger, "wechat")), false
	case "none":
		return nil, false
	}
	logger.Warn("unknown notification provider, notifications disabled", "provider", cfg.Provider)
	return nil, false
}
