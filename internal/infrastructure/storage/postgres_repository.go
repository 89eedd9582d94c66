package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
	pingTimeout     = 5 * time.Second
)

// OpenPostgres connects and verifies the database.
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PostgresRepository reads sources, rules and subscribers and persists
// notices in Postgres.
type PostgresRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

var _ ports.NoticeRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sqlx.DB implementation.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

type siteRow struct {
	ID             int64          `db:"id"`
	Name           string         `db:"site_name"`
	BaseURL        sql.NullString `db:"site_url"`
	ListingURL     sql.NullString `db:"list_page_url"`
	CrawlerType    sql.NullString `db:"crawler_type"`
	SelectorConfig []byte         `db:"selector_config"`
	Status         sql.NullInt64  `db:"status"`
}

// GetSources returns every configured site ordered by id. A selector config
// that is not valid JSON yields a source without config. Only status 0
// disables a site; a NULL status counts as enabled.
func (r *PostgresRepository) GetSources(ctx context.Context) ([]domain.Source, error) {
	query, args, err := r.sb.
		Select("id", "site_name", "site_url", "list_page_url", "crawler_type", "selector_config", "status").
		From("monitor_sites").
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources query: %w", err)
	}

	var rows []siteRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}

	sources := make([]domain.Source, 0, len(rows))
	for _, row := range rows {
		var cfg map[string]any
		if len(row.SelectorConfig) > 0 {
			if err := json.Unmarshal(row.SelectorConfig, &cfg); err != nil {
				cfg = nil
			}
		}
		sources = append(sources, domain.Source{
			ID:          row.ID,
			Name:        row.Name,
			BaseURL:     row.BaseURL.String,
			ListingURL:  row.ListingURL.String,
			CrawlerType: row.CrawlerType.String,
			Config:      cfg,
			Enabled:     !row.Status.Valid || row.Status.Int64 != 0,
		})
	}
	return sources, nil
}

// HasNotice matches on source URL or on the title fingerprint.
func (r *PostgresRepository) HasNotice(ctx context.Context, title, url string) (bool, error) {
	var cond sq.Or
	if url != "" {
		cond = append(cond, sq.Eq{"source_url": url})
	}
	if title != "" {
		cond = append(cond, sq.Eq{"title_hash": domain.Fingerprint(title)})
	}
	if len(cond) == 0 {
		return false, nil
	}

	query, args, err := r.sb.Select("id").From("notices").Where(cond).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build has-notice query: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query notice: %w", err)
	}
	return true, nil
}

// AddNotice inserts idempotently on notice_uid. A conflicting insert returns
// a nil notice and a nil error.
func (r *PostgresRepository) AddNotice(ctx context.Context, notice domain.Notice) (*domain.Notice, error) {
	query, args, err := r.sb.
		Insert("notices").
		Columns("notice_uid", "site_id", "site_name", "title", "content", "source_url",
			"publish_time", "crawl_time", "title_hash", "content_hash", "status").
		Values(notice.UID, notice.SourceID, notice.SourceName, notice.Title, notice.Content, notice.URL,
			notice.PublishDate, notice.CrawledAt, notice.TitleHash, notice.ContentHash, "new").
		Suffix("ON CONFLICT (notice_uid) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	err = r.db.QueryRowContext(ctx, query, args...).Scan(&notice.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert notice: %w", err)
	}
	return &notice, nil
}

type keywordRow struct {
	ID        int64          `db:"id"`
	Keyword   string         `db:"keyword"`
	MatchType sql.NullString `db:"match_type"`
}

// GetActiveKeywordRules returns rules whose status is unset or 1.
func (r *PostgresRepository) GetActiveKeywordRules(ctx context.Context) ([]domain.KeywordRule, error) {
	query, args, err := r.sb.
		Select("id", "keyword", "match_type").
		From("keywords").
		Where(sq.Or{sq.Eq{"status": nil}, sq.Eq{"status": 1}}).
		OrderBy("id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build keywords query: %w", err)
	}

	var rows []keywordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}

	rules := make([]domain.KeywordRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, domain.KeywordRule{
			ID:      row.ID,
			Pattern: row.Keyword,
			Mode:    domain.ParseMatchMode(row.MatchType.String),
			Active:  true,
		})
	}
	return rules, nil
}

type subscriberRow struct {
	OpenID      string         `db:"openid"`
	TemplateIDs pq.StringArray `db:"tmpl_ids"`
}

// GetSubscribers returns active subscribers.
func (r *PostgresRepository) GetSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	query, args, err := r.sb.
		Select("openid", "tmpl_ids").
		From("subscribers").
		Where(sq.Eq{"status": 1}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build subscribers query: %w", err)
	}

	var rows []subscriberRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}

	subs := make([]domain.Subscriber, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, domain.Subscriber{OpenID: row.OpenID, TemplateIDs: []string(row.TemplateIDs)})
	}
	return subs, nil
}
