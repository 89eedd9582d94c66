package usecase

import (
	"context"
	"log/slog"
	"time"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

// Outcome is what the filter stage did with one candidate.
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeKnown
	OutcomeDiscarded
	OutcomePersisted
	OutcomeDuplicate
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeKnown:
		return "known"
	case OutcomeDiscarded:
		return "discarded"
	case OutcomePersisted:
		return "persisted"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

// Notifier hands a persisted notice to subscribers and reports the number of
// delivery attempts.
type Notifier interface {
	Notify(ctx context.Context, notice domain.Notice, matched []domain.KeywordRule) int
}

// Stage deduplicates candidates, evaluates keyword rules against their body
// and persists the matches.
type Stage struct {
	repository ports.NoticeRepository
	fetcher    ports.DetailFetcher
	matcher    *Matcher
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

// StageDeps wires the stage collaborators; Fetcher and Notifier may be nil.
type StageDeps struct {
	Repository ports.NoticeRepository
	Fetcher    ports.DetailFetcher
	Matcher    *Matcher
	Notifier   Notifier
	Logger     *slog.Logger
}

func NewStage(deps StageDeps) *Stage {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	matcher := deps.Matcher
	if matcher == nil {
		matcher = NewMatcher(logger)
	}
	return &Stage{
		repository: deps.Repository,
		fetcher:    deps.Fetcher,
		matcher:    matcher,
		notifier:   deps.Notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Process runs one candidate through dedup, matching, persistence and
// notification. rules are the active keyword rules of the current run.
func (s *Stage) Process(ctx context.Context, item domain.CandidateItem, rules []domain.KeywordRule, logger *slog.Logger) (Outcome, int) {
	if logger == nil {
		logger = s.logger
	}
	if item.Title == "" || item.URL == "" {
		return OutcomeRejected, 0
	}

	known, err := s.repository.HasNotice(ctx, item.Title, item.URL)
	if err != nil {
		logger.Warn("existence check failed, item skipped", "url", item.URL, "error", err)
		return OutcomeFailed, 0
	}
	if known {
		return OutcomeKnown, 0
	}

	var content string
	if s.fetcher != nil {
		content = s.fetcher.FetchContent(ctx, item.URL)
	}

	matched := s.matcher.Match(rules, item.Title, content)
	if len(matched) == 0 {
		return OutcomeDiscarded, 0
	}

	saved, err := s.repository.AddNotice(ctx, domain.NewNotice(item, content, s.now()))
	if err != nil {
		logger.Warn("persist notice failed", "title", item.Title, "error", err)
		return OutcomeFailed, 0
	}
	if saved == nil {
		return OutcomeDuplicate, 0
	}
	logger.Info("notice persisted", "notice_id", saved.ID, "title", saved.Title, "rules", len(matched))

	if s.notifier == nil {
		return OutcomePersisted, 0
	}
	return OutcomePersisted, s.notifier.Notify(ctx, *saved, matched)
}
