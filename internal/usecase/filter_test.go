package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/infrastructure/storage"
)

type failingRepository struct {
	*storage.MemoryRepository
	hasErr error
	addErr error
}

func (r failingRepository) HasNotice(ctx context.Context, title, url string) (bool, error) {
	if r.hasErr != nil {
		return false, r.hasErr
	}
	return r.MemoryRepository.HasNotice(ctx, title, url)
}

func (r failingRepository) AddNotice(ctx context.Context, n domain.Notice) (*domain.Notice, error) {
	if r.addErr != nil {
		return nil, r.addErr
	}
	return r.MemoryRepository.AddNotice(ctx, n)
}

func newTestStage(repo *storage.MemoryRepository, fetcher *countingFetcher, notifier *countingNotifier) *Stage {
	stage := NewStage(StageDeps{Repository: repo, Fetcher: fetcher, Notifier: notifier})
	stage.now = func() time.Time { return time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC) }
	return stage
}

func TestStageRejectsIncompleteItems(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{content: "弱电"}
	notifier := &countingNotifier{}
	stage := newTestStage(storage.NewMemoryRepository(nil, nil, nil), fetcher, notifier)
	rules := []domain.KeywordRule{rule(1, "弱电", domain.MatchContain)}

	for _, item := range []domain.CandidateItem{
		{Title: "", URL: "https://example.com/a"},
		{Title: "弱电", URL: ""},
	} {
		outcome, sent := stage.Process(context.Background(), item, rules, nil)
		assert.Equal(t, OutcomeRejected, outcome)
		assert.Zero(t, sent)
	}
	assert.Zero(t, fetcher.calls)
	assert.Zero(t, notifier.calls)
}

func TestStagePersistsMatchOnce(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository(nil, nil, nil)
	fetcher := &countingFetcher{content: "本项目含弱电系统"}
	notifier := &countingNotifier{}
	stage := newTestStage(repo, fetcher, notifier)
	rules := []domain.KeywordRule{rule(1, "弱电", domain.MatchContain)}
	item := domain.CandidateItem{Title: "园区改造", URL: "https://example.com/n/1.html", SourceID: 2, SourceName: "示例"}

	outcome, sent := stage.Process(context.Background(), item, rules, nil)
	assert.Equal(t, OutcomePersisted, outcome)
	assert.Equal(t, 1, sent)

	notices := repo.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "2026-10-19", notices[0].PublishDate)
	assert.Equal(t, "本项目含弱电系统", notices[0].Content)

	outcome, sent = stage.Process(context.Background(), item, rules, nil)
	assert.Equal(t, OutcomeKnown, outcome)
	assert.Zero(t, sent)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 1, notifier.calls)
}

func TestStageKnownByTitleOrURL(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository(nil, nil, nil)
	fetcher := &countingFetcher{content: "弱电"}
	stage := newTestStage(repo, fetcher, &countingNotifier{})
	rules := []domain.KeywordRule{rule(1, "弱电", domain.MatchContain)}

	_, _ = stage.Process(context.Background(), domain.CandidateItem{Title: "A", URL: "https://x/1"}, rules, nil)

	outcome, _ := stage.Process(context.Background(), domain.CandidateItem{Title: "A", URL: "https://x/moved"}, rules, nil)
	assert.Equal(t, OutcomeKnown, outcome)
	outcome, _ = stage.Process(context.Background(), domain.CandidateItem{Title: "A 更正", URL: "https://x/1"}, rules, nil)
	assert.Equal(t, OutcomeKnown, outcome)
	assert.Equal(t, 1, fetcher.calls)
}

func TestStageDiscardsUnmatched(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository(nil, nil, nil)
	notifier := &countingNotifier{}
	stage := newTestStage(repo, &countingFetcher{content: "办公家具"}, notifier)

	outcome, _ := stage.Process(context.Background(),
		domain.CandidateItem{Title: "采购公告", URL: "https://x/2"},
		[]domain.KeywordRule{rule(1, "弱电", domain.MatchContain)}, nil)
	assert.Equal(t, OutcomeDiscarded, outcome)
	assert.Empty(t, repo.Notices())
	assert.Zero(t, notifier.calls)
}

func TestStageRepositoryFailures(t *testing.T) {
	t.Parallel()

	rules := []domain.KeywordRule{rule(1, "弱电", domain.MatchContain)}
	item := domain.CandidateItem{Title: "弱电", URL: "https://x/3"}

	t.Run("existence check", func(t *testing.T) {
		fetcher := &countingFetcher{}
		repo := failingRepository{MemoryRepository: storage.NewMemoryRepository(nil, nil, nil), hasErr: errors.New("db down")}
		stage := NewStage(StageDeps{Repository: repo, Fetcher: fetcher})
		outcome, _ := stage.Process(context.Background(), item, rules, nil)
		assert.Equal(t, OutcomeFailed, outcome)
		assert.Zero(t, fetcher.calls)
	})

	t.Run("insert", func(t *testing.T) {
		notifier := &countingNotifier{}
		repo := failingRepository{MemoryRepository: storage.NewMemoryRepository(nil, nil, nil), addErr: errors.New("constraint")}
		stage := NewStage(StageDeps{Repository: repo, Notifier: notifier})
		outcome, _ := stage.Process(context.Background(), item, rules, nil)
		assert.Equal(t, OutcomeFailed, outcome)
		assert.Zero(t, notifier.calls)
	})
}
