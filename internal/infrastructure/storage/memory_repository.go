package storage

import (
	"context"
	"sync"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

// MemoryRepository keeps everything in process memory. It backs local runs
// without a database; sources, rules and subscribers come from config.
type MemoryRepository struct {
	mu          sync.RWMutex
	sources     []domain.Source
	rules       []domain.KeywordRule
	subscribers []domain.Subscriber
	notices     []domain.Notice
	uids        map[string]struct{}
	nextID      int64
}

var _ ports.NoticeRepository = (*MemoryRepository)(nil)

// NewMemoryRepository seeds the read-only collections.
func NewMemoryRepository(sources []domain.Source, rules []domain.KeywordRule, subscribers []domain.Subscriber) *MemoryRepository {
	return &MemoryRepository{
		sources:     sources,
		rules:       rules,
		subscribers: subscribers,
		uids:        map[string]struct{}{},
		nextID:      1,
	}
}

func (r *MemoryRepository) GetSources(context.Context) ([]domain.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Source(nil), r.sources...), nil
}

// HasNotice matches on URL or exact title.
func (r *MemoryRepository) HasNotice(_ context.Context, title, url string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.notices {
		if (title != "" && n.Title == title) || (url != "" && n.URL == url) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) AddNotice(_ context.Context, notice domain.Notice) (*domain.Notice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.uids[notice.UID]; ok {
		return nil, nil
	}
	notice.ID = r.nextID
	r.nextID++
	r.uids[notice.UID] = struct{}{}
	r.notices = append(r.notices, notice)
	return &notice, nil
}

func (r *MemoryRepository) GetActiveKeywordRules(context.Context) ([]domain.KeywordRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	active := make([]domain.KeywordRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Active {
			active = append(active, rule)
		}
	}
	return active, nil
}

func (r *MemoryRepository) GetSubscribers(context.Context) ([]domain.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Subscriber(nil), r.subscribers...), nil
}

// Notices returns persisted notices in insertion order.
func (r *MemoryRepository) Notices() []domain.Notice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Notice(nil), r.notices...)
}
