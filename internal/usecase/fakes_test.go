package usecase

import (
	"context"
	"sync"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

type recordingMessenger struct {
	mu   sync.Mutex
	sent []ports.Message
	fail map[string]bool
}

func (m *recordingMessenger) Send(_ context.Context, msg ports.Message) ports.SendResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	if m.fail[msg.Recipient] {
		return ports.SendResult{OK: false, Message: "rejected"}
	}
	return ports.SendResult{OK: true, Message: "ok"}
}

func (m *recordingMessenger) messages() []ports.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.Message(nil), m.sent...)
}

type staticSettings domain.SubscriptionSettings

func (s staticSettings) Load(context.Context) domain.SubscriptionSettings {
	return domain.SubscriptionSettings(s)
}

type countingFetcher struct {
	mu      sync.Mutex
	content string
	calls   int
}

func (f *countingFetcher) FetchContent(context.Context, string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.content
}

type countingNotifier struct {
	calls int
}

func (n *countingNotifier) Notify(context.Context, domain.Notice, []domain.KeywordRule) int {
	n.calls++
	return 1
}

type fixedAdapter struct {
	items []domain.CandidateItem
	panic bool
}

func (a fixedAdapter) Harvest(context.Context, domain.Source) []domain.CandidateItem {
	if a.panic {
		panic("listing layout changed")
	}
	return a.items
}
