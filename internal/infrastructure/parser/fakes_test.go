package parser

import (
	"context"
	"errors"
	"sync"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

type fakeStore struct {
	mu        sync.Mutex
	creds     map[string]domain.Credential
	overrides map[string]domain.Credential
	puts      []domain.Credential
}

func newFakeStore() *fakeStore {
	return &fakeStore{creds: map[string]domain.Credential{}, overrides: map[string]domain.Credential{}}
}

func (s *fakeStore) Get(_ context.Context, family string) (domain.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred, ok := s.overrides[family]; ok {
		return cred, true
	}
	cred, ok := s.creds[family]
	return cred, ok
}

func (s *fakeStore) Override(family string) (domain.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.overrides[family]
	return cred, ok
}

func (s *fakeStore) Put(_ context.Context, cred domain.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.Family] = cred
	s.puts = append(s.puts, cred)
}

type fakeSession struct {
	capture  ports.Capture
	fetch    func(ctx context.Context, req ports.BrowserRequest) ([]byte, error)
	requests []ports.BrowserRequest
}

func (s *fakeSession) Capture() ports.Capture { return s.capture }

func (s *fakeSession) Fetch(ctx context.Context, req ports.BrowserRequest) ([]byte, error) {
	s.requests = append(s.requests, req)
	if s.fetch == nil {
		return nil, errors.New("no fetch configured")
	}
	return s.fetch(ctx, req)
}

type fakeHarvester struct {
	session *fakeSession
	err     error
	targets []ports.HarvestTarget
}

func (h *fakeHarvester) WithSession(_ context.Context, target ports.HarvestTarget, fn func(ports.BrowserSession) error) error {
	h.targets = append(h.targets, target)
	if h.err != nil {
		return h.err
	}
	return fn(h.session)
}
