// Package credentials keeps harvested cookies and tokens per source family.
// Lookup order: explicit env override, process memory, the family's JSON
// file, then the Redis mirror shared between processes.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

// ErrNotFound is returned by Load when no layer holds a credential.
var ErrNotFound = errors.New("credential not found")

const (
	keyPrefix  = "tenderradar:credential:"
	defaultTTL = 12 * time.Hour
)

// Options configures the store layers. Redis may be nil.
type Options struct {
	Files     map[string]string
	Overrides map[string]domain.Credential
	Redis     *redis.Client
	TTL       time.Duration
}

// fileRecord is the on-disk format shared with the refresh command.
type fileRecord struct {
	Cookie           string    `json:"cookie"`
	Token            string    `json:"token,omitempty"`
	CapturedAt       time.Time `json:"capturedAt,omitzero"`
	CapturedRequests []string  `json:"capturedRequests,omitempty"`
}

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	memory    map[string]domain.Credential
	files     map[string]string
	overrides map[string]domain.Credential
	redis     *redis.Client
	ttl       time.Duration
	logger    *slog.Logger
}

var _ ports.CredentialStore = (*Store)(nil)

func New(opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	overrides := make(map[string]domain.Credential, len(opts.Overrides))
	for family, cred := range opts.Overrides {
		if cred.Empty() {
			continue
		}
		cred.Family = family
		cred.Origin = "env"
		overrides[family] = cred
	}
	return &Store{
		memory:    map[string]domain.Credential{},
		files:     opts.Files,
		overrides: overrides,
		redis:     opts.Redis,
		ttl:       ttl,
		logger:    logger.With("component", "credentials"),
	}
}

// Override returns env-provided values for family.
func (s *Store) Override(family string) (domain.Credential, bool) {
	cred, ok := s.overrides[family]
	return cred, ok
}

// Get resolves family through every layer; misses are not errors.
func (s *Store) Get(ctx context.Context, family string) (domain.Credential, bool) {
	cred, err := s.Load(ctx, family)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("credential lookup failed", "family", family, "error", err)
		}
		return domain.Credential{}, false
	}
	return cred, true
}

// Load is Get with the failure reason.
func (s *Store) Load(ctx context.Context, family string) (domain.Credential, error) {
	if cred, ok := s.Override(family); ok {
		return cred, nil
	}

	s.mu.RLock()
	cred, ok := s.memory[family]
	s.mu.RUnlock()
	if ok {
		return cred, nil
	}

	var errs []error
	if cred, err := s.readFile(family); err == nil {
		s.remember(cred)
		return cred, nil
	} else if !errors.Is(err, ErrNotFound) {
		errs = append(errs, err)
	}

	if cred, err := s.readRedis(ctx, family); err == nil {
		s.remember(cred)
		return cred, nil
	} else if !errors.Is(err, ErrNotFound) {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return domain.Credential{}, errors.Join(errs...)
	}
	return domain.Credential{}, fmt.Errorf("%w: %s", ErrNotFound, family)
}

// Put stores cred in memory and mirrors it to Redis.
func (s *Store) Put(ctx context.Context, cred domain.Credential) {
	if cred.Family == "" || cred.Empty() {
		return
	}
	if cred.CapturedAt.IsZero() {
		cred.CapturedAt = time.Now()
	}
	s.remember(cred)

	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(cred)
	if err != nil {
		s.logger.Warn("marshal credential failed", "family", cred.Family, "error", err)
		return
	}
	if err := s.redis.Set(ctx, keyPrefix+cred.Family, payload, s.ttl).Err(); err != nil {
		s.logger.Warn("mirror credential to redis failed", "family", cred.Family, "error", err)
	}
}

// Persist writes cred to the family's JSON file along with the API requests
// observed while harvesting it.
func (s *Store) Persist(cred domain.Credential, requests []string) error {
	path, ok := s.files[cred.Family]
	if !ok || path == "" {
		return fmt.Errorf("no credential file configured for %q", cred.Family)
	}
	payload, err := json.MarshalIndent(fileRecord{
		Cookie:           cred.Cookie,
		Token:            cred.Token,
		CapturedAt:       cred.CapturedAt,
		CapturedRequests: requests,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential file: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create credential dir: %w", err)
		}
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

func (s *Store) remember(cred domain.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory[cred.Family] = cred
}

func (s *Store) readFile(family string) (domain.Credential, error) {
	path, ok := s.files[family]
	if !ok || path == "" {
		return domain.Credential{}, ErrNotFound
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Credential{}, ErrNotFound
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("read %s: %w", path, err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Credential{}, fmt.Errorf("decode %s: %w", path, err)
	}
	cred := domain.Credential{
		Family:     family,
		Cookie:     rec.Cookie,
		Token:      rec.Token,
		CapturedAt: rec.CapturedAt,
		Origin:     "file",
	}
	if cred.Empty() {
		return domain.Credential{}, ErrNotFound
	}
	return cred, nil
}

func (s *Store) readRedis(ctx context.Context, family string) (domain.Credential, error) {
	if s.redis == nil {
		return domain.Credential{}, ErrNotFound
	}
	data, err := s.redis.Get(ctx, keyPrefix+family).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Credential{}, ErrNotFound
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("redis get credential: %w", err)
	}
	var cred domain.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return domain.Credential{}, fmt.Errorf("decode redis credential: %w", err)
	}
	cred.Family = family
	cred.Origin = "redis"
	if cred.Empty() {
		return domain.Credential{}, ErrNotFound
	}
	return cred, nil
}
