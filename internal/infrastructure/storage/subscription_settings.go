package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

// SubscriptionKey is the Redis key shared with the administrative surface.
const SubscriptionKey = "subscription:status"

// SubscriptionStore reads the subscription switch from Redis and falls back
// to configured defaults when Redis is absent, empty or unreadable.
type SubscriptionStore struct {
	client   *redis.Client
	fallback domain.SubscriptionSettings
	logger   *slog.Logger
}

var _ ports.SubscriptionSettings = (*SubscriptionStore)(nil)

func NewSubscriptionStore(client *redis.Client, fallback domain.SubscriptionSettings, logger *slog.Logger) *SubscriptionStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SubscriptionStore{client: client, fallback: fallback, logger: logger.With("component", "subscription")}
}

// Load never fails. Stored settings without template ids inherit the
// configured ones.
func (s *SubscriptionStore) Load(ctx context.Context) domain.SubscriptionSettings {
	if s.client == nil {
		return s.fallback
	}
	data, err := s.client.Get(ctx, SubscriptionKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.fallback
	}
	if err != nil {
		s.logger.Warn("read subscription settings failed", "error", err)
		return s.fallback
	}

	var settings domain.SubscriptionSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		s.logger.Warn("decode subscription settings failed", "error", err)
		return s.fallback
	}
	if len(settings.TemplateIDs) == 0 {
		settings.TemplateIDs = s.fallback.TemplateIDs
	}
	return settings
}

// Save stores settings for every process sharing the Redis instance.
func (s *SubscriptionStore) Save(ctx context.Context, settings domain.SubscriptionSettings) error {
	if s.client == nil {
		return errors.New("subscription settings need redis")
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal subscription settings: %w", err)
	}
	if err := s.client.Set(ctx, SubscriptionKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("write subscription settings: %w", err)
	}
	return nil
}
