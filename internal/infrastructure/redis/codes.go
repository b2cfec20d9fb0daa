package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-cardlink-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Key prefixes for the two verification keyspaces.
const (
	EmailPrefix = "otp:email:"
	PhonePrefix = "otp:phone:"
)

// CodeStore keeps pending verifications as JSON values under prefix+identifier.
// Keys expire retention after the code itself so an expired code is still reported as expired.
type CodeStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

func NewCodeStore(client *redis.Client, prefix string, retention time.Duration) *CodeStore {
	return &CodeStore{client: client, prefix: prefix, retention: retention, now: time.Now}
}

func (s *CodeStore) Set(ctx context.Context, identifier string, v *domain.PendingVerification) error {
	rec := *v
	rec.Identifier = identifier
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid verification record: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	ttl := time.Unix(rec.ExpiresAt, 0).Sub(s.now()) + s.retention
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.client.Set(ctx, s.prefix+identifier, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set verification: %w", err)
	}
	return nil
}

func (s *CodeStore) Get(ctx context.Context, identifier string) (*domain.PendingVerification, error) {
	data, err := s.client.Get(ctx, s.prefix+identifier).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("redis get verification: %w", err)
	}
	var v domain.PendingVerification
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal verification: %w", err)
	}
	return &v, nil
}

func (s *CodeStore) Delete(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.prefix+identifier).Err(); err != nil {
		return fmt.Errorf("redis del verification: %w", err)
	}
	return nil
}
