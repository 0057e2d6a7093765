// Package session persists CWMP conversation state between HTTP round-trips.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crestwave/acs/internal/domain"
)

const keyPrefix = "cwmp:session:"

// RedisStore keeps session state in Redis with a TTL, so a conversation
// abandoned mid-way expires instead of pinning stale protocol state to the
// device key.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, deviceKey string) (*domain.CwmpSession, error) {
	data, err := s.client.Get(ctx, keyPrefix+deviceKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	var sess domain.CwmpSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *domain.CwmpSession) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	sess.UpdatedAt = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+sess.DeviceKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, deviceKey string) error {
	if err := s.client.Del(ctx, keyPrefix+deviceKey).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}
