package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
	"github.com/smallbiznis/calendar-bridge/internal/repository"
)

const statePrefix = "oauth:state:"

// RedisStateStore implements OAuthStateStore backed by Redis.
type RedisStateStore struct {
	client redis.UniversalClient
}

var _ repository.OAuthStateStore = (*RedisStateStore)(nil)

// NewRedisStateStore constructs a Redis-backed state store.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// SaveState stores the login state and its PKCE verifier with TTL.
func (s *RedisStateStore) SaveState(ctx context.Context, key string, data oauth.OAuthState, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, statePrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// GetState loads the state payload. Unknown or expired keys return nil, nil.
func (s *RedisStateStore) GetState(ctx context.Context, key string) (*oauth.OAuthState, error) {
	bytes, err := s.client.Get(ctx, statePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	var state oauth.OAuthState
	if err := json.Unmarshal(bytes, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

// DeleteState removes the persisted state key.
func (s *RedisStateStore) DeleteState(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, statePrefix+key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}
