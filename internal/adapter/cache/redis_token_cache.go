package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smallbiznis/calendar-bridge/internal/domain"
	"github.com/smallbiznis/calendar-bridge/internal/repository"
)

const tokenPrefix = "calendar:token:"

// TokenCache is a read-through Redis cache in front of a durable
// TokenRepository. The durable store is always written first; Redis errors
// are logged and the call falls back to the durable store.
type TokenCache struct {
	next   repository.TokenRepository
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

var _ repository.TokenRepository = (*TokenCache)(nil)

// NewTokenCache wraps next with a Redis read-through cache.
func NewTokenCache(next repository.TokenRepository, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *TokenCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.L()
	}
	return &TokenCache{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *TokenCache) FindByIdentity(ctx context.Context, identity string) (domain.TokenRecord, error) {
	key := tokenKey(identity)
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var record domain.TokenRecord
		if decodeErr := json.Unmarshal(payload, &record); decodeErr == nil {
			return record, nil
		}
		c.logger.Warn("discarding undecodable token cache entry")
		c.evict(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("token cache read failed", zap.Error(err))
	}

	record, err := c.next.FindByIdentity(ctx, identity)
	if err != nil {
		return domain.TokenRecord{}, err
	}
	c.put(ctx, record)
	return record, nil
}

func (c *TokenCache) Upsert(ctx context.Context, record domain.TokenRecord) (domain.TokenRecord, error) {
	stored, err := c.next.Upsert(ctx, record)
	if err != nil {
		// The durable state is unknown; make the next read go to the store.
		c.evict(ctx, tokenKey(record.Identity))
		return domain.TokenRecord{}, err
	}
	c.put(ctx, stored)
	return stored, nil
}

// Delete evicts around the durable delete so a concurrent read-through
// cannot leave the removed record cached.
func (c *TokenCache) Delete(ctx context.Context, identity string) (bool, error) {
	key := tokenKey(identity)
	c.evict(ctx, key)
	removed, err := c.next.Delete(ctx, identity)
	if err != nil {
		return false, err
	}
	c.evict(ctx, key)
	return removed, nil
}

func (c *TokenCache) put(ctx context.Context, record domain.TokenRecord) {
	ttl := c.ttl
	if until := time.Until(record.ExpiresAt); until > 0 && until < ttl {
		ttl = until
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, tokenKey(record.Identity), payload, ttl).Err(); err != nil {
		c.logger.Warn("token cache write failed", zap.Error(err))
	}
}

func (c *TokenCache) evict(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("token cache evict failed", zap.Error(err))
	}
}

func tokenKey(identity string) string {
	return tokenPrefix + repository.NormalizeIdentity(identity)
}
