package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/calendar-bridge/internal/domain"
	"github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
)

// TokenRepository persists one delegated token record per identity.
// FindByIdentity reports a missing record with a wrapped pgx.ErrNoRows.
type TokenRepository interface {
	FindByIdentity(ctx context.Context, identity string) (domain.TokenRecord, error)
	Upsert(ctx context.Context, record domain.TokenRecord) (domain.TokenRecord, error)
	Delete(ctx context.Context, identity string) (bool, error)
}

// OAuthStateStore persists short-lived authorization state/pkce structures.
type OAuthStateStore interface {
	SaveState(ctx context.Context, key string, data oauth.OAuthState, ttl time.Duration) error
	GetState(ctx context.Context, key string) (*oauth.OAuthState, error)
	DeleteState(ctx context.Context, key string) error
}
