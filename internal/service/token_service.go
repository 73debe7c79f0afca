package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	oauthadapter "github.com/smallbiznis/calendar-bridge/internal/adapter/oauth"
	"github.com/smallbiznis/calendar-bridge/internal/config"
	"github.com/smallbiznis/calendar-bridge/internal/domain"
	"github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
	"github.com/smallbiznis/calendar-bridge/internal/repository"
)

// DefaultExpiresIn applies when the provider omits expires_in.
const DefaultExpiresIn int64 = 3600

const defaultRefreshTimeout = 30 * time.Second

// TokenService owns the delegated token of every identity: it returns a
// usable access token, refreshing it through the provider when it is
// about to expire.
type TokenService struct {
	tokens   repository.TokenRepository
	provider oauthadapter.ProviderClient
	buffer   time.Duration
	timeout  time.Duration
	now      func() time.Time
	flights  singleflight.Group
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewTokenService constructs the token lifecycle manager.
func NewTokenService(tokens repository.TokenRepository, provider oauthadapter.ProviderClient, cfg config.Config, logger *zap.Logger) *TokenService {
	timeout := cfg.HTTPClientTimeout
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	return &TokenService{
		tokens:   tokens,
		provider: provider,
		buffer:   cfg.TokenRefreshBuffer,
		timeout:  timeout,
		now:      time.Now,
		logger:   logger,
		tracer:   otel.Tracer("github.com/smallbiznis/calendar-bridge/internal/service"),
	}
}

// WithClock replaces the time source.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// AccessToken returns a usable access token for identity.
//
// A token is reused while now+buffer is before its expiry. Otherwise it is
// refreshed once; a record without a refresh token requires a new login.
// Concurrent refreshes of one identity share a single provider call. The
// shared call is detached from any one caller's cancellation and bounded by
// the outbound client timeout; each caller stops waiting when its own
// context ends.
func (s *TokenService) AccessToken(ctx context.Context, identity string) (string, error) {
	ctx, span := s.startSpan(ctx, "TokenService.AccessToken")
	defer span.End()

	identity = repository.NormalizeIdentity(identity)
	if identity == "" {
		return "", oauth.ErrNotAuthenticated
	}

	record, err := s.lookup(ctx, identity)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if record.FreshAt(s.now(), s.buffer) {
		return record.AccessToken, nil
	}
	if !record.HasRefreshToken() {
		s.audit("token.reauthentication_required", "identity", identity)
		return "", oauth.ErrReauthenticationRequired
	}

	flight := s.flights.DoChan(identity, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.refresh(flightCtx, identity)
	})
	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return "", ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			span.RecordError(res.Err)
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *TokenService) refresh(ctx context.Context, identity string) (string, error) {
	// Another flight may have renewed the record since the caller read it.
	record, err := s.lookup(ctx, identity)
	if err != nil {
		return "", err
	}
	if record.FreshAt(s.now(), s.buffer) {
		return record.AccessToken, nil
	}
	if !record.HasRefreshToken() {
		return "", oauth.ErrReauthenticationRequired
	}

	grant, err := s.provider.ExchangeRefreshToken(ctx, record.RefreshToken)
	if err != nil {
		// A timed out exchange is not a rejection of the refresh token.
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.log().Warn("token refresh interrupted", zap.String("identity", identity), zap.Error(ctxErr))
			return "", fmt.Errorf("refresh token: %w", ctxErr)
		}
		s.audit("token.refresh.failed", "identity", identity)
		return "", fmt.Errorf("%w: %w", oauth.ErrRefreshFailed, err)
	}

	record.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		record.RefreshToken = grant.RefreshToken
	}
	record.ExpiresAt = s.expiresAt(grant.ExpiresIn)

	stored, err := s.tokens.Upsert(ctx, record)
	if err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	s.audit("token.refresh.success", "identity", identity, "expires_at", stored.ExpiresAt)
	return stored.AccessToken, nil
}

// Store persists a freshly exchanged grant as the identity's token record.
// A grant without a refresh token keeps the one already on file.
func (s *TokenService) Store(ctx context.Context, identity string, grant *oauth.TokenGrant) (domain.TokenRecord, error) {
	ctx, span := s.startSpan(ctx, "TokenService.Store")
	defer span.End()

	identity = repository.NormalizeIdentity(identity)
	if identity == "" {
		return domain.TokenRecord{}, oauth.ErrIdentityUnresolvable
	}
	if grant == nil || strings.TrimSpace(grant.AccessToken) == "" {
		return domain.TokenRecord{}, oauth.ErrAuthenticationFailed
	}

	record := domain.TokenRecord{
		Identity:     identity,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    s.expiresAt(grant.ExpiresIn),
	}
	if record.RefreshToken == "" {
		existing, err := s.tokens.FindByIdentity(ctx, identity)
		switch {
		case err == nil:
			record.RefreshToken = existing.RefreshToken
		case !errors.Is(err, pgx.ErrNoRows):
			span.RecordError(err)
			return domain.TokenRecord{}, fmt.Errorf("load token: %w", err)
		}
	}

	stored, err := s.tokens.Upsert(ctx, record)
	if err != nil {
		span.RecordError(err)
		return domain.TokenRecord{}, fmt.Errorf("store token: %w", err)
	}
	s.audit("token.stored", "identity", identity, "expires_at", stored.ExpiresAt, "refreshable", stored.HasRefreshToken())
	return stored, nil
}

// Revoke deletes the identity's token record.
func (s *TokenService) Revoke(ctx context.Context, identity string) error {
	ctx, span := s.startSpan(ctx, "TokenService.Revoke")
	defer span.End()

	identity = repository.NormalizeIdentity(identity)
	if identity == "" {
		return oauth.ErrTokenNotFound
	}
	removed, err := s.tokens.Delete(ctx, identity)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke token: %w", err)
	}
	if !removed {
		return oauth.ErrTokenNotFound
	}
	s.audit("token.revoked", "identity", identity)
	return nil
}

func (s *TokenService) lookup(ctx context.Context, identity string) (domain.TokenRecord, error) {
	record, err := s.tokens.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TokenRecord{}, oauth.ErrNotAuthenticated
		}
		return domain.TokenRecord{}, fmt.Errorf("load token: %w", err)
	}
	return record, nil
}

func (s *TokenService) expiresAt(expiresIn int64) time.Time {
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}
	return s.now().Add(time.Duration(expiresIn) * time.Second).UTC()
}

func (s *TokenService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *TokenService) audit(event string, attrs ...any) {
	logger := s.log()
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", s.now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *TokenService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
