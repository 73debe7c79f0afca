package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	oauthadapter "github.com/smallbiznis/calendar-bridge/internal/adapter/oauth"
	"github.com/smallbiznis/calendar-bridge/internal/config"
	"github.com/smallbiznis/calendar-bridge/internal/domain"
	domainoauth "github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
	"github.com/smallbiznis/calendar-bridge/internal/repository"
)

// OAuthService drives the delegated authorization flow.
type OAuthService interface {
	StartLogin(ctx context.Context) (*StartLoginOutput, error)
	HandleCallback(ctx context.Context, in CallbackInput) (*Session, error)
	Logout(ctx context.Context, identity string) error
}

// StartLoginOutput carries the provider consent URL.
type StartLoginOutput struct {
	AuthorizationURL string
	State            string
}

// CallbackInput captures callback query parameters.
type CallbackInput struct {
	Code  string
	State string
}

// Session describes the identity whose tokens were stored by a callback.
type Session struct {
	Identity  string
	ExpiresAt time.Time
}

// IdentityResolver reads the user identity out of an identity token.
type IdentityResolver interface {
	Resolve(ctx context.Context, rawIDToken string) (string, error)
}

// TokenStore persists and revokes delegated tokens.
type TokenStore interface {
	Store(ctx context.Context, identity string, grant *domainoauth.TokenGrant) (domain.TokenRecord, error)
	Revoke(ctx context.Context, identity string) error
}

type oauthService struct {
	stateStore     repository.OAuthStateStore
	providerClient oauthadapter.ProviderClient
	identities     IdentityResolver
	tokens         TokenStore
	cfg            config.Config
	logger         *zap.Logger
}

// NewOAuthService wires the OAuth service implementation.
func NewOAuthService(
	stateStore repository.OAuthStateStore,
	providerClient oauthadapter.ProviderClient,
	identities IdentityResolver,
	tokens TokenStore,
	cfg config.Config,
	logger *zap.Logger,
) OAuthService {
	return &oauthService{
		stateStore:     stateStore,
		providerClient: providerClient,
		identities:     identities,
		tokens:         tokens,
		cfg:            cfg,
		logger:         logger,
	}
}

const stateTTL = 10 * time.Minute

func (s *oauthService) StartLogin(ctx context.Context) (*StartLoginOutput, error) {
	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()

	payload := domainoauth.OAuthState{
		State:        state,
		CodeVerifier: verifier,
		RedirectURI:  s.cfg.OAuthRedirectURL,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.stateStore.SaveState(ctx, state, payload, stateTTL); err != nil {
		return nil, fmt.Errorf("persist state: %w", err)
	}

	return &StartLoginOutput{
		AuthorizationURL: s.providerClient.AuthorizationURL(state, verifier),
		State:            state,
	}, nil
}

func (s *oauthService) HandleCallback(ctx context.Context, in CallbackInput) (*Session, error) {
	if err := validateCallbackInput(in); err != nil {
		return nil, err
	}

	state, err := s.consumeState(ctx, strings.TrimSpace(in.State))
	if err != nil {
		return nil, err
	}

	grant, err := s.providerClient.ExchangeCode(ctx, strings.TrimSpace(in.Code), state.CodeVerifier)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	identity, err := s.identities.Resolve(ctx, grant.IDToken)
	if err != nil {
		s.log().Warn("identity token carried no usable identity", zap.Error(err))
		return nil, err
	}

	record, err := s.tokens.Store(ctx, identity, grant)
	if err != nil {
		return nil, err
	}
	s.log().Info("audit", zap.String("event", "login.success"), zap.String("identity", record.Identity))

	return &Session{Identity: record.Identity, ExpiresAt: record.ExpiresAt}, nil
}

func (s *oauthService) Logout(ctx context.Context, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return domainoauth.ErrInvalidRequest
	}
	if err := s.tokens.Revoke(ctx, identity); err != nil {
		return err
	}
	s.log().Info("audit", zap.String("event", "logout"), zap.String("identity", identity))
	return nil
}

func validateCallbackInput(in CallbackInput) error {
	if strings.TrimSpace(in.State) == "" || strings.TrimSpace(in.Code) == "" {
		return domainoauth.ErrInvalidRequest
	}
	return nil
}

// consumeState loads the login state and deletes it so it cannot be replayed.
func (s *oauthService) consumeState(ctx context.Context, key string) (*domainoauth.OAuthState, error) {
	state, err := s.stateStore.GetState(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		return nil, domainoauth.ErrInvalidState
	}
	if err := s.stateStore.DeleteState(ctx, key); err != nil {
		s.log().Warn("failed to delete oauth state", zap.Error(err))
	}
	if state.State != key {
		return nil, domainoauth.ErrInvalidState
	}
	// The code is bound to the redirect URI it was issued for.
	if state.RedirectURI != s.cfg.OAuthRedirectURL {
		s.log().Warn("oauth state issued for a different redirect uri")
		return nil, domainoauth.ErrInvalidState
	}
	return state, nil
}

func (s *oauthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
