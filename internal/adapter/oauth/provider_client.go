package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/smallbiznis/calendar-bridge/internal/config"
	domainoauth "github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
)

// ProviderClient encapsulates outbound calls to the external IdP.
type ProviderClient interface {
	AuthorizationURL(state, codeVerifier string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*domainoauth.TokenGrant, error)
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*domainoauth.TokenGrant, error)
}

// OAuth2ProviderClient is the golang.org/x/oauth2 implementation.
type OAuth2ProviderClient struct {
	config     *oauth2.Config
	provider   string
	prompt     string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

var _ ProviderClient = (*OAuth2ProviderClient)(nil)

// NewOAuth2ProviderClient constructs the default ProviderClient.
func NewOAuth2ProviderClient(cfg config.Config, client *http.Client, logger *zap.Logger) *OAuth2ProviderClient {
	if client == nil {
		client = NewHTTPClient(cfg.HTTPClientTimeout)
	}
	if logger == nil {
		logger = zap.L()
	}
	return &OAuth2ProviderClient{
		config:     NewConfig(cfg),
		provider:   cfg.OAuthProvider,
		prompt:     strings.TrimSpace(cfg.OAuthPrompt),
		httpClient: client,
		logger:     logger,
		now:        time.Now,
	}
}

// NewHTTPClient returns a traced HTTP client for outbound provider calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// NewConfig builds the oauth2 configuration for the configured provider.
func NewConfig(cfg config.Config) *oauth2.Config {
	endpoint := microsoft.AzureADEndpoint(cfg.OAuthTenant)
	if cfg.OAuthProvider == config.ProviderGoogle {
		endpoint = google.Endpoint
	}
	if u := strings.TrimSpace(cfg.OAuthAuthURL); u != "" {
		endpoint.AuthURL = u
	}
	if u := strings.TrimSpace(cfg.OAuthTokenURL); u != "" {
		endpoint.TokenURL = u
	}
	// Both providers accept credentials in the body; fixing the style avoids
	// the second request auto-detection would make after a rejection.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &oauth2.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  cfg.OAuthRedirectURL,
		Scopes:       append([]string{}, cfg.OAuthScopes...),
	}
}

// AuthorizationURL builds the consent URL with state and a PKCE S256 challenge.
func (c *OAuth2ProviderClient) AuthorizationURL(state, codeVerifier string) string {
	opts := []oauth2.AuthCodeOption{}
	if codeVerifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(codeVerifier))
	}
	if c.prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", c.prompt))
	}
	if c.provider == config.ProviderGoogle {
		opts = append(opts, oauth2.AccessTypeOffline)
	} else {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", "query"))
	}
	return c.config.AuthCodeURL(state, opts...)
}

// ExchangeCode trades a one-time authorization code for tokens.
func (c *OAuth2ProviderClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*domainoauth.TokenGrant, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domainoauth.ErrInvalidRequest
	}
	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	token, err := c.config.Exchange(c.clientContext(ctx), code, opts...)
	if err != nil {
		c.logExchangeError("authorization_code", err)
		return nil, fmt.Errorf("exchange code: %w: %w", domainoauth.ErrAuthenticationFailed, err)
	}
	return c.toGrant("authorization_code", token)
}

// ExchangeRefreshToken trades a refresh token for a fresh access token.
func (c *OAuth2ProviderClient) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*domainoauth.TokenGrant, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, domainoauth.ErrInvalidRequest
	}

	source := c.config.TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		c.logExchangeError("refresh_token", err)
		return nil, fmt.Errorf("exchange refresh token: %w: %w", domainoauth.ErrAuthenticationFailed, err)
	}
	return c.toGrant("refresh_token", token)
}

func (c *OAuth2ProviderClient) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *OAuth2ProviderClient) toGrant(grantType string, token *oauth2.Token) (*domainoauth.TokenGrant, error) {
	if token == nil || strings.TrimSpace(token.AccessToken) == "" {
		c.logger.Warn("token response missing access token", zap.String("grant_type", grantType))
		return nil, fmt.Errorf("%s: %w", grantType, domainoauth.ErrAuthenticationFailed)
	}

	grant := &domainoauth.TokenGrant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		IDToken:      stringValue(token.Extra("id_token")),
		Scope:        stringValue(token.Extra("scope")),
		ExpiresIn:    int64Value(token.Extra("expires_in")),
	}
	if grant.ExpiresIn <= 0 && !token.Expiry.IsZero() {
		grant.ExpiresIn = int64(token.Expiry.Sub(c.now()).Round(time.Second).Seconds())
	}
	return grant, nil
}

func (c *OAuth2ProviderClient) logExchangeError(grantType string, err error) {
	fields := []zap.Field{zap.String("grant_type", grantType), zap.String("provider", c.provider)}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil {
			fields = append(fields, zap.Int("status", retrieveErr.Response.StatusCode))
		}
		fields = append(fields,
			zap.String("error_code", retrieveErr.ErrorCode),
			zap.String("error_description", retrieveErr.ErrorDescription),
		)
	} else {
		fields = append(fields, zap.Error(err))
	}
	c.logger.Warn("oauth token exchange failed", fields...)
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
