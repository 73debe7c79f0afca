package jwt_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/calendar-bridge/internal/config"
	"github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
	customjwt "github.com/smallbiznis/calendar-bridge/internal/jwt"
)

func signHS256(t *testing.T, claims any) string {
	t.Helper()
	signer, err := gojose.NewSigner(gojose.SigningKey{Algorithm: gojose.HS256, Key: []byte("0123456789abcdef0123456789abcdef")}, (&gojose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)
	token, err := gojwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)
	return token
}

func TestResolveClaimPriority(t *testing.T) {
	extractor := customjwt.NewClaimExtractor(config.Config{}, nil, zap.NewNop())
	require.False(t, extractor.Verifying())
	ctx := context.Background()

	cases := []struct {
		name   string
		claims map[string]any
		want   string
	}{
		{"preferred username wins", map[string]any{"preferred_username": "alice@contoso.com", "email": "a@other.com", "upn": "upn@contoso.com"}, "alice@contoso.com"},
		{"email fallback", map[string]any{"email": "bob@example.com", "upn": "upn@contoso.com"}, "bob@example.com"},
		{"upn fallback", map[string]any{"preferred_username": " ", "upn": "carol@contoso.com"}, "carol@contoso.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			identity, err := extractor.Resolve(ctx, signHS256(t, tc.claims))
			require.NoError(t, err)
			require.Equal(t, tc.want, identity)
		})
	}
}

func TestResolveUnresolvable(t *testing.T) {
	extractor := customjwt.NewClaimExtractor(config.Config{}, nil, zap.NewNop())
	ctx := context.Background()

	for name, raw := range map[string]string{
		"empty":     "",
		"malformed": "not-a-token",
		"no claims": signHS256(t, map[string]any{"sub": "123", "name": "Dana"}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := extractor.Resolve(ctx, raw)
			require.ErrorIs(t, err, oauth.ErrIdentityUnresolvable)
		})
	}
}

func TestResolveVerified(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := gojose.JSONWebKeySet{Keys: []gojose.JSONWebKey{{Key: &key.PublicKey, KeyID: "k1", Algorithm: string(gojose.RS256), Use: "sig"}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	cfg := config.Config{OAuthClientID: "client-id", VerifyIDToken: true, OIDCJWKSURL: srv.URL}
	extractor := customjwt.NewClaimExtractor(cfg, srv.Client(), zap.NewNop())
	require.True(t, extractor.Verifying())

	sign := func(k *rsa.PrivateKey, audience string) string {
		signer, err := gojose.NewSigner(gojose.SigningKey{Algorithm: gojose.RS256, Key: k}, (&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", "k1"))
		require.NoError(t, err)
		now := time.Now()
		token, err := gojwt.Signed(signer).
			Claims(gojwt.Claims{
				Issuer:   "https://login.microsoftonline.com/tenant/v2.0",
				Subject:  "user-1",
				Audience: gojwt.Audience{audience},
				IssuedAt: gojwt.NewNumericDate(now),
				Expiry:   gojwt.NewNumericDate(now.Add(time.Hour)),
			}).
			Claims(map[string]any{"preferred_username": "erin@contoso.com"}).
			Serialize()
		require.NoError(t, err)
		return token
	}

	identity, err := extractor.Resolve(context.Background(), sign(key, "client-id"))
	require.NoError(t, err)
	require.Equal(t, "erin@contoso.com", identity)

	_, err = extractor.Resolve(context.Background(), sign(key, "someone-else"))
	require.ErrorIs(t, err, oauth.ErrIdentityUnresolvable)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = extractor.Resolve(context.Background(), sign(other, "client-id"))
	require.ErrorIs(t, err, oauth.ErrIdentityUnresolvable)
}
