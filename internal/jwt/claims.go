package jwt

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"go.uber.org/zap"

	"github.com/smallbiznis/calendar-bridge/internal/config"
	"github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
)

var acceptedAlgorithms = []gojose.SignatureAlgorithm{
	gojose.RS256, gojose.RS384, gojose.RS512,
	gojose.PS256, gojose.PS384, gojose.PS512,
	gojose.ES256, gojose.ES384, gojose.ES512,
	gojose.HS256,
}

// IdentityClaims are the identity token claims that can name a user,
// in resolution order.
type IdentityClaims struct {
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	UPN               string `json:"upn"`
}

// Identity returns the first non-empty claim.
func (c IdentityClaims) Identity() string {
	for _, v := range []string{c.PreferredUsername, c.Email, c.UPN} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ClaimExtractor reads the user identity out of an identity token.
type ClaimExtractor struct {
	verifier *oidc.IDTokenVerifier
	logger   *zap.Logger
}

// NewClaimExtractor builds an extractor. Signatures are only checked when
// cfg.VerifyIDToken is set; the key set is then fetched lazily from
// cfg.OIDCJWKSURL with client.
func NewClaimExtractor(cfg config.Config, client *http.Client, logger *zap.Logger) *ClaimExtractor {
	if logger == nil {
		logger = zap.L()
	}
	extractor := &ClaimExtractor{logger: logger}
	if !cfg.VerifyIDToken {
		return extractor
	}

	ctx := context.Background()
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	keySet := oidc.NewRemoteKeySet(ctx, cfg.OIDCJWKSURL)
	extractor.verifier = oidc.NewVerifier(cfg.OIDCIssuer, keySet, &oidc.Config{
		ClientID:        cfg.OAuthClientID,
		SkipIssuerCheck: strings.TrimSpace(cfg.OIDCIssuer) == "",
	})
	return extractor
}

// Verifying reports whether signatures are checked.
func (e *ClaimExtractor) Verifying() bool {
	return e.verifier != nil
}

// Resolve returns the identity carried by rawIDToken.
func (e *ClaimExtractor) Resolve(ctx context.Context, rawIDToken string) (string, error) {
	rawIDToken = strings.TrimSpace(rawIDToken)
	if rawIDToken == "" {
		return "", fmt.Errorf("missing id token: %w", oauth.ErrIdentityUnresolvable)
	}

	var claims IdentityClaims
	if e.verifier != nil {
		token, err := e.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			e.logger.Warn("id token verification failed", zap.Error(err))
			return "", fmt.Errorf("verify id token: %w", oauth.ErrIdentityUnresolvable)
		}
		if err := token.Claims(&claims); err != nil {
			return "", fmt.Errorf("decode id token claims: %w", oauth.ErrIdentityUnresolvable)
		}
	} else {
		parsed, err := gojwt.ParseSigned(rawIDToken, acceptedAlgorithms)
		if err != nil {
			return "", fmt.Errorf("parse id token: %w", oauth.ErrIdentityUnresolvable)
		}
		if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
			return "", fmt.Errorf("decode id token claims: %w", oauth.ErrIdentityUnresolvable)
		}
	}

	identity := claims.Identity()
	if identity == "" {
		return "", fmt.Errorf("no identity claim: %w", oauth.ErrIdentityUnresolvable)
	}
	return identity, nil
}
