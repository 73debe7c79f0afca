package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("oauth: invalid request")
	// ErrInvalidState indicates the OAuth state is unknown, expired or already used.
	ErrInvalidState = errors.New("oauth: invalid state")
	// ErrAuthenticationFailed signals the IdP rejected a code or refresh token.
	ErrAuthenticationFailed = errors.New("oauth: authentication failed")
	// ErrRefreshFailed signals a failed refresh exchange; the user must log in again.
	ErrRefreshFailed = fmt.Errorf("oauth: refresh failed: %w", ErrAuthenticationFailed)
	// ErrReauthenticationRequired indicates an expired token with no refresh token.
	ErrReauthenticationRequired = errors.New("oauth: token expired, re-authentication required")
	// ErrNotAuthenticated indicates the identity never completed the authorization flow.
	ErrNotAuthenticated = errors.New("oauth: identity not authenticated")
	// ErrTokenNotFound signals that no token record exists for the identity.
	ErrTokenNotFound = errors.New("oauth: token record not found")
	// ErrIdentityUnresolvable indicates no identity could be read from an identity token.
	ErrIdentityUnresolvable = errors.New("oauth: identity unresolvable")
	// ErrGatewayFailure wraps calendar provider failures.
	ErrGatewayFailure = errors.New("calendar: gateway failure")
)
