package oauth

import "time"

// TokenGrant is the normalized result of a code or refresh token exchange.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
	IDToken      string
	Scope        string
}

// OAuthState captures the state/pkce pair persisted between login and callback.
type OAuthState struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
}
