package domain

import "time"

// TokenRecord stores the delegated provider tokens of one user identity.
type TokenRecord struct {
	ID           int64     `json:"id"`
	Identity     string    `json:"identity"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRefreshToken reports whether the record can be renewed without the user.
func (r TokenRecord) HasRefreshToken() bool {
	return r.RefreshToken != ""
}

// FreshAt reports whether the access token is still usable at now, treating
// anything that expires within buffer as already expired.
func (r TokenRecord) FreshAt(now time.Time, buffer time.Duration) bool {
	return now.Add(buffer).Before(r.ExpiresAt)
}
