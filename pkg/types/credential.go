package types

import "time"

// Credential is the stored Gmail OAuth grant for one user
type Credential struct {
	UserId       string    `db:"user_id" json:"user_id"`
	AccessToken  string    `db:"access_token" json:"-"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	TokenExpiry  time.Time `db:"token_expiry" json:"token_expiry"`
	Scope        string    `db:"scope" json:"scope"`
	ConnectedAt  time.Time `db:"connected_at" json:"connected_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// IsUsable returns true if the credential can be refreshed
func (c *Credential) IsUsable() bool {
	return c != nil && c.RefreshToken != ""
}

// NeedsRefresh returns true if the access token expires within buffer of now
func (c *Credential) NeedsRefresh(now time.Time, buffer time.Duration) bool {
	if c.AccessToken == "" {
		return true
	}
	return !now.Add(buffer).Before(c.TokenExpiry)
}

// TokenGrant is the result of an authorization code exchange or a refresh
type TokenGrant struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"` // Empty on refresh
	Expiry       time.Time `json:"expiry"`
	Scope        string    `json:"scope,omitempty"`
}
