package oauth

import (
	"context"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

// Provider is the OAuth surface the token manager and the connect flow need
type Provider interface {
	// IsConfigured returns true if the provider has client credentials
	IsConfigured() bool

	// AuthorizeURL generates the consent URL carrying state
	AuthorizeURL(state string) string

	// Exchange trades an authorization code for a grant including a refresh token
	Exchange(ctx context.Context, userId, code string) (*types.TokenGrant, error)

	// Refresh obtains a new access token. A provider rejection is a
	// RefreshFailedError; network failures are a ProviderTransportError.
	Refresh(ctx context.Context, userId, refreshToken string) (*types.TokenGrant, error)
}
