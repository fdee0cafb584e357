package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/wahajws/amast-crm-sub000/pkg/gmail"
	"github.com/wahajws/amast-crm-sub000/pkg/repository"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const (
	DefaultRefreshBuffer = 5 * time.Minute
	refreshTimeout       = 30 * time.Second
)

// TokenManager hands out Gmail clients backed by a fresh access token.
// Refreshes for one user are collapsed so concurrent callers share one
// provider round trip.
type TokenManager struct {
	creds    repository.CredentialRepository
	provider Provider
	clients  *gmail.Factory
	buffer   time.Duration
	flight   singleflight.Group
	nowFn    func() time.Time
}

func NewTokenManager(creds repository.CredentialRepository, provider Provider, clients *gmail.Factory, cfg types.OAuthConfig) *TokenManager {
	buffer := cfg.RefreshBuffer
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	return &TokenManager{
		creds:    creds,
		provider: provider,
		clients:  clients,
		buffer:   buffer,
		nowFn:    time.Now,
	}
}

// GetAuthenticatedClient returns a client for user, refreshing and persisting
// the access token first when it expires within the refresh buffer
func (m *TokenManager) GetAuthenticatedClient(ctx context.Context, user *types.User) (*gmail.Client, error) {
	token, err := m.AccessToken(ctx, user.Id)
	if err != nil {
		return nil, err
	}
	return m.clients.New(ctx, user.Id, token)
}

// AccessToken returns a usable access token for userId
func (m *TokenManager) AccessToken(ctx context.Context, userId string) (string, error) {
	cred, err := m.loadCredential(ctx, userId)
	if err != nil {
		return "", err
	}
	if !cred.NeedsRefresh(m.nowFn(), m.buffer) {
		return cred.AccessToken, nil
	}

	ch := m.flight.DoChan(userId, func() (any, error) {
		// The flight outlives any single caller
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.refresh(refreshCtx, userId)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Connect completes an authorization code exchange and stores the grant
func (m *TokenManager) Connect(ctx context.Context, userId, code string) (*types.Credential, error) {
	grant, err := m.provider.Exchange(ctx, userId, code)
	if err != nil {
		return nil, err
	}
	if grant.RefreshToken == "" {
		log.Warn().Str("user_id", userId).Msg("authorization returned no refresh token, keeping stored one")
	}

	cred, err := m.creds.SaveAuthorization(ctx, userId, grant)
	if err != nil {
		return nil, fmt.Errorf("save authorization: %w", err)
	}
	if !cred.IsUsable() {
		return nil, &types.NotConnectedError{UserId: userId}
	}

	log.Info().Str("user_id", userId).Time("expiry", cred.TokenExpiry).Msg("gmail connected")
	return cred, nil
}

// AuthorizeURL returns the consent URL for state, or false when the
// provider has no client configured
func (m *TokenManager) AuthorizeURL(state string) (string, bool) {
	if !m.provider.IsConfigured() {
		return "", false
	}
	return m.provider.AuthorizeURL(state), true
}

// Connection returns the stored credential, or nil when the user never connected
func (m *TokenManager) Connection(ctx context.Context, userId string) (*types.Credential, error) {
	cred, err := m.creds.GetCredential(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if !cred.IsUsable() {
		return nil, nil
	}
	return cred, nil
}

// Disconnect removes the stored credential
func (m *TokenManager) Disconnect(ctx context.Context, userId string) error {
	if err := m.creds.DeleteCredential(ctx, userId); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	log.Info().Str("user_id", userId).Msg("gmail disconnected")
	return nil
}

func (m *TokenManager) refresh(ctx context.Context, userId string) (string, error) {
	// Re-read inside the flight: a caller that queued behind a finished
	// refresh must see the new token instead of refreshing again
	cred, err := m.loadCredential(ctx, userId)
	if err != nil {
		return "", err
	}
	if !cred.NeedsRefresh(m.nowFn(), m.buffer) {
		return cred.AccessToken, nil
	}

	grant, err := m.provider.Refresh(ctx, userId, cred.RefreshToken)
	if err != nil {
		log.Warn().Str("user_id", userId).Err(err).Msg("gmail token refresh failed")
		return "", err
	}

	applied, err := m.creds.UpdateAccessToken(ctx, userId, grant.AccessToken, grant.Expiry)
	if err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	if !applied {
		// Another process stored a newer token
		latest, err := m.loadCredential(ctx, userId)
		if err != nil {
			return "", err
		}
		log.Debug().Str("user_id", userId).Msg("newer access token already stored")
		return latest.AccessToken, nil
	}

	log.Debug().Str("user_id", userId).Time("expiry", grant.Expiry).Msg("gmail token refreshed")
	return grant.AccessToken, nil
}

func (m *TokenManager) loadCredential(ctx context.Context, userId string) (*types.Credential, error) {
	cred, err := m.creds.GetCredential(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if !cred.IsUsable() {
		return nil, &types.NotConnectedError{UserId: userId}
	}
	return cred, nil
}
