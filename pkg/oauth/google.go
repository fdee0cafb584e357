package oauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

var defaultScopes = []string{gmailapi.GmailReadonlyScope}

// GoogleClient handles Google OAuth for the Gmail connection
type GoogleClient struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewGoogleClient creates a new Google OAuth client from config
func NewGoogleClient(cfg types.GoogleOAuthConfig) *GoogleClient {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}

	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	// Google accepts client credentials in the form body. Pinning the style
	// keeps a rejected refresh from being retried with header auth.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &GoogleClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConfigured returns true if Google OAuth is configured
func (g *GoogleClient) IsConfigured() bool {
	return g.config.ClientID != "" && g.config.ClientSecret != "" && g.config.RedirectURL != ""
}

// AuthorizeURL generates the Google OAuth authorization URL
func (g *GoogleClient) AuthorizeURL(state string) string {
	// Request offline access to get refresh token, and always prompt for consent
	// to ensure we get a refresh token even if user previously authorized
	return g.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent select_account"),
	)
}

// Exchange exchanges an authorization code for tokens
func (g *GoogleClient) Exchange(ctx context.Context, userId, code string) (*types.TokenGrant, error) {
	token, err := g.config.Exchange(g.withClient(ctx), code)
	if err != nil {
		return nil, classifyTokenError(userId, err)
	}
	return grantFromToken(token), nil
}

// Refresh refreshes an access token using a refresh token
func (g *GoogleClient) Refresh(ctx context.Context, userId, refreshToken string) (*types.TokenGrant, error) {
	if refreshToken == "" {
		return nil, &types.NotConnectedError{UserId: userId}
	}

	token, err := g.config.TokenSource(g.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, classifyTokenError(userId, err)
	}

	grant := grantFromToken(token)
	// Google does not rotate refresh tokens; the stored one stays authoritative
	grant.RefreshToken = ""
	return grant, nil
}

func (g *GoogleClient) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

func grantFromToken(token *oauth2.Token) *types.TokenGrant {
	grant := &types.TokenGrant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		grant.Scope = scope
	}
	return grant
}

// classifyTokenError separates provider rejections from transport failures
func classifyTokenError(userId string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status >= http.StatusInternalServerError {
			return &types.ProviderTransportError{StatusCode: status, Err: err}
		}
		reason := retrieveErr.ErrorCode
		if retrieveErr.ErrorDescription != "" {
			reason = retrieveErr.ErrorCode + ": " + retrieveErr.ErrorDescription
		}
		return &types.RefreshFailedError{UserId: userId, Reason: reason, Err: err}
	}
	return &types.ProviderTransportError{Err: err}
}
