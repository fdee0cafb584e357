package auth

import (
	"context"
	"errors"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

type ctxKey int

const userKey ctxKey = iota

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrInvalidToken = errors.New("invalid token")
)

// --- Context get/set ---

func WithUser(ctx context.Context, user *types.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserFromContext(ctx context.Context) *types.User {
	user, _ := ctx.Value(userKey).(*types.User)
	return user
}

// --- Authorization checks ---

// RequireUser returns the caller or ErrAuthRequired
func RequireUser(ctx context.Context) (*types.User, error) {
	user := UserFromContext(ctx)
	if user == nil || user.Id == "" {
		return nil, ErrAuthRequired
	}
	return user, nil
}

func IsAuthenticated(ctx context.Context) bool { return UserFromContext(ctx) != nil }
