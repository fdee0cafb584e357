package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

// Claims is the bearer token the CRM issues for its users
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator resolves a bearer token to a user
type TokenValidator interface {
	ValidateToken(token string) (*types.User, error)
}

// JWTValidator validates HS256 tokens signed with the shared CRM secret
type JWTValidator struct {
	secret []byte
	issuer string
	nowFn  func() time.Time
}

func NewJWTValidator(cfg types.AuthConfig) (*JWTValidator, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("auth.jwtSecret is required")
	}
	return &JWTValidator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, nowFn: time.Now}, nil
}

func (v *JWTValidator) ValidateToken(token string) (*types.User, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.nowFn),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &types.User{Id: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// Issue signs a token for user. Used by the CLI and tests; the CRM issues
// tokens in production.
func (v *JWTValidator) Issue(user *types.User, ttl time.Duration) (string, error) {
	now := v.nowFn()
	claims := &Claims{
		Email: user.Email,
		Name:  user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Id,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
