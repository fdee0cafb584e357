package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

func TestJWTValidator(t *testing.T) {
	v, err := NewJWTValidator(types.AuthConfig{JWTSecret: "secret", Issuer: "crm"})
	require.NoError(t, err)

	token, err := v.Issue(&types.User{Id: "u1", Email: "rep@crm.test"}, time.Hour)
	require.NoError(t, err)

	user, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.Id)
	assert.Equal(t, "rep@crm.test", user.Email)

	other, err := NewJWTValidator(types.AuthConfig{JWTSecret: "other", Issuer: "crm"})
	require.NoError(t, err)
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := v.Issue(&types.User{Id: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewJWTValidator(types.AuthConfig{JWTSecret: "secret", Issuer: "elsewhere"})
	require.NoError(t, err)
	_, err = wrongIssuer.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTValidator(types.AuthConfig{})
	assert.Error(t, err)
}

func TestJWTValidatorRejectsOtherAlgorithms(t *testing.T) {
	v, err := NewJWTValidator(types.AuthConfig{JWTSecret: "secret"})
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPMiddleware(t *testing.T) {
	v, err := NewJWTValidator(types.AuthConfig{JWTSecret: "secret"})
	require.NoError(t, err)
	token, err := v.Issue(&types.User{Id: "u1"}, time.Hour)
	require.NoError(t, err)

	e := echo.New()
	e.Use(HTTPMiddleware(v))
	e.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, UserFromContext(c.Request().Context()).Id)
	}, RequireAuthMiddleware())

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{name: "valid", header: "Bearer " + token, code: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + token, code: http.StatusOK},
		{name: "missing", header: "", code: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", code: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "u1", rec.Body.String())
			}
		})
	}
}
