package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// HTTPMiddleware validates bearer tokens and adds the user to the context.
// Allows requests to proceed without auth; routes must explicitly require auth.
func HTTPMiddleware(validator TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				return next(c)
			}

			user, err := validator.ValidateToken(token)
			if err != nil {
				log.Debug().Err(err).Msg("auth: invalid token")
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": ErrInvalidToken.Error()})
			}

			ctx := WithUser(c.Request().Context(), user)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// Handler wrappers

func WithAuth(h echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := RequireUser(c.Request().Context()); err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
		}
		return h(c)
	}
}

// Middleware factories

func RequireAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc { return WithAuth(next) }
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
