package apiv1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wahajws/amast-crm-sub000/pkg/auth"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const (
	HttpServerBaseRoute string = "/api/v1"
	HttpServerRootRoute string = ""
)

// Response is a standard API response structure
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"` // Machine readable error code
}

// SuccessResponse returns a successful response
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// ErrorResponse returns an error response
func ErrorResponse(c echo.Context, status int, message string) error {
	return c.JSON(status, Response{
		Success: false,
		Error:   message,
	})
}

// CodedErrorResponse returns an error response carrying a machine readable code
func CodedErrorResponse(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Response{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// currentUser returns the authenticated caller. Routes are mounted behind
// auth.RequireAuthMiddleware so a missing user is a wiring bug.
func currentUser(c echo.Context) *types.User {
	return auth.UserFromContext(c.Request().Context())
}
