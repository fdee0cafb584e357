package apiv1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const (
	CodeNotConnected        = "not_connected"
	CodeReconnectRequired   = "reconnect_required"
	CodeRateLimited         = "rate_limited"
	CodeProviderUnavailable = "provider_unavailable"
	CodeInvalidRequest      = "invalid_request"
	CodeSyncInProgress      = "sync_in_progress"
	CodeNotFound            = "not_found"
	CodeInternal            = "internal_error"
)

// HandleError maps engine errors onto HTTP responses
func HandleError(c echo.Context, err error) error {
	var (
		notConnected *types.NotConnectedError
		refresh      *types.RefreshFailedError
		rateLimit    *types.ProviderRateLimitError
		transport    *types.ProviderTransportError
		validation   *types.ValidationError
		inProgress   *types.SyncInProgressError
	)

	switch {
	case errors.As(err, &notConnected):
		return CodedErrorResponse(c, http.StatusBadRequest, CodeNotConnected, "gmail is not connected, connect your account first")
	case errors.As(err, &refresh):
		return CodedErrorResponse(c, http.StatusForbidden, CodeReconnectRequired, "gmail authorization expired, reconnect your account")
	case errors.As(err, &rateLimit):
		if rateLimit.RetryAfter > 0 {
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(rateLimit.RetryAfter.Seconds())))
		}
		return CodedErrorResponse(c, http.StatusTooManyRequests, CodeRateLimited, rateLimit.Error())
	case errors.As(err, &transport):
		return CodedErrorResponse(c, http.StatusBadGateway, CodeProviderUnavailable, "gmail is unavailable, try again later")
	case errors.As(err, &validation):
		return CodedErrorResponse(c, http.StatusBadRequest, CodeInvalidRequest, validation.Error())
	case errors.As(err, &inProgress):
		return CodedErrorResponse(c, http.StatusConflict, CodeSyncInProgress, inProgress.Error())
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return CodedErrorResponse(c, http.StatusInternalServerError, CodeInternal, "internal error")
}
