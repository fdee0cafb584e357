package gmail

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// ClassifyError maps a provider error onto the typed error set
func ClassifyError(userId string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return &types.ProviderTransportError{Err: err}
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests, apiErr.Code == http.StatusForbidden && hasRateLimitReason(apiErr):
		return &types.ProviderRateLimitError{RetryAfter: retryAfter(apiErr.Header), Err: err}
	case apiErr.Code == http.StatusUnauthorized:
		return &types.RefreshFailedError{UserId: userId, Reason: "access token rejected by gmail", Err: err}
	default:
		return &types.ProviderTransportError{StatusCode: apiErr.Code, Err: err}
	}
}

func hasRateLimitReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if rateLimitReasons[item.Reason] {
			return true
		}
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "rate limit")
}

func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
