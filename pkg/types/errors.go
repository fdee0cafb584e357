package types

import (
	"errors"
	"fmt"
	"time"
)

// NotConnectedError is returned when a user has no usable Gmail credential
type NotConnectedError struct {
	UserId string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("gmail not connected for user: %s", e.UserId)
}

// From checks if the given error is a NotConnectedError
func (e *NotConnectedError) From(err error) bool {
	var target *NotConnectedError
	return errors.As(err, &target)
}

// RefreshFailedError is returned when the provider rejects the refresh token.
// The user must re-authorize; it is never retried automatically.
type RefreshFailedError struct {
	UserId string
	Reason string
	Err    error
}

func (e *RefreshFailedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("token refresh failed for user %s: %s", e.UserId, e.Reason)
	}
	return fmt.Sprintf("token refresh failed for user %s", e.UserId)
}

func (e *RefreshFailedError) Unwrap() error {
	return e.Err
}

// From checks if the given error is a RefreshFailedError
func (e *RefreshFailedError) From(err error) bool {
	var target *RefreshFailedError
	return errors.As(err, &target)
}

// ProviderRateLimitError is returned when Gmail throttles the caller
type ProviderRateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderRateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("gmail rate limit exceeded, retry after %s", e.RetryAfter)
	}
	return "gmail rate limit exceeded"
}

func (e *ProviderRateLimitError) Unwrap() error {
	return e.Err
}

// From checks if the given error is a ProviderRateLimitError
func (e *ProviderRateLimitError) From(err error) bool {
	var target *ProviderRateLimitError
	return errors.As(err, &target)
}

// ProviderTransportError wraps network failures and non-success provider responses
type ProviderTransportError struct {
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *ProviderTransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gmail request failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gmail request failed: %v", e.Err)
}

func (e *ProviderTransportError) Unwrap() error {
	return e.Err
}

// From checks if the given error is a ProviderTransportError
func (e *ProviderTransportError) From(err error) bool {
	var target *ProviderTransportError
	return errors.As(err, &target)
}

// ValidationError is returned for malformed caller input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// From checks if the given error is a ValidationError
func (e *ValidationError) From(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// SyncInProgressError is returned when another run holds the (user, label) lock
type SyncInProgressError struct {
	UserId  string
	LabelId string
}

func (e *SyncInProgressError) Error() string {
	return fmt.Sprintf("sync already in progress for user %s label %s", e.UserId, e.LabelId)
}

// From checks if the given error is a SyncInProgressError
func (e *SyncInProgressError) From(err error) bool {
	var target *SyncInProgressError
	return errors.As(err, &target)
}

// IsAuthError returns true for errors that require the user to reconnect
func IsAuthError(err error) bool {
	return (&RefreshFailedError{}).From(err) || (&NotConnectedError{}).From(err)
}
