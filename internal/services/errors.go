// Package services defines the business logic of the relay: the chat
// orchestrator and its supporting stats operations. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrEmptyMessage is returned when an inbound message is empty after
	// normalization. Checked before rate limiting.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when an inbound message exceeds the
	// configured rune limit. Checked before rate limiting.
	ErrMessageTooLong = errors.New("message too long")

	// ErrRateLimited indicates the user exceeded the sliding-window quota.
	// Nothing was read or written on this path.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrProviderUnavailable indicates every attempt against the model
	// provider failed transiently. The session was not mutated.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderRejected indicates the provider reported a permanent
	// failure (credentials, malformed request, content policy). The session
	// was not mutated and no retry was made.
	ErrProviderRejected = errors.New("provider rejected request")

	// ErrForbidden indicates the user is not on the configured allowlist.
	ErrForbidden = errors.New("user not allowed")
)
