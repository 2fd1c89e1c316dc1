// Package handlers defines HTTP-layer error codes used across all API
// endpoints.
//
// These symbolic constants are mapped to HTTP responses via the fail()
// helper, giving clients a stable machine-readable taxonomy on top of the
// human-readable message.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes mirror HTTP status semantics (bad_request, forbidden).
//   - Domain codes carry what the status alone cannot: provider_unavailable
//     (503, every attempt failed transiently) vs provider_rejected (502, the
//     upstream refused the request outright).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "too_many_requests",
//	  "message": "rate limit exceeded"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeProviderUnavailable = "provider_unavailable"
	ErrCodeProviderRejected    = "provider_rejected"
	ErrCodeMethodNotAllowed    = "method_not_allowed"
)
