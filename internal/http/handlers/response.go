// Package handlers provides the HTTP handler implementations for the public
// API.
//
// This file holds the shared response utilities: the structured error
// envelope and helpers that keep success and failure shapes uniform across
// endpoints. fail() centralizes error formatting and makes sure 5xx responses
// reach the request-scoped log.
//
// Example error response:
//
//	HTTP/1.1 503 Service Unavailable
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "provider_unavailable",
//	  "message": "assistant is temporarily unavailable"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatrelay/chat-relay/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
// RequestID echoes X-Request-ID so client errors correlate with server logs;
// Code is one of the errors.go constants; Message is safe to display.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"too_many_requests"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"rate limit exceeded"`
}

// fail aborts the request with a structured error envelope. Server errors
// (>= 500) are additionally logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail(), for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response with the given status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes HTTP 204.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
