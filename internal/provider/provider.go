// Package provider contains the model-provider client consumed by the chat
// orchestrator: the Client interface, the OpenAI-compatible implementation,
// and the transient/permanent error classification the retry loop relies on.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatrelay/chat-relay/internal/domain"
)

// Completion is one successful provider response.
type Completion struct {
	Content    string
	TokensUsed int
}

// Client is the contract the orchestrator calls to produce assistant replies.
// Implementations must honor ctx for cancellation and timeouts; the caller
// owns the per-attempt deadline.
type Client interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (Completion, error)
}

// Error is a classified provider failure. Transient errors (timeouts,
// connection failures, provider throttling, 5xx) are eligible for retry;
// permanent errors (bad credentials, malformed requests, policy rejections)
// are not.
type Error struct {
	Status    int // HTTP status when the provider answered; 0 otherwise
	Transient bool
	Msg       string
	Err       error // underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider: %s (status %d)", e.Msg, e.Status)
	}
	return "provider: " + e.Msg
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a provider failure worth retrying.
// Unknown error types are treated as transient: network-level failures
// commonly surface as plain *url.Error values.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return true
}
