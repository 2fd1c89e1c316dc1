// Package session holds per-user conversation memory: the bounded, ordered
// message history used as model context. Two backends implement the Store
// interface, an in-process map for single-instance deployments and a Redis
// store for process groups that must share state.
//
// Store invariants (common to all backends):
//   - History never exceeds the configured message cap; when a turn pushes it
//     over, the oldest messages are evicted first, preserving order.
//   - A session idle longer than the TTL reads as absent and is discarded on
//     the next access, never silently reused.
//   - AppendTurn is all-or-nothing: a user message is never stored without
//     its assistant reply.
//   - Operations for one user are mutually exclusive; different users never
//     contend.
package session

import (
	"context"

	"github.com/chatrelay/chat-relay/internal/domain"
)

// Store abstracts the session backend so the orchestrator does not care
// whether history lives in process memory or in an external cache.
type Store interface {
	// Context returns the current non-expired history for userID, oldest
	// first, or an empty slice when no live session exists. Expired sessions
	// are discarded as a side effect.
	Context(ctx context.Context, userID string) ([]domain.ChatMessage, error)

	// AppendTurn atomically appends the user and assistant messages,
	// creating the session if absent, bumps last activity, and trims to the
	// configured cap by dropping the oldest entries.
	AppendTurn(ctx context.Context, userID string, user, assistant domain.ChatMessage) error

	// Clear discards the session, returning the user to an empty context.
	Clear(ctx context.Context, userID string) error

	// ActiveCount reports the number of live sessions, for stats.
	ActiveCount(ctx context.Context) (int, error)
}
