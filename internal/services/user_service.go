package services

import (
	"context"

	"github.com/chatrelay/chat-relay/internal/repo"
)

// SetUserAccess grants or revokes a user's access and admin flags at
// runtime. Returns repo.ErrNotFound when the relay has never seen the user.
func (s *ChatService) SetUserAccess(ctx context.Context, userID string, isAllowed, isAdmin bool) error {
	return repo.SetUserFlags(ctx, s.DB, userID, isAllowed, isAdmin)
}

// IsAdmin reports whether userID may use the admin surface: either named in
// the operator config or flagged is_admin in the users table.
func (s *ChatService) IsAdmin(ctx context.Context, userID string) bool {
	for _, id := range s.Admins {
		if id == userID {
			return true
		}
	}
	if s.DB == nil {
		return false
	}
	u, err := repo.GetUser(ctx, s.DB, userID)
	return err == nil && u.IsAdmin
}

// AdminGated reports whether the admin surface requires gating at all: it
// does once any admin identity is configured.
func (s *ChatService) AdminGated() bool {
	return len(s.Admins) > 0
}
