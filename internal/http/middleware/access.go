// Package middleware – identity extraction and allowlist enforcement.
//
// The relay trusts an upstream gateway to authenticate callers and forward
// the identity in the X-User-ID header. Identity() lifts that header into
// the Gin context; AccessControl() enforces the operator allowlist before
// any quota is consumed, so a blocked user can never burn rate-limit budget.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chatrelay/chat-relay/internal/repo"
)

const (
	// userIDHeader carries the authenticated caller identity, set by the
	// upstream gateway.
	userIDHeader = "X-User-ID"
	// anonymousUser is the identity assigned when no header is present,
	// useful for local development without a gateway.
	anonymousUser = "demo-user"
)

// Identity stores the caller identity in the Gin context under "userID".
// Header whitespace is trimmed; an absent or blank header maps to the
// development fallback identity.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(userIDHeader))
		if uid == "" {
			uid = anonymousUser
		}
		c.Set(userIDKey, uid)
		c.Next()
	}
}

// UserID returns the identity set by Identity(), or the development fallback
// when the middleware did not run.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return anonymousUser
}

// AccessControl returns a middleware enforcing the operator allowlist.
//
// Semantics:
//   - An empty allowlist admits everyone (open relay).
//   - Users named in allowed or admins pass immediately.
//   - Anyone else is checked against the users table: an is_allowed flag
//     granted at runtime also admits. DB errors fail closed.
//   - Rejected callers receive 403 with the standard JSON error body.
func AccessControl(allowed, admins []string, db *gorm.DB) gin.HandlerFunc {
	allowSet := make(map[string]struct{}, len(allowed)+len(admins))
	for _, id := range allowed {
		allowSet[id] = struct{}{}
	}
	for _, id := range admins {
		allowSet[id] = struct{}{}
	}
	open := len(allowed) == 0

	return func(c *gin.Context) {
		if open {
			c.Next()
			return
		}

		uid := UserID(c)
		if _, ok := allowSet[uid]; ok {
			c.Next()
			return
		}

		if db != nil {
			if u, err := repo.GetUser(c.Request.Context(), db, uid); err == nil && u.IsAllowed {
				c.Next()
				return
			}
		}

		LoggerFrom(c).Warn().Str("user_id", uid).Msg("user not on allowlist")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "forbidden",
			"message":    "access denied",
		})
	}
}
