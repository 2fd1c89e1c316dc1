// Package domain defines the persistence models for users and the append-only
// conversation log, plus the in-memory message types that make up a session.
// Persisted types are mapped with GORM and form the audit/statistics layer of
// the chat relay.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Message roles. A turn is one RoleUser message paired with one RoleAssistant
// message; RoleSystem is only ever synthesized for the provider prompt and is
// never stored in a session.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is a single utterance inside a session. Immutable once created.
// It is a value type: sessions hold ordered slices of ChatMessage, and the
// Redis session backend serializes it as JSON.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewChatMessage builds a message stamped with the current UTC time.
func NewChatMessage(role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content, CreatedAt: time.Now().UTC()}
}

// Session is a snapshot of one user's conversation memory. The backing store
// owns the canonical state; handlers and services only ever see copies.
//
// Invariants (enforced by the session store):
//   - Messages never exceeds the configured cap; oldest entries are evicted
//     first, preserving order.
//   - A session idle longer than the TTL reads as absent.
//   - Mutations for one user never interleave.
type Session struct {
	Messages     []ChatMessage `json:"messages"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
}

// User represents a chat-platform user known to the relay. Identity is
// immutable; the permission flags are mutated only through the repo helpers
// backing the external admin surface.
//
// Fields:
//   - ID: stable platform user identifier (primary key).
//   - Username / FirstName / LastName: optional profile data.
//   - IsAllowed / IsAdmin: access-control flags.
//   - LastActive: bumped on every processed turn.
type User struct {
	ID         string         `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Username   string         `json:"username"   gorm:"type:varchar(255)"`
	FirstName  string         `json:"first_name" gorm:"type:varchar(255)"`
	LastName   string         `json:"last_name"  gorm:"type:varchar(255)"`
	IsAllowed  bool           `json:"is_allowed" gorm:"not null;default:false"`
	IsAdmin    bool           `json:"is_admin"   gorm:"not null;default:false"`
	CreatedAt  time.Time      `json:"created_at"`
	LastActive time.Time      `json:"last_active"`
	DeletedAt  gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Conversation outcome values recorded on the audit log.
const (
	OutcomeOK                  = "ok"
	OutcomeProviderUnavailable = "provider_unavailable"
	OutcomeProviderRejected    = "provider_rejected"
)

// Conversation is the append-only record of one completed turn: the user
// prompt, the assistant reply (empty on failure), and how the turn ended.
// Rows are created only after a turn completes (success or terminal failure)
// and are never updated or deleted by the relay.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: identifier of the turn owner; indexed for per-user stats.
//   - Prompt / Reply: full text of the exchange.
//   - Outcome: one of the Outcome* constants (enforced by DB constraint).
//   - TokensUsed: provider-reported token total, 0 when unavailable.
type Conversation struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string    `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_user_turns,priority:1"`
	Prompt     string    `json:"prompt"      gorm:"type:text;not null"`
	Reply      string    `json:"reply"       gorm:"type:text;not null"`
	Outcome    string    `json:"outcome"     gorm:"type:varchar(32);not null;check:outcome IN ('ok','provider_unavailable','provider_rejected')"`
	TokensUsed int       `json:"tokens_used" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"  gorm:"index:idx_user_turns,priority:2"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }
