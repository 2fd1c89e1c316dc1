// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// conversation log.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated. The service layer decides whether a
//     log-write failure is surfaced (it is not: the audit log is best-effort
//     with respect to the user-visible reply).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chatrelay/chat-relay/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// RecordConversation appends one completed turn to the conversation log.
// The row ID is a randomly generated UUID and CreatedAt is set to UTC.
// Rows written here are never updated or deleted.
func RecordConversation(ctx context.Context, db *gorm.DB, userID, prompt, reply, outcome string, tokensUsed int) (*domain.Conversation, error) {
	c := &domain.Conversation{
		ID:         uuid.NewString(),
		UserID:     userID,
		Prompt:     prompt,
		Reply:      reply,
		Outcome:    outcome,
		TokensUsed: tokensUsed,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// CountTurns returns the total number of logged turns, or the count for a
// single user when userID is non-empty.
func CountTurns(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{})
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// UserTurnCount is one row of the per-user turn aggregate.
type UserTurnCount struct {
	UserID string `json:"user_id"`
	Turns  int64  `json:"turns"`
}

// TurnsPerUser returns per-user turn counts ordered by volume descending,
// capped at limit rows (<=0 means a default of 20).
func TurnsPerUser(ctx context.Context, db *gorm.DB, limit int) ([]UserTurnCount, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []UserTurnCount
	err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Select("user_id, COUNT(*) AS turns").
		Group("user_id").
		Order("turns DESC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

// TokensUsedTotal sums the provider-reported token usage across all turns.
func TokensUsedTotal(ctx context.Context, db *gorm.DB) (int64, error) {
	var row struct {
		Total int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Select("COALESCE(SUM(tokens_used), 0) AS total").
		Scan(&row).Error
	return row.Total, err
}

// LastTurnAt returns the timestamp of the most recent logged turn, or nil
// when the log is empty.
func LastTurnAt(ctx context.Context, db *gorm.DB) (*time.Time, error) {
	var row struct {
		CreatedAt time.Time
	}
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Select("created_at").
		Order("created_at DESC").
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row.CreatedAt, nil
}
