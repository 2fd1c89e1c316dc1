// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/chatrelay/chat-relay/internal/domain"
)

// GetUser fetches a user by ID, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser creates the user on first contact or bumps LastActive on
// subsequent turns. Profile fields are refreshed when non-empty; the
// permission flags are never touched here.
func UpsertUser(ctx context.Context, db *gorm.DB, id, username, firstName, lastName string) (*domain.User, error) {
	now := time.Now().UTC()

	existing, err := GetUser(ctx, db, id)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		u := &domain.User{
			ID:         id,
			Username:   username,
			FirstName:  firstName,
			LastName:   lastName,
			CreatedAt:  now,
			LastActive: now,
		}
		if cerr := db.WithContext(ctx).Create(u).Error; cerr != nil {
			return nil, cerr
		}
		return u, nil
	}

	updates := map[string]any{"last_active": now}
	if username != "" {
		updates["username"] = username
	}
	if firstName != "" {
		updates["first_name"] = firstName
	}
	if lastName != "" {
		updates["last_name"] = lastName
	}
	if uerr := db.WithContext(ctx).Model(existing).Updates(updates).Error; uerr != nil {
		return nil, uerr
	}
	existing.LastActive = now
	return existing, nil
}

// SetUserFlags updates the access-control flags for a user. Backing call for
// the external admin surface; returns ErrNotFound for unknown users.
func SetUserFlags(ctx context.Context, db *gorm.DB, id string, isAllowed, isAdmin bool) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_allowed": isAllowed, "is_admin": isAdmin})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountUsers returns the number of users the relay has seen.
func CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error
	return total, err
}
