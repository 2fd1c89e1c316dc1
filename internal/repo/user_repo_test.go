package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatrelay/chat-relay/internal/domain"
)

func TestGetUser_NotFound(t *testing.T) {
	db := newRepoDB(t, &domain.User{})
	_, err := GetUser(context.Background(), db, "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertUser_CreatesOnFirstContact(t *testing.T) {
	db := newRepoDB(t, &domain.User{})

	u, err := UpsertUser(context.Background(), db, "u1", "alice", "Alice", "Smith")
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if u.ID != "u1" || u.Username != "alice" || u.FirstName != "Alice" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.IsAllowed || u.IsAdmin {
		t.Fatalf("new users must not carry access flags: %+v", u)
	}
}

func TestUpsertUser_BumpsActivityAndKeepsFlags(t *testing.T) {
	db := newRepoDB(t, &domain.User{})
	ctx := context.Background()

	if _, err := UpsertUser(ctx, db, "u1", "alice", "", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := SetUserFlags(ctx, db, "u1", true, true); err != nil {
		t.Fatalf("SetUserFlags: %v", err)
	}

	before := time.Now().UTC().Add(-time.Second)
	u, err := UpsertUser(ctx, db, "u1", "", "Alice", "")
	if err != nil {
		t.Fatalf("upsert existing: %v", err)
	}
	if u.LastActive.Before(before) {
		t.Fatalf("LastActive not bumped: %v", u.LastActive)
	}

	got, err := GetUser(ctx, db, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	// Empty profile fields do not clobber; flags are untouched by upserts.
	if got.Username != "alice" || got.FirstName != "Alice" {
		t.Fatalf("profile refresh wrong: %+v", got)
	}
	if !got.IsAllowed || !got.IsAdmin {
		t.Fatalf("upsert must not reset flags: %+v", got)
	}
}

func TestSetUserFlags_UnknownUser(t *testing.T) {
	db := newRepoDB(t, &domain.User{})
	err := SetUserFlags(context.Background(), db, "ghost", true, false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCountUsers(t *testing.T) {
	db := newRepoDB(t, &domain.User{})
	ctx := context.Background()

	n, err := CountUsers(ctx, db)
	if err != nil || n != 0 {
		t.Fatalf("empty count = %d, %v", n, err)
	}
	UpsertUser(ctx, db, "u1", "", "", "")
	UpsertUser(ctx, db, "u2", "", "", "")
	UpsertUser(ctx, db, "u1", "", "", "") // repeat contact, same row
	n, err = CountUsers(ctx, db)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v; want 2, nil", n, err)
	}
}
