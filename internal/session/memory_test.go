package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chatrelay/chat-relay/internal/domain"
)

type memClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *memClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *memClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(maxMessages int, ttl time.Duration) (*MemoryStore, *memClock) {
	s := NewMemoryStore(maxMessages, ttl)
	clk := &memClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clk.Now
	return s, clk
}

func turn(i int) (domain.ChatMessage, domain.ChatMessage) {
	return domain.NewChatMessage(domain.RoleUser, fmt.Sprintf("q%d", i)),
		domain.NewChatMessage(domain.RoleAssistant, fmt.Sprintf("a%d", i))
}

func TestContext_EmptyForUnknownUser(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)
	got, err := s.Context(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty context, got %d messages", len(got))
	}
}

func TestAppendTurn_PreservesOrder(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		u, a := turn(i)
		if err := s.AppendTurn(ctx, "u1", u, a); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	got, err := s.Context(ctx, "u1")
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	want := []string{"q0", "a0", "q1", "a1", "q2", "a2"}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Fatalf("message %d = %q, want %q", i, got[i].Content, w)
		}
	}
}

func TestAppendTurn_CapEvictsOldestFirst(t *testing.T) {
	s, _ := newTestStore(4, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		u, a := turn(i)
		if err := s.AppendTurn(ctx, "u1", u, a); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	got, _ := s.Context(ctx, "u1")
	if len(got) != 4 {
		t.Fatalf("got %d messages, want cap of 4", len(got))
	}
	// The two newest turns survive.
	want := []string{"q3", "a3", "q4", "a4"}
	for i, w := range want {
		if got[i].Content != w {
			t.Fatalf("message %d = %q, want %q", i, got[i].Content, w)
		}
	}
}

func TestAppendTurn_AtCapStillAcceptsNewTurn(t *testing.T) {
	s, _ := newTestStore(2, time.Hour)
	ctx := context.Background()

	u0, a0 := turn(0)
	u1, a1 := turn(1)
	if err := s.AppendTurn(ctx, "u1", u0, a0); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := s.AppendTurn(ctx, "u1", u1, a1); err != nil {
		t.Fatalf("AppendTurn at cap: %v", err)
	}

	got, _ := s.Context(ctx, "u1")
	if len(got) != 2 || got[0].Content != "q1" || got[1].Content != "a1" {
		t.Fatalf("expected only the newest turn, got %+v", got)
	}
}

func TestContext_TTLExpiryReadsEmpty(t *testing.T) {
	s, clk := newTestStore(10, 30*time.Minute)
	ctx := context.Background()

	u, a := turn(0)
	s.AppendTurn(ctx, "u1", u, a)

	clk.Advance(31 * time.Minute)
	got, err := s.Context(ctx, "u1")
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expired session should read empty, got %d messages", len(got))
	}
}

func TestAppendTurn_ActivityRefreshesTTL(t *testing.T) {
	s, clk := newTestStore(10, 30*time.Minute)
	ctx := context.Background()

	u0, a0 := turn(0)
	s.AppendTurn(ctx, "u1", u0, a0)

	clk.Advance(20 * time.Minute)
	u1, a1 := turn(1)
	s.AppendTurn(ctx, "u1", u1, a1)

	// 20 more minutes: 40 past the first turn, 20 past the refresh.
	clk.Advance(20 * time.Minute)
	got, _ := s.Context(ctx, "u1")
	if len(got) != 4 {
		t.Fatalf("refreshed session should survive, got %d messages", len(got))
	}
}

func TestClear_ThenContextEmpty(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)
	ctx := context.Background()

	u, a := turn(0)
	s.AppendTurn(ctx, "u1", u, a)
	if err := s.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ := s.Context(ctx, "u1")
	if len(got) != 0 {
		t.Fatalf("cleared session should read empty, got %d messages", len(got))
	}

	// Clearing an absent session is a no-op.
	if err := s.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear on empty: %v", err)
	}
}

func TestActiveCount_PurgesExpired(t *testing.T) {
	s, clk := newTestStore(10, 30*time.Minute)
	ctx := context.Background()

	u, a := turn(0)
	s.AppendTurn(ctx, "u1", u, a)
	clk.Advance(10 * time.Minute)
	s.AppendTurn(ctx, "u2", u, a)

	n, err := s.ActiveCount(ctx)
	if err != nil || n != 2 {
		t.Fatalf("ActiveCount = %d, %v; want 2, nil", n, err)
	}

	// u1 is now 35m idle, u2 only 25m.
	clk.Advance(25 * time.Minute)
	n, _ = s.ActiveCount(ctx)
	if n != 1 {
		t.Fatalf("ActiveCount after expiry = %d, want 1", n)
	}
}

func TestAppendTurn_ConcurrentUsersDoNotInterleave(t *testing.T) {
	s, _ := newTestStore(200, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := 0; u < 4; u++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", id)
			for i := 0; i < 20; i++ {
				um, am := turn(i)
				if err := s.AppendTurn(ctx, user, um, am); err != nil {
					t.Errorf("AppendTurn(%s): %v", user, err)
					return
				}
			}
		}(u)
	}
	wg.Wait()

	for u := 0; u < 4; u++ {
		got, _ := s.Context(ctx, fmt.Sprintf("u%d", u))
		if len(got) != 40 {
			t.Fatalf("user u%d has %d messages, want 40", u, len(got))
		}
		// User and assistant messages alternate; a turn is never split.
		for i := 0; i < len(got); i += 2 {
			if got[i].Role != domain.RoleUser || got[i+1].Role != domain.RoleAssistant {
				t.Fatalf("user u%d: turn at %d interleaved: %s/%s", u, i, got[i].Role, got[i+1].Role)
			}
		}
	}
}
