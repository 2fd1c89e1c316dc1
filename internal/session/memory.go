package session

import (
	"context"
	"sync"
	"time"

	"github.com/chatrelay/chat-relay/internal/domain"
)

// entry is one user's live session plus its lock. Each entry owns a mutex so
// operations for different users proceed independently.
type entry struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
	created  time.Time
	activity time.Time
}

// MemoryStore keeps sessions in a process-local map. Suitable for a single
// instance; use RedisStore when several processes serve the same users.
type MemoryStore struct {
	maxMessages int
	ttl         time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	now func() time.Time // injectable clock for tests
}

// NewMemoryStore constructs an in-memory store capping history at maxMessages
// and expiring sessions idle longer than ttl.
func NewMemoryStore(maxMessages int, ttl time.Duration) *MemoryStore {
	if maxMessages < 2 {
		maxMessages = 2
	}
	return &MemoryStore{
		maxMessages: maxMessages,
		ttl:         ttl,
		entries:     make(map[string]*entry),
		now:         time.Now,
	}
}

// Context implements Store. Expired sessions are removed before reading, so
// the caller never sees stale history.
func (s *MemoryStore) Context(_ context.Context, userID string) ([]domain.ChatMessage, error) {
	e := s.live(userID)
	if e == nil {
		return []domain.ChatMessage{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ChatMessage, len(e.messages))
	copy(out, e.messages)
	return out, nil
}

// AppendTurn implements Store. Both messages land under one lock acquisition;
// trimming happens in the same critical section, so a session at its cap
// still accepts the new turn.
func (s *MemoryStore) AppendTurn(_ context.Context, userID string, user, assistant domain.ChatMessage) error {
	now := s.now()

	s.mu.Lock()
	e, ok := s.entries[userID]
	if ok && s.expired(e, now) {
		ok = false
	}
	if !ok {
		e = &entry{created: now}
		s.entries[userID] = e
	}
	// Activity is read under s.mu by expiry checks, so write it here too.
	e.activity = now
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, user, assistant)
	if over := len(e.messages) - s.maxMessages; over > 0 {
		e.messages = append(e.messages[:0], e.messages[over:]...)
	}
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.entries, userID)
	s.mu.Unlock()
	return nil
}

// ActiveCount implements Store. Expired sessions are purged on the way.
func (s *MemoryStore) ActiveCount(_ context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, k)
		}
	}
	return len(s.entries), nil
}

// live returns the non-expired entry for userID or nil, discarding an expired
// one as a side effect.
func (s *MemoryStore) live(userID string) *entry {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return nil
	}
	if s.expired(e, now) {
		delete(s.entries, userID)
		return nil
	}
	return e
}

// expired reports whether e has been idle past the TTL. Callers hold s.mu,
// which also guards every write of e.activity.
func (s *MemoryStore) expired(e *entry, now time.Time) bool {
	return now.Sub(e.activity) > s.ttl
}
