package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/chatrelay/chat-relay/internal/config"
	"github.com/chatrelay/chat-relay/internal/domain"
)

// keyPrefix namespaces session keys so the store can share a Redis database
// with other components.
const keyPrefix = "chat:session:"

// RedisStore keeps each session as a Redis LIST of JSON-encoded messages.
// Expiry is delegated to Redis key TTLs, refreshed on every append, so the
// "idle session reads as empty" invariant holds across process restarts.
// The MULTI/EXEC pipeline around RPUSH+LTRIM+EXPIRE makes AppendTurn
// all-or-nothing on the wire.
type RedisStore struct {
	client      *redis.Client
	maxMessages int
	ttl         time.Duration
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, rcfg config.RedisConfig, scfg config.SessionConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     rcfg.Addr,
		Password: rcfg.Password,
		DB:       rcfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, maxMessages: scfg.MaxMessages, ttl: scfg.TTL}, nil
}

// Context implements Store. Redis drops expired keys itself, so a plain
// LRANGE already honors the TTL invariant.
func (s *RedisStore) Context(ctx context.Context, userID string) ([]domain.ChatMessage, error) {
	raw, err := s.client.LRange(ctx, sessionKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", userID, err)
	}
	out := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decode session message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// AppendTurn implements Store.
func (s *RedisStore) AppendTurn(ctx context.Context, userID string, user, assistant domain.ChatMessage) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user message: %w", err)
	}
	asstJSON, err := json.Marshal(assistant)
	if err != nil {
		return fmt.Errorf("encode assistant message: %w", err)
	}

	key := sessionKey(userID)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, userJSON, asstJSON)
		p.LTrim(ctx, key, int64(-s.maxMessages), -1)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append turn %s: %w", userID, err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear session %s: %w", userID, err)
	}
	return nil
}

// ActiveCount implements Store. SCAN keeps the count non-blocking on large
// keyspaces; expired keys have already been dropped by Redis.
func (s *RedisStore) ActiveCount(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 500).Result()
		if err != nil {
			return 0, fmt.Errorf("scan sessions: %w", err)
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

func sessionKey(userID string) string { return keyPrefix + userID }
