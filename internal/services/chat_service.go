// Package services – ChatService
//
// This file implements ChatService, the orchestrator that owns the lifecycle
// of one chat turn. It validates and normalizes the inbound message, enforces
// the per-user sliding-window quota, assembles a bounded prompt from session
// context, calls the model provider with a bounded retry policy, and commits
// the turn atomically: the session append and the audit-log write happen only
// after a reply was produced, and a user message is never stored without its
// assistant reply.
//
// Concurrency: turns for the same user serialize end to end on a per-user
// lock, so a second message from a user starts only after the first has
// committed or failed. Different users never share a lock; one user's slow
// provider call cannot delay another's.
//
// Observability: ProcessMessage is OpenTelemetry-instrumented; spans carry
// the user identifier and attempt counts.
package services

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/chatrelay/chat-relay/internal/config"
	"github.com/chatrelay/chat-relay/internal/domain"
	"github.com/chatrelay/chat-relay/internal/health"
	"github.com/chatrelay/chat-relay/internal/provider"
	"github.com/chatrelay/chat-relay/internal/ratelimit"
	"github.com/chatrelay/chat-relay/internal/repo"
	"github.com/chatrelay/chat-relay/internal/session"
)

// Reply is the user-visible result of a successful turn.
type Reply struct {
	Content    string `json:"reply"`
	TokensUsed int    `json:"tokens_used"`
}

// ChatService coordinates admission, session context, provider calls, and
// audit logging for every inbound message.
type ChatService struct {
	DB       *gorm.DB
	Store    session.Store
	Limiter  *ratelimit.SlidingWindow
	Provider provider.Client
	Health   *health.Tracker

	// Prompting and validation
	SystemPrompt   string
	MaxPromptRunes int

	// Admins are the operator-configured admin identities; DB flags extend
	// this set at runtime.
	Admins []string

	// Retry policy for transient provider failures
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration

	// turnLocks serializes turns per user id.
	turnLocks sync.Map // map[string]*sync.Mutex
}

// NewChatService wires a ChatService from config and its collaborators.
func NewChatService(db *gorm.DB, store session.Store, lim *ratelimit.SlidingWindow, pc provider.Client, ht *health.Tracker, cfg config.Config) *ChatService {
	return &ChatService{
		DB:             db,
		Store:          store,
		Limiter:        lim,
		Provider:       pc,
		Health:         ht,
		SystemPrompt:   cfg.SystemPrompt,
		MaxPromptRunes: cfg.MaxPromptRunes,
		Admins:         cfg.AdminUsers,
		MaxAttempts:    cfg.Provider.MaxAttempts,
		BaseDelay:      cfg.Provider.BaseDelay,
		MaxDelay:       cfg.Provider.MaxDelay,
		AttemptTimeout: cfg.Provider.Timeout,
	}
}

// ProcessMessage runs one turn for userID. On success the reply is returned
// and the turn is committed (session append, then best-effort audit log).
// On failure a classified service error is returned and the session is left
// untouched.
func (s *ChatService) ProcessMessage(ctx context.Context, userID, text string) (*Reply, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "ProcessMessage",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	// Normalize & validate before admission: a malformed message must not
	// consume quota.
	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(text) > s.MaxPromptRunes {
		return nil, ErrMessageTooLong
	}

	if !s.Limiter.Admit(userID) {
		rateLimitedTotal.Inc()
		return nil, ErrRateLimited
	}

	// Serialize the rest of the turn per user: context read and append must
	// not interleave with another turn for the same user.
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	history, err := s.Store.Context(ctx, userID)
	if err != nil {
		return nil, err
	}

	userMsg := domain.NewChatMessage(domain.RoleUser, text)
	prompt := s.buildPrompt(history, userMsg)

	completion, attempts, perr := s.complete(ctx, prompt)
	span.SetAttributes(attribute.Int("provider.attempts", attempts))
	if perr != nil {
		s.recordOutcome(userID, text, "", outcomeFor(perr), 0)
		return nil, perr
	}

	assistantMsg := domain.NewChatMessage(domain.RoleAssistant, completion.Content)
	reply := &Reply{Content: completion.Content, TokensUsed: completion.TokensUsed}

	// The reply exists; from here on failures are internal and must not mask
	// it. The append is atomic inside the store.
	if aerr := s.Store.AppendTurn(ctx, userID, userMsg, assistantMsg); aerr != nil {
		log.Error().Err(aerr).Str("user_id", userID).Msg("session append failed")
	}
	s.recordOutcome(userID, text, completion.Content, domain.OutcomeOK, completion.TokensUsed)

	s.Health.MarkSuccess()
	turnsTotal.WithLabelValues(domain.OutcomeOK).Inc()
	return reply, nil
}

// ClearSession discards the user's conversation memory.
func (s *ChatService) ClearSession(ctx context.Context, userID string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.Store.Clear(ctx, userID)
}

// complete runs the bounded retry loop against the provider. It returns the
// completion, the number of attempts made, and a classified service error.
func (s *ChatService) complete(ctx context.Context, prompt []domain.ChatMessage) (provider.Completion, int, error) {
	tr := otel.Tracer("services/ChatService")

	var lastErr error
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.AttemptTimeout)
		actx, span := tr.Start(attemptCtx, "provider.complete",
			trace.WithAttributes(attribute.Int("attempt", attempt)),
		)
		completion, err := s.Provider.Complete(actx, prompt)
		span.End()
		cancel()

		if err == nil {
			return completion, attempt, nil
		}
		lastErr = err

		// External cancellation aborts the loop without consuming budget;
		// an attempt-level deadline is an ordinary transient failure.
		if ctx.Err() != nil {
			return provider.Completion{}, attempt, ctx.Err()
		}
		if !provider.IsTransient(err) {
			log.Warn().Err(err).Int("attempt", attempt).Msg("provider rejected request")
			return provider.Completion{}, attempt, ErrProviderRejected
		}

		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", s.MaxAttempts).
			Msg("transient provider failure")
		if attempt < s.MaxAttempts {
			providerRetriesTotal.Inc()
			if serr := sleepCtx(ctx, backoffDelay(attempt, s.BaseDelay, s.MaxDelay)); serr != nil {
				return provider.Completion{}, attempt, serr
			}
		}
	}

	log.Error().Err(lastErr).Int("attempts", s.MaxAttempts).Msg("provider attempts exhausted")
	return provider.Completion{}, s.MaxAttempts, ErrProviderUnavailable
}

// buildPrompt assembles the bounded provider prompt: system preamble, the
// trailing session context (already capped by the store), then the new user
// message.
func (s *ChatService) buildPrompt(history []domain.ChatMessage, userMsg domain.ChatMessage) []domain.ChatMessage {
	prompt := make([]domain.ChatMessage, 0, len(history)+2)
	if s.SystemPrompt != "" {
		prompt = append(prompt, domain.NewChatMessage(domain.RoleSystem, s.SystemPrompt))
	}
	prompt = append(prompt, history...)
	return append(prompt, userMsg)
}

// recordOutcome writes the audit-log row and bumps the user's activity, both
// best-effort: failures are logged and counted, never surfaced. Uses a
// detached context so a caller disconnect cannot lose a completed turn.
func (s *ChatService) recordOutcome(userID, prompt, reply, outcome string, tokensUsed int) {
	if s.DB == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := repo.UpsertUser(ctx, s.DB, userID, "", "", ""); err != nil {
		persistenceFailuresTotal.Inc()
		log.Error().Err(err).Str("user_id", userID).Msg("user upsert failed")
	}
	if _, err := repo.RecordConversation(ctx, s.DB, userID, prompt, reply, outcome, tokensUsed); err != nil {
		persistenceFailuresTotal.Inc()
		log.Error().Err(err).Str("user_id", userID).Msg("conversation log write failed")
	}
	if outcome != domain.OutcomeOK {
		turnsTotal.WithLabelValues(outcome).Inc()
	}
}

// outcomeFor maps a terminal provider error to its audit-log outcome.
func outcomeFor(err error) string {
	if err == ErrProviderRejected {
		return domain.OutcomeProviderRejected
	}
	return domain.OutcomeProviderUnavailable
}

// userLock returns the mutex serializing turns for userID.
func (s *ChatService) userLock(userID string) *sync.Mutex {
	v, _ := s.turnLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}
