package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatrelay/chat-relay/internal/repo"
)

// Stats is the operational snapshot served to admins: audit-log totals,
// live session count, and the rate limiter's tracked-user count.
type Stats struct {
	TotalTurns      int64                `json:"total_turns"`
	TotalUsers      int64                `json:"total_users"`
	TokensUsed      int64                `json:"tokens_used"`
	ActiveSessions  int                  `json:"active_sessions"`
	TrackedLimiters int                  `json:"tracked_limiters"`
	LastTurnAt      *time.Time           `json:"last_turn_at,omitempty"`
	TopUsers        []repo.UserTurnCount `json:"top_users"`
}

// CollectStats assembles the snapshot. Store and limiter figures are always
// present; database aggregates are zero-valued if the audit DB is down, with
// the error propagated so the handler can decide how loudly to fail.
func (s *ChatService) CollectStats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	active, err := s.Store.ActiveCount(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("session count unavailable")
	} else {
		st.ActiveSessions = active
		activeSessions.Set(float64(active))
	}
	st.TrackedLimiters = s.Limiter.Len()

	if s.DB == nil {
		return st, nil
	}
	if st.TotalTurns, err = repo.CountTurns(ctx, s.DB, ""); err != nil {
		return st, err
	}
	if st.TotalUsers, err = repo.CountUsers(ctx, s.DB); err != nil {
		return st, err
	}
	if st.TokensUsed, err = repo.TokensUsedTotal(ctx, s.DB); err != nil {
		return st, err
	}
	if st.LastTurnAt, err = repo.LastTurnAt(ctx, s.DB); err != nil {
		return st, err
	}
	if st.TopUsers, err = repo.TurnsPerUser(ctx, s.DB, 10); err != nil {
		return st, err
	}
	return st, nil
}
