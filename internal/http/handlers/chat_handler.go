// Chat HTTP handlers.
//
// This file exposes the conversational endpoints:
//   - POST   /chat      (send a message, receive the assistant reply)
//   - DELETE /session   (forget the caller's conversation)
//
// Handlers are transport-thin: they validate input, call the chat service,
// and translate service-level sentinel errors into the HTTP taxonomy.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chatrelay/chat-relay/internal/services"
)

// ChatService defines the conversation operations consumed by the HTTP
// layer. Implementations must be safe for concurrent use and honor the
// provided context for cancellation and timeouts.
type ChatService interface {
	// ProcessMessage runs one chat turn for userID and returns the reply.
	ProcessMessage(ctx context.Context, userID, text string) (*services.Reply, error)
	// ClearSession discards the user's conversation memory.
	ClearSession(ctx context.Context, userID string) error
	// CollectStats assembles the operational snapshot.
	CollectStats(ctx context.Context) (*services.Stats, error)
	// SetUserAccess grants or revokes access and admin flags.
	SetUserAccess(ctx context.Context, userID string, isAllowed, isAdmin bool) error
	// IsAdmin reports whether userID may use the admin surface.
	IsAdmin(ctx context.Context, userID string) bool
	// AdminGated reports whether the admin surface requires gating.
	AdminGated() bool
}

// Handlers groups the HTTP endpoints of the relay behind the ChatService
// contract, keeping transport concerns out of the business logic.
type Handlers struct {
	svc ChatService
}

// New constructs a Handlers bound to the given service.
func New(svc ChatService) *Handlers {
	return &Handlers{svc: svc}
}

// userID extracts the caller identity from the Gin context (set by the
// identity middleware), falling back to the X-User-ID header (tests use it)
// and finally to "demo-user".
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// ChatRequest is the JSON payload for sending a message.
type ChatRequest struct {
	// Text is the user's message.
	Text string `json:"text" example:"What is the capital of Cyprus?"`
}

// ChatResponse is the successful turn result.
type ChatResponse struct {
	Reply      string `json:"reply" example:"The capital of Cyprus is Nicosia."`
	TokensUsed int    `json:"tokens_used" example:"42"`
}

// ClearSessionResponse acknowledges a session reset.
type ClearSessionResponse struct {
	Cleared bool `json:"cleared" example:"true"`
}

// PostChat godoc
// @ID          postChat
// @Summary     Send a chat message
// @Description Runs one conversation turn for the current user and returns the assistant reply.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.ChatRequest  true  "Chat message payload"
//
// @Success     200  {object}  handlers.ChatResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or oversized message"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limit exceeded"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider rejected the request"
// @Failure     503  {object}  handlers.ErrorResponse  "Provider unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat [post]
func (h *Handlers) PostChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	reply, err := h.svc.ProcessMessage(c.Request.Context(), userID(c), req.Text)
	if err != nil {
		h.failChat(c, err)
		return
	}
	ok(c, http.StatusOK, ChatResponse{Reply: reply.Content, TokensUsed: reply.TokensUsed})
}

// failChat maps service sentinel errors onto the HTTP taxonomy.
func (h *Handlers) failChat(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message must not be empty")
	case errors.Is(err, services.ErrMessageTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long")
	case errors.Is(err, services.ErrRateLimited):
		c.Header("Retry-After", "1")
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
	case errors.Is(err, services.ErrProviderRejected):
		fail(c, http.StatusBadGateway, ErrCodeProviderRejected, "assistant could not process this message")
	case errors.Is(err, services.ErrProviderUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeProviderUnavailable, "assistant is temporarily unavailable")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "access denied")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// ClearSession godoc
// @ID          clearSession
// @Summary     Clear the conversation
// @Description Forgets all conversation memory for the current user. Idempotent.
// @Tags        Chat
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object}  handlers.ClearSessionResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /session [delete]
func (h *Handlers) ClearSession(c *gin.Context) {
	if err := h.svc.ClearSession(c.Request.Context(), userID(c)); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to clear session")
		return
	}
	ok(c, http.StatusOK, ClearSessionResponse{Cleared: true})
}
