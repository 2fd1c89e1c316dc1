// Stats and admin HTTP handlers.
//
// GET /stats is an operator snapshot: audit-log totals, live session count,
// and rate-limiter footprint. PUT /users/:id/access flips a user's access
// flags at runtime. Both are admin-gated once any admin identity is
// configured; with no admins configured the deployment is assumed private
// and the surface stays open.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatrelay/chat-relay/internal/repo"
)

// UserAccessRequest is the JSON payload for updating a user's access flags.
type UserAccessRequest struct {
	IsAllowed *bool `json:"is_allowed" binding:"required"`
	IsAdmin   bool  `json:"is_admin"`
}

// requireAdmin aborts with 403 unless the caller may use the admin surface.
// Returns true when the request may proceed.
func (h *Handlers) requireAdmin(c *gin.Context) bool {
	if !h.svc.AdminGated() {
		return true
	}
	if h.svc.IsAdmin(c.Request.Context(), userID(c)) {
		return true
	}
	fail(c, http.StatusForbidden, ErrCodeForbidden, "admin access required")
	return false
}

// GetStats godoc
// @ID          getStats
// @Summary     Operational statistics
// @Description Returns turn totals, token usage, per-user volume, live session count, and rate-limiter footprint.
// @Tags        Admin
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(admin1)
//
// @Success     200  {object}  services.Stats
// @Failure     403  {object}  handlers.ErrorResponse  "Admin access required"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	st, err := h.svc.CollectStats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to collect statistics")
		return
	}
	ok(c, http.StatusOK, st)
}

// SetUserAccess godoc
// @ID          setUserAccess
// @Summary     Update a user's access flags
// @Description Grants or revokes relay access (and admin rights) for a known user.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(admin1)
// @Param       id         path    string  true  "Target user ID"         example(user123)
// @Param       body       body    handlers.UserAccessRequest  true  "Access flags"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin access required"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown user"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/access [put]
func (h *Handlers) SetUserAccess(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	target := c.Param("id")
	if target == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id required")
		return
	}

	var req UserAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsAllowed == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "is_allowed is required")
		return
	}

	if err := h.svc.SetUserAccess(c.Request.Context(), target, *req.IsAllowed, req.IsAdmin); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown user")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to update user")
		return
	}
	noContent(c)
}
