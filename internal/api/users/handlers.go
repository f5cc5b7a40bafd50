// Package users exposes the user endpoints: the caller's own profile, the
// user directory with counts, per-user detail, partial updates, email
// availability, and aggregate statistics.
package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orgdesk/orgdesk/internal/middleware"
	"github.com/orgdesk/orgdesk/internal/services"
)

// Handlers holds the user endpoint dependencies
type Handlers struct {
	svc *services.UserService
}

// NewHandlers creates the user handlers
func NewHandlers(svc *services.UserService) *Handlers {
	return &Handlers{svc: svc}
}

// serviceError maps the service sentinels to HTTP statuses and hides
// everything else behind a generic 500.
func serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
	case errors.Is(err, services.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Resource conflict"})
	default:
		slog.Error("user request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// Me returns the caller's own record with memberships and linked accounts.
//
// @Summary      Current user
// @Tags         Users
// @Produce      json
// @Success      200  {object}  models.UserDetail
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/users/me [get]
func (h *Handlers) Me(c *gin.Context) {
	detail, err := h.svc.CurrentUser(c.Request.Context(), middleware.IdentityFrom(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// UpdateMe applies a partial update to the caller's own record.
//
// @Summary      Update current user
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        request  body  services.UpdateUserInput  true  "Fields to change"
// @Success      200  {object}  models.User
// @Failure      409  {object}  map[string]string  "Email already in use"
// @Router       /api/v1/users/me [patch]
func (h *Handlers) UpdateMe(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	if identity == nil {
		serviceError(c, services.ErrUnauthenticated)
		return
	}

	var input services.UpdateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	// Verification status is not self-service.
	input.EmailVerified = nil

	user, err := h.svc.UpdateUser(c.Request.Context(), identity.UserID, input)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// List returns every user with membership and session counts.
//
// @Summary      List users
// @Tags         Users
// @Produce      json
// @Success      200  {array}  models.UserWithCounts
// @Router       /api/v1/users [get]
func (h *Handlers) List(c *gin.Context) {
	list, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get returns one user with memberships, accounts, and recent sessions.
//
// @Summary      Get user
// @Tags         Users
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  models.UserDetail
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/users/{id} [get]
func (h *Handlers) Get(c *gin.Context) {
	detail, err := h.svc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Update applies a partial update to any user.
//
// @Summary      Update user
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        id       path  string                    true  "User ID"
// @Param        request  body  services.UpdateUserInput  true  "Fields to change"
// @Success      200  {object}  models.User
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "Email already in use"
// @Router       /api/v1/users/{id} [patch]
func (h *Handlers) Update(c *gin.Context) {
	var input services.UpdateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	user, err := h.svc.UpdateUser(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// EmailCheck reports whether an email is already registered.
//
// @Summary      Check email availability
// @Tags         Users
// @Produce      json
// @Param        email    query  string  true   "Email to check"
// @Param        exclude  query  string  false  "User ID whose own email does not count"
// @Success      200  {object}  map[string]bool  "in_use"
// @Router       /api/v1/users/email-check [get]
func (h *Handlers) EmailCheck(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing email parameter"})
		return
	}

	inUse, err := h.svc.EmailInUse(c.Request.Context(), email, c.Query("exclude"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"in_use": inUse})
}

// Stats returns the aggregate user statistics.
//
// @Summary      User statistics
// @Tags         Users
// @Produce      json
// @Success      200  {object}  services.UserStats
// @Router       /api/v1/users/stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.svc.UserStats(c.Request.Context())
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
