// Package orgs exposes the organization endpoints: listing and lookups,
// create/update/delete with role gates enforced in the service layer, slug
// availability, invitations, and aggregate statistics.
package orgs

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orgdesk/orgdesk/internal/middleware"
	"github.com/orgdesk/orgdesk/internal/services"
)

// Handlers holds the organization endpoint dependencies
type Handlers struct {
	svc   *services.OrganizationService
	users *services.UserService
}

// NewHandlers creates the organization handlers. The user service backs the
// invitable-users listing.
func NewHandlers(svc *services.OrganizationService, users *services.UserService) *Handlers {
	return &Handlers{svc: svc, users: users}
}

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
		slog.Error("organization request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// List returns the caller's organizations, expanded.
//
// @Summary      List organizations
// @Tags         Organizations
// @Produce      json
// @Success      200  {array}  models.OrganizationDetail
// @Router       /api/v1/organizations [get]
func (h *Handlers) List(c *gin.Context) {
	details, err := h.svc.ListOrganizations(c.Request.Context(), middleware.IdentityFrom(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// Active returns the organization of the caller's earliest membership.
//
// @Summary      Active organization
// @Tags         Organizations
// @Produce      json
// @Success      200  {object}  models.OrganizationDetail
// @Failure      404  {object}  map[string]string  "Caller belongs to no organization"
// @Router       /api/v1/organizations/active [get]
func (h *Handlers) Active(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	if identity == nil {
		serviceError(c, services.ErrUnauthenticated)
		return
	}

	detail, err := h.svc.ActiveOrganization(c.Request.Context(), identity.UserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// GetBySlug returns one organization with its pending invitations.
//
// @Summary      Get organization by slug
// @Tags         Organizations
// @Produce      json
// @Param        slug  path  string  true  "Organization slug"
// @Success      200  {object}  models.OrganizationDetail
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/organizations/by-slug/{slug} [get]
func (h *Handlers) GetBySlug(c *gin.Context) {
	detail, err := h.svc.GetOrganizationBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Get returns one organization with all of its invitations.
//
// @Summary      Get organization
// @Tags         Organizations
// @Produce      json
// @Param        id  path  string  true  "Organization ID"
// @Success      200  {object}  models.OrganizationDetail
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/organizations/{id} [get]
func (h *Handlers) Get(c *gin.Context) {
	detail, err := h.svc.GetOrganizationByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Create creates an organization owned by the caller.
//
// @Summary      Create organization
// @Tags         Organizations
// @Accept       json
// @Produce      json
// @Param        request  body  services.CreateOrganizationInput  true  "Name and optional slug, logo, metadata"
// @Success      201  {object}  models.OrganizationDetail
// @Failure      409  {object}  map[string]string  "Slug already taken"
// @Router       /api/v1/organizations [post]
func (h *Handlers) Create(c *gin.Context) {
	var input services.CreateOrganizationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	detail, err := h.svc.CreateOrganization(c.Request.Context(), middleware.IdentityFrom(c), input)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}

// Update applies a partial update; the caller must be an owner or admin.
//
// @Summary      Update organization
// @Tags         Organizations
// @Accept       json
// @Produce      json
// @Param        id       path  string                            true  "Organization ID"
// @Param        request  body  services.UpdateOrganizationInput  true  "Fields to change"
// @Success      200  {object}  models.OrganizationDetail
// @Failure      403  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "Slug already taken"
// @Router       /api/v1/organizations/{id} [patch]
func (h *Handlers) Update(c *gin.Context) {
	var input services.UpdateOrganizationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	detail, err := h.svc.UpdateOrganization(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"), input)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Delete removes an organization; only its owner may do this.
//
// @Summary      Delete organization
// @Tags         Organizations
// @Produce      json
// @Param        id  path  string  true  "Organization ID"
// @Success      200  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /api/v1/organizations/{id} [delete]
func (h *Handlers) Delete(c *gin.Context) {
	if err := h.svc.DeleteOrganization(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Organization deleted"})
}

// SlugCheck reports whether a slug is free.
//
// @Summary      Check slug availability
// @Tags         Organizations
// @Produce      json
// @Param        slug     path   string  true   "Slug to check"
// @Param        exclude  query  string  false  "Organization ID whose own slug does not count"
// @Success      200  {object}  map[string]bool  "available"
// @Router       /api/v1/organizations/slug-check/{slug} [get]
func (h *Handlers) SlugCheck(c *gin.Context) {
	available, err := h.svc.SlugAvailable(c.Request.Context(), c.Param("slug"), c.Query("exclude"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": available})
}

// Stats returns aggregate statistics over the caller's organizations.
//
// @Summary      Organization statistics
// @Tags         Organizations
// @Produce      json
// @Success      200  {object}  services.OrganizationStats
// @Router       /api/v1/organizations/stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.svc.OrganizationStats(c.Request.Context(), middleware.IdentityFrom(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// InvitableUsers lists users who are not yet members of the organization.
//
// @Summary      List invitable users
// @Tags         Organizations
// @Produce      json
// @Param        id  path  string  true  "Organization ID"
// @Success      200  {array}  models.UserSummary
// @Router       /api/v1/organizations/{id}/invitable-users [get]
func (h *Handlers) InvitableUsers(c *gin.Context) {
	list, err := h.users.InvitableUsers(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type createInvitationRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role"`
}

// CreateInvitation offers membership to an email address.
//
// @Summary      Invite a member
// @Tags         Organizations
// @Accept       json
// @Produce      json
// @Param        id       path  string                   true  "Organization ID"
// @Param        request  body  createInvitationRequest  true  "Invitee email and optional role"
// @Success      201  {object}  models.Invitation
// @Failure      403  {object}  map[string]string
// @Router       /api/v1/organizations/{id}/invitations [post]
func (h *Handlers) CreateInvitation(c *gin.Context) {
	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	inv, err := h.svc.CreateInvitation(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"), req.Email, req.Role)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// AcceptInvitation turns a pending invitation addressed to the caller into a
// membership.
//
// @Summary      Accept invitation
// @Tags         Organizations
// @Produce      json
// @Param        id  path  string  true  "Invitation ID"
// @Success      200  {object}  models.Member
// @Failure      403  {object}  map[string]string  "Invitation is for a different email"
// @Failure      409  {object}  map[string]string  "Invitation is not pending or has expired"
// @Router       /api/v1/organizations/invitations/{id}/accept [post]
func (h *Handlers) AcceptInvitation(c *gin.Context) {
	member, err := h.svc.AcceptInvitation(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}
