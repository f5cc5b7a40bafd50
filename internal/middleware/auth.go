// Package middleware provides the Gin HTTP middleware chain for the API.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → Metrics → RateLimit → Auth → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth so brute-force traffic is rejected before any
// bcrypt or database work. Auth resolves the session and stores the caller's
// identity in the context; handlers read it back with IdentityFrom.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orgdesk/orgdesk/internal/auth"
	"github.com/orgdesk/orgdesk/internal/services"
)

const (
	// IdentityKey is the gin.Context key holding the caller's *services.Identity.
	IdentityKey = "identity"

	// UserKey is the gin.Context key holding the caller's *models.User.
	UserKey = "user"
)

// RequireAuth validates the bearer token and aborts with 401 when the session
// cannot be resolved. On success the caller's user and identity are stored in
// the context.
func RequireAuth(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing bearer token",
			})
			return
		}

		user, session, err := authSvc.ResolveSession(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrSessionNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid or expired session",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to resolve session",
			})
			return
		}

		c.Set(UserKey, user)
		c.Set(IdentityKey, &services.Identity{
			UserID:    user.ID,
			Email:     user.Email,
			SessionID: session.ID,
		})

		c.Next()
	}
}

// OptionalAuth resolves the bearer token when one is present but never aborts.
// Handlers behind it see a nil identity for anonymous callers.
func OptionalAuth(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		user, session, err := authSvc.ResolveSession(c.Request.Context(), token)
		if err == nil {
			c.Set(UserKey, user)
			c.Set(IdentityKey, &services.Identity{
				UserID:    user.ID,
				Email:     user.Email,
				SessionID: session.ID,
			})
		}

		c.Next()
	}
}

// IdentityFrom returns the caller's identity, or nil for anonymous requests.
func IdentityFrom(c *gin.Context) *services.Identity {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return nil
	}
	identity, _ := v.(*services.Identity)
	return identity
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}
