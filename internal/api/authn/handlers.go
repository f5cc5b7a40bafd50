// Package authn exposes the public authentication endpoints: credential
// sign-up and login, logout, the password reset pair, and the OIDC redirect
// flow. Everything here is reachable without a session.
package authn

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orgdesk/orgdesk/internal/auth"
	"github.com/orgdesk/orgdesk/internal/auth/oidc"
	"github.com/orgdesk/orgdesk/internal/config"
	"github.com/orgdesk/orgdesk/internal/db/models"
)

// stateTTL bounds how long an OIDC login attempt may take.
const stateTTL = 5 * time.Minute

// Handlers holds the authentication endpoint dependencies
type Handlers struct {
	cfg      *config.Config
	svc      *auth.Service
	provider *oidc.Provider

	mu     sync.Mutex
	states map[string]time.Time
}

// NewHandlers creates the authentication handlers. The OIDC provider may be
// nil when social login is not configured; the OIDC endpoints then return 400.
func NewHandlers(cfg *config.Config, svc *auth.Service, provider *oidc.Provider) *Handlers {
	return &Handlers{
		cfg:      cfg,
		svc:      svc,
		provider: provider,
		states:   make(map[string]time.Time),
	}
}

// authResponse is the shape returned by every endpoint that opens a session.
type authResponse struct {
	Token     string       `json:"token"`
	User      *models.User `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func newAuthResponse(res *auth.AuthResult) authResponse {
	return authResponse{
		Token:     res.Token,
		User:      res.User,
		ExpiresAt: res.Session.ExpiresAt,
	}
}

type signUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignUp creates a user with a credential account and opens a session.
//
// @Summary      Sign up
// @Description  Creates a user account with email and password, returning a session token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request  body  signUpRequest  true  "Email, display name, and password"
// @Success      201  {object}  authResponse
// @Failure      400  {object}  map[string]string  "Invalid input or weak password"
// @Failure      409  {object}  map[string]string  "Email already registered"
// @Router       /api/v1/auth/signup [post]
func (h *Handlers) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := h.svc.SignUp(c.Request.Context(), req.Email, req.Name, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "Email is already registered"})
		case errors.Is(err, auth.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password does not meet the minimum length"})
		default:
			slog.Error("signup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		}
		return
	}

	c.JSON(http.StatusCreated, newAuthResponse(res))
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and opens a session.
//
// @Summary      Log in
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request  body  loginRequest  true  "Email and password"
// @Success      200  {object}  authResponse
// @Failure      401  {object}  map[string]string  "Invalid credentials"
// @Router       /api/v1/auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		slog.Error("login failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log in"})
		return
	}

	c.JSON(http.StatusOK, newAuthResponse(res))
}

// Logout revokes the session carried by the bearer token.
//
// @Summary      Log out
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string  "No valid session"
// @Router       /api/v1/auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
		return
	}

	claims, err := auth.ValidateJWT(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token"})
		return
	}

	if err := h.svc.Logout(c.Request.Context(), claims.SessionToken); err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session not found"})
			return
		}
		slog.Error("logout failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log out"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword issues a password reset token. The response is identical for
// known and unknown addresses so the endpoint cannot be used to probe which
// emails have accounts.
//
// @Summary      Request password reset
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request  body  forgotPasswordRequest  true  "Account email"
// @Success      200  {object}  map[string]string
// @Router       /api/v1/auth/forgot-password [post]
func (h *Handlers) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if _, err := h.svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		slog.Error("password reset request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process reset request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "If the address has an account, a reset link has been issued",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ResetPassword consumes a reset token and sets a new password. All of the
// user's sessions are revoked on success.
//
// @Summary      Reset password
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request  body  resetPasswordRequest  true  "Reset token and new password"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string  "Invalid or expired token, or weak password"
// @Router       /api/v1/auth/reset-password [post]
func (h *Handlers) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.svc.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidResetToken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset token"})
		case errors.Is(err, auth.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password does not meet the minimum length"})
		default:
			slog.Error("password reset failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// OIDCLogin redirects the browser to the identity provider.
//
// @Summary      Start OIDC login
// @Tags         Auth
// @Success      302  "Redirect to the identity provider"
// @Failure      400  {object}  map[string]string  "OIDC not configured"
// @Router       /api/v1/auth/oidc/login [get]
func (h *Handlers) OIDCLogin(c *gin.Context) {
	if h.provider == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "OIDC login is not configured"})
		return
	}

	state, err := generateState()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate state"})
		return
	}
	h.storeState(state)

	c.Redirect(http.StatusFound, h.provider.GetAuthURL(state))
}

// OIDCCallback completes the code exchange and opens a session for the
// asserted identity, linking or creating the local user as needed.
//
// @Summary      OIDC callback
// @Tags         Auth
// @Produce      json
// @Param        code   query  string  true  "Authorization code"
// @Param        state  query  string  true  "CSRF state"
// @Success      200  {object}  authResponse
// @Failure      400  {object}  map[string]string  "Invalid state or code"
// @Router       /api/v1/auth/oidc/callback [get]
func (h *Handlers) OIDCCallback(c *gin.Context) {
	if h.provider == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "OIDC login is not configured"})
		return
	}

	if !h.consumeState(c.Query("state")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired state parameter"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
		return
	}

	token, err := h.provider.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		slog.Warn("OIDC code exchange failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization code exchange failed"})
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Identity provider returned no id_token"})
		return
	}

	idToken, err := h.provider.VerifyIDToken(c.Request.Context(), rawIDToken)
	if err != nil {
		slog.Warn("OIDC id_token verification failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id_token"})
		return
	}

	sub, email, name, err := h.provider.ExtractUserInfo(idToken)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Identity token is missing required claims"})
		return
	}

	res, err := h.svc.LoginOIDC(c.Request.Context(), h.cfg.Auth.OIDC.ProviderID, sub, email, name, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		slog.Error("OIDC login failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log in"})
		return
	}

	c.JSON(http.StatusOK, newAuthResponse(res))
}

// ---------------------------------------------------------------------------
// OIDC state tracking
// ---------------------------------------------------------------------------

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (h *Handlers) storeState(state string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Opportunistically drop expired attempts.
	cutoff := time.Now().Add(-stateTTL)
	for s, created := range h.states {
		if created.Before(cutoff) {
			delete(h.states, s)
		}
	}

	h.states[state] = time.Now()
}

// consumeState validates and deletes a state so it cannot be replayed.
func (h *Handlers) consumeState(state string) bool {
	if state == "" {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	created, ok := h.states[state]
	if !ok {
		return false
	}
	delete(h.states, state)

	return time.Since(created) <= stateTTL
}
