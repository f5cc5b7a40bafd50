// service.go implements the credential flows: signup, login, logout, session
// resolution, and the password reset token lifecycle.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/orgdesk/orgdesk/internal/config"
	"github.com/orgdesk/orgdesk/internal/db/models"
	"github.com/orgdesk/orgdesk/internal/db/repositories"
	"github.com/orgdesk/orgdesk/internal/telemetry"
)

// Sentinel errors returned by the auth flows. Handlers map these to HTTP
// statuses; everything else is an internal error.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrWeakPassword       = errors.New("password does not meet the minimum length")
	ErrInvalidResetToken  = errors.New("reset token is invalid or expired")
	ErrSessionNotFound    = errors.New("session not found or expired")
)

// Service implements signup, login, logout, and password reset over the
// user, account, session, and verification repositories.
type Service struct {
	cfg           *config.Config
	users         *repositories.UserRepository
	accounts      *repositories.AccountRepository
	sessions      *repositories.SessionRepository
	verifications *repositories.VerificationRepository
}

// NewService creates an auth service bound to the given database
func NewService(cfg *config.Config, db *sqlx.DB) *Service {
	return &Service{
		cfg:           cfg,
		users:         repositories.NewUserRepository(db),
		accounts:      repositories.NewAccountRepository(db),
		sessions:      repositories.NewSessionRepository(db),
		verifications: repositories.NewVerificationRepository(db),
	}
}

// AuthResult is returned by SignUp and Login: the user, the session row, and
// the signed JWT embedding the session token.
type AuthResult struct {
	User    *models.User    `json:"user"`
	Session *models.Session `json:"session"`
	Token   string          `json:"token"`
}

// SignUp registers a new user with an email/password credential and logs them
// in. The unique index on LOWER(email) is the source of truth for collisions;
// the advisory pre-check just gives a cleaner error on the common path.
func (s *Service) SignUp(ctx context.Context, email, name, password, ipAddress, userAgent string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if len(password) < s.cfg.Auth.Password.MinLength {
		return nil, ErrWeakPassword
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(password, s.cfg.Auth.Password.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{Email: email, Name: name}
	if err := s.users.Create(ctx, user); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	account := &models.Account{
		UserID:            user.ID,
		ProviderID:        models.ProviderCredential,
		ProviderAccountID: user.ID,
		PasswordHash:      &hash,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	result, err := s.createSession(ctx, user, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	telemetry.SignupsTotal.Inc()
	slog.Info("user signed up", "user_id", user.ID)
	return result, nil
}

// Login verifies credentials and creates a new session
func (s *Service) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		telemetry.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetCredential(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.PasswordHash == nil {
		// OIDC-only user attempting a password login
		telemetry.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	ok, err := CheckPassword(*account.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		telemetry.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	result, err := s.createSession(ctx, user, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()
	slog.Info("user logged in", "user_id", user.ID)
	return result, nil
}

// LoginOIDC logs in (or registers) a user from a verified OIDC identity and
// creates a session. The provider's subject claim links the external account.
func (s *Service) LoginOIDC(ctx context.Context, providerID, subject, email, name, ipAddress, userAgent string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	account, err := s.accounts.GetByProviderAccount(ctx, providerID, subject)
	if err != nil {
		return nil, err
	}

	var user *models.User
	if account != nil {
		user, err = s.users.GetByID(ctx, account.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, fmt.Errorf("account %s references missing user %s", account.ID, account.UserID)
		}
	} else {
		// First login with this provider: link to an existing user by email,
		// or register a new one. The IdP verified the address.
		user, err = s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if user == nil {
			user = &models.User{Email: email, Name: name, EmailVerified: true}
			if err := s.users.Create(ctx, user); err != nil {
				return nil, err
			}
			telemetry.SignupsTotal.Inc()
		}

		link := &models.Account{
			UserID:            user.ID,
			ProviderID:        providerID,
			ProviderAccountID: subject,
		}
		if err := s.accounts.Create(ctx, link); err != nil {
			return nil, err
		}
	}

	result, err := s.createSession(ctx, user, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()
	slog.Info("user logged in via OIDC", "user_id", user.ID, "provider", providerID)
	return result, nil
}

// Logout revokes the session identified by its opaque token
func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	session, err := s.sessions.GetByToken(ctx, sessionToken)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}

	if _, err := s.sessions.Delete(ctx, session.ID); err != nil {
		return err
	}

	slog.Info("session revoked", "session_id", session.ID, "user_id", session.UserID)
	return nil
}

// ResolveSession validates a bearer JWT and loads its backing session row.
// A valid signature is not enough: the session row must still exist (not
// revoked) and be unexpired.
func (s *Service) ResolveSession(ctx context.Context, bearerToken string) (*models.User, *models.Session, error) {
	claims, err := ValidateJWT(bearerToken)
	if err != nil {
		return nil, nil, ErrSessionNotFound
	}

	session, err := s.sessions.GetByToken(ctx, claims.SessionToken)
	if err != nil {
		return nil, nil, err
	}
	if session == nil || session.IsExpired(time.Now()) {
		return nil, nil, ErrSessionNotFound
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrSessionNotFound
	}

	return user, session, nil
}

// RequestPasswordReset issues a one-shot reset token for the given email and
// returns the raw token. Only its bcrypt hash is stored. A missing account
// produces no error and no token, so the endpoint cannot be used to probe for
// registered addresses.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil {
		telemetry.PasswordResetsTotal.WithLabelValues("requested").Inc()
		return "", nil
	}

	// Issuing a new token invalidates any outstanding ones.
	if err := s.verifications.DeleteByIdentifier(ctx, email); err != nil {
		return "", err
	}

	secret, err := randomToken()
	if err != nil {
		return "", err
	}

	secretHash, err := HashPassword(secret, s.cfg.Auth.Password.BcryptCost)
	if err != nil {
		return "", err
	}

	v := &models.Verification{
		Identifier: email,
		TokenHash:  secretHash,
		ExpiresAt:  time.Now().Add(s.cfg.Auth.Password.ResetTTL),
	}
	if err := s.verifications.Create(ctx, v); err != nil {
		return "", err
	}

	telemetry.PasswordResetsTotal.WithLabelValues("requested").Inc()

	// Email delivery is out of scope; the reset link is logged for operators.
	token := v.ID + ":" + secret
	slog.Info("password reset requested",
		"user_id", user.ID,
		"reset_url", fmt.Sprintf("%s/reset-password?token=%s", s.cfg.Server.GetPublicURL(), token),
	)
	return token, nil
}

// ResetPassword consumes a reset token, updates the credential hash, and
// revokes all of the user's sessions.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < s.cfg.Auth.Password.MinLength {
		return ErrWeakPassword
	}

	id, secret, found := strings.Cut(token, ":")
	if !found || id == "" || secret == "" {
		return ErrInvalidResetToken
	}

	v, err := s.verifications.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if v == nil || time.Now().After(v.ExpiresAt) {
		return ErrInvalidResetToken
	}

	ok, err := CheckPassword(v.TokenHash, secret)
	if err != nil || !ok {
		return ErrInvalidResetToken
	}

	user, err := s.users.GetByEmail(ctx, v.Identifier)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidResetToken
	}

	hash, err := HashPassword(newPassword, s.cfg.Auth.Password.BcryptCost)
	if err != nil {
		return err
	}

	account, err := s.accounts.GetCredential(ctx, user.ID)
	if err != nil {
		return err
	}
	if account == nil {
		// OIDC-only user setting a password for the first time
		account = &models.Account{
			UserID:            user.ID,
			ProviderID:        models.ProviderCredential,
			ProviderAccountID: user.ID,
			PasswordHash:      &hash,
		}
		if err := s.accounts.Create(ctx, account); err != nil {
			return err
		}
	} else {
		if err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
			return err
		}
	}

	// The token is one-shot.
	if err := s.verifications.Delete(ctx, v.ID); err != nil {
		return err
	}

	revoked, err := s.sessions.DeleteByUser(ctx, user.ID)
	if err != nil {
		return err
	}

	telemetry.PasswordResetsTotal.WithLabelValues("completed").Inc()
	slog.Info("password reset completed", "user_id", user.ID, "sessions_revoked", revoked)
	return nil
}

// CleanupExpired removes expired sessions and verification tokens. Run
// periodically from the server loop.
func (s *Service) CleanupExpired(ctx context.Context) error {
	sessions, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return err
	}

	tokens, err := s.verifications.DeleteExpired(ctx)
	if err != nil {
		return err
	}

	if sessions > 0 || tokens > 0 {
		slog.Info("expired auth records removed", "sessions", sessions, "verifications", tokens)
	}
	return nil
}

func (s *Service) createSession(ctx context.Context, user *models.User, ipAddress, userAgent string) (*AuthResult, error) {
	sessionToken, err := randomToken()
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:    user.ID,
		Token:     sessionToken,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		ExpiresAt: time.Now().Add(s.cfg.Auth.Session.TTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	jwtTTL := s.cfg.Auth.Session.TokenTTL
	if jwtTTL <= 0 || jwtTTL > s.cfg.Auth.Session.TTL {
		jwtTTL = s.cfg.Auth.Session.TTL
	}

	signed, err := GenerateJWT(user.ID, user.Email, sessionToken, jwtTTL)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, Session: session, Token: signed}, nil
}

// randomToken returns a 256-bit hex token from crypto/rand.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
