// users.go implements the user access module: current-user resolution,
// lookups, partial updates, and the aggregate statistics view.
package services

import (
	"context"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/orgdesk/orgdesk/internal/db/models"
	"github.com/orgdesk/orgdesk/internal/db/repositories"
)

// recentSessionLimit caps the sessions included in a user detail view.
const recentSessionLimit = 5

// recentUserWindow is the lookback for the "recent signups" stat.
const recentUserWindow = 30 * 24 * time.Hour

// UserService exposes the user access operations
type UserService struct {
	users    *repositories.UserRepository
	members  *repositories.MemberRepository
	accounts *repositories.AccountRepository
	sessions *repositories.SessionRepository
}

// NewUserService creates a user service bound to the given database
func NewUserService(db *sqlx.DB) *UserService {
	return &UserService{
		users:    repositories.NewUserRepository(db),
		members:  repositories.NewMemberRepository(db),
		accounts: repositories.NewAccountRepository(db),
		sessions: repositories.NewSessionRepository(db),
	}
}

// CurrentUser resolves the caller's own record: the user row plus its
// memberships (with organizations) and linked accounts. A nil identity, or an
// identity whose user row no longer exists, yields ErrUnauthenticated — the
// caller decides whether that means a redirect.
func (s *UserService) CurrentUser(ctx context.Context, identity *Identity) (*models.UserDetail, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}

	return s.expandUser(ctx, user, false)
}

// InvitableUsers returns all users who are not members of the organization,
// ordered by name
func (s *UserService) InvitableUsers(ctx context.Context, orgID string) ([]models.UserSummary, error) {
	return s.users.ListNotInOrganization(ctx, orgID)
}

// ListUsers returns every user with membership and session counts, newest first
func (s *UserService) ListUsers(ctx context.Context) ([]models.UserWithCounts, error) {
	return s.users.ListWithCounts(ctx)
}

// GetUser returns one user expanded with memberships, linked accounts, and
// the most recent sessions. Returns ErrNotFound if no such user exists.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.UserDetail, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}

	return s.expandUser(ctx, user, true)
}

// UpdateUserInput carries the partial fields of a user update; nil fields are
// left unchanged.
type UpdateUserInput struct {
	Name          *string `json:"name"`
	Email         *string `json:"email"`
	Image         *string `json:"image"`
	EmailVerified *bool   `json:"email_verified"`
}

// UpdateUser applies a partial update and refreshes updated_at. An email
// change that collides with another user returns ErrConflict; the unique
// index is the source of truth, the advisory pre-check only improves the
// common-path error.
func (s *UserService) UpdateUser(ctx context.Context, id string, input UpdateUserInput) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}

	if input.Email != nil && *input.Email != user.Email {
		inUse, err := s.users.EmailInUse(ctx, *input.Email, id)
		if err != nil {
			return nil, err
		}
		if inUse {
			return nil, ErrConflict
		}
		user.Email = *input.Email
	}
	if input.Name != nil {
		user.Name = *input.Name
	}
	if input.Image != nil {
		user.Image = input.Image
	}
	if input.EmailVerified != nil {
		user.EmailVerified = *input.EmailVerified
	}

	if err := s.users.Update(ctx, user); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	return user, nil
}

// EmailInUse reports whether any user other than excludeUserID has the email
func (s *UserService) EmailInUse(ctx context.Context, email, excludeUserID string) (bool, error) {
	return s.users.EmailInUse(ctx, email, excludeUserID)
}

// UserStats is the aggregate user statistics view
type UserStats struct {
	Total             int `json:"total"`
	Verified          int `json:"verified"`
	WithOrganizations int `json:"with_organizations"`
	Recent            int `json:"recent"`
	VerificationRate  int `json:"verification_rate"`
}

// UserStats computes the four counts concurrently and derives the
// verification rate as a rounded percentage (0 when there are no users).
func (s *UserService) UserStats(ctx context.Context) (*UserStats, error) {
	var stats UserStats

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats.Total, err = s.users.CountAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Verified, err = s.users.CountVerified(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.WithOrganizations, err = s.users.CountWithMemberships(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Recent, err = s.users.CountCreatedSince(gctx, time.Now().Add(-recentUserWindow))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		stats.VerificationRate = int(math.Round(float64(stats.Verified) / float64(stats.Total) * 100))
	}

	return &stats, nil
}

// expandUser builds the detail view. Recent sessions are only loaded for the
// admin lookup path, not for the caller's own record.
func (s *UserService) expandUser(ctx context.Context, user *models.User, withSessions bool) (*models.UserDetail, error) {
	detail := &models.UserDetail{User: *user}

	memberships, err := s.members.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	detail.Memberships = memberships

	accounts, err := s.accounts.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	detail.Accounts = accounts

	if withSessions {
		sessions, err := s.sessions.ListRecentByUser(ctx, user.ID, recentSessionLimit)
		if err != nil {
			return nil, err
		}
		detail.RecentSessions = sessions
	}

	return detail, nil
}
