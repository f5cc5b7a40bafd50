// Package repositories implements the data access layer (repository pattern) for orgdesk.
// Each repository type encapsulates all database queries for a domain entity.
// Services never issue SQL directly — all database access goes through this layer,
// which makes query logic testable in isolation and prevents accidental
// cross-domain data access.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orgdesk/orgdesk/internal/db/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, name, email_verified, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.EmailVerified,
		user.Image,
		user.CreatedAt,
		user.UpdatedAt,
	)

	return err
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, email, name, email_verified, image, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user := &models.User{}
	err := r.db.GetContext(ctx, user, query, userID)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive)
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, name, email_verified, image, created_at, updated_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`

	user := &models.User{}
	err := r.db.GetContext(ctx, user, query, email)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

// Update persists the user's mutable fields and refreshes updated_at
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET email = $2, name = $3, email_verified = $4, image = $5, updated_at = $6
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.EmailVerified,
		user.Image,
		user.UpdatedAt,
	)

	return err
}

// ListNotInOrganization retrieves all users who are not members of the given
// organization, ordered by name ascending. These are the candidates for an
// invitation.
func (r *UserRepository) ListNotInOrganization(ctx context.Context, orgID string) ([]models.UserSummary, error) {
	query := `
		SELECT u.id, u.name, u.email, u.image, u.email_verified, u.created_at
		FROM users u
		WHERE NOT EXISTS (
			SELECT 1 FROM members m
			WHERE m.user_id = u.id AND m.organization_id = $1
		)
		ORDER BY u.name ASC
	`

	users := make([]models.UserSummary, 0)
	if err := r.db.SelectContext(ctx, &users, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list invitable users: %w", err)
	}

	return users, nil
}

// ListWithCounts retrieves every user with membership and session counts,
// ordered by creation date descending
func (r *UserRepository) ListWithCounts(ctx context.Context) ([]models.UserWithCounts, error) {
	query := `
		SELECT u.id, u.email, u.name, u.email_verified, u.image, u.created_at, u.updated_at,
		       (SELECT COUNT(*) FROM members m WHERE m.user_id = u.id) AS member_count,
		       (SELECT COUNT(*) FROM sessions s WHERE s.user_id = u.id) AS session_count
		FROM users u
		ORDER BY u.created_at DESC
	`

	users := make([]models.UserWithCounts, 0)
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// EmailInUse reports whether any user other than excludeUserID has the given
// email. This is an advisory check; the unique index on LOWER(email) is the
// source of truth.
func (r *UserRepository) EmailInUse(ctx context.Context, email, excludeUserID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE LOWER(email) = LOWER($1) AND ($2 = '' OR id != $2)
		)
	`

	var inUse bool
	if err := r.db.GetContext(ctx, &inUse, query, email, excludeUserID); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}

	return inUse, nil
}

// CountAll returns the total number of users
func (r *UserRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// CountVerified returns the number of users with a verified email
func (r *UserRepository) CountVerified(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users WHERE email_verified`)
	if err != nil {
		return 0, fmt.Errorf("failed to count verified users: %w", err)
	}
	return count, nil
}

// CountWithMemberships returns the number of users belonging to at least one organization
func (r *UserRepository) CountWithMemberships(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM users u WHERE EXISTS (SELECT 1 FROM members m WHERE m.user_id = u.id)`
	err := r.db.GetContext(ctx, &count, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count users with memberships: %w", err)
	}
	return count, nil
}

// CountCreatedSince returns the number of users created at or after the given time
func (r *UserRepository) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users WHERE created_at >= $1`, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent users: %w", err)
	}
	return count, nil
}
