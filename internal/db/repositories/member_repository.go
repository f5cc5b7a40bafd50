// member_repository.go implements MemberRepository, providing database queries for
// membership lookup, creation, and the joined member/organization views.
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

// MemberRepository handles database operations for organization memberships
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// GetByOrgAndUser retrieves a user's membership in an organization. This is
// the permission-check primitive: a nil result means the user is not a member.
func (r *MemberRepository) GetByOrgAndUser(ctx context.Context, orgID, userID string) (*models.Member, error) {
	query := `
		SELECT id, organization_id, user_id, role, created_at
		FROM members
		WHERE organization_id = $1 AND user_id = $2
	`

	member := &models.Member{}
	err := r.db.GetContext(ctx, member, query, orgID, userID)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// Create adds a membership row
func (r *MemberRepository) Create(ctx context.Context, member *models.Member) error {
	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO members (id, organization_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		member.ID,
		member.OrganizationID,
		member.UserID,
		member.Role,
		member.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	return nil
}

// ListByOrganization retrieves all members of an organization with their user
// projections, ordered by join date ascending
func (r *MemberRepository) ListByOrganization(ctx context.Context, orgID string) ([]models.MemberWithUser, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.created_at,
		       u.id AS "user.id", u.name AS "user.name", u.email AS "user.email",
		       u.image AS "user.image", u.email_verified AS "user.email_verified",
		       u.created_at AS "user.created_at"
		FROM members m
		INNER JOIN users u ON m.user_id = u.id
		WHERE m.organization_id = $1
		ORDER BY m.created_at ASC
	`

	members := make([]models.MemberWithUser, 0)
	if err := r.db.SelectContext(ctx, &members, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return members, nil
}

// ListByUser retrieves all memberships of a user with their organizations,
// ordered by join date ascending (earliest organization first)
func (r *MemberRepository) ListByUser(ctx context.Context, userID string) ([]models.MembershipWithOrganization, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.created_at,
		       o.id AS "organization.id", o.name AS "organization.name",
		       o.slug AS "organization.slug", o.logo AS "organization.logo",
		       o.metadata AS "organization.metadata", o.created_at AS "organization.created_at"
		FROM members m
		INNER JOIN organizations o ON m.organization_id = o.id
		WHERE m.user_id = $1
		ORDER BY m.created_at ASC
	`

	memberships := make([]models.MembershipWithOrganization, 0)
	if err := r.db.SelectContext(ctx, &memberships, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	return memberships, nil
}

// FirstForUser retrieves the user's earliest-created membership with its
// organization, or nil if the user has no memberships. This determines the
// user's active organization.
func (r *MemberRepository) FirstForUser(ctx context.Context, userID string) (*models.MembershipWithOrganization, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.created_at,
		       o.id AS "organization.id", o.name AS "organization.name",
		       o.slug AS "organization.slug", o.logo AS "organization.logo",
		       o.metadata AS "organization.metadata", o.created_at AS "organization.created_at"
		FROM members m
		INNER JOIN organizations o ON m.organization_id = o.id
		WHERE m.user_id = $1
		ORDER BY m.created_at ASC
		LIMIT 1
	`

	membership := &models.MembershipWithOrganization{}
	err := r.db.GetContext(ctx, membership, query, userID)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get first membership: %w", err)
	}

	return membership, nil
}

// CountByOrganization returns the number of members in an organization
func (r *MemberRepository) CountByOrganization(ctx context.Context, orgID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM members WHERE organization_id = $1`, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}
