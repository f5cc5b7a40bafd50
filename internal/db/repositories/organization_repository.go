// organization_repository.go implements OrganizationRepository, providing database queries
// for organization CRUD, slug lookup, and per-organization aggregate counts.
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

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `
		SELECT id, name, slug, logo, metadata, created_at
		FROM organizations
		WHERE id = $1
	`

	org := &models.Organization{}
	err := r.db.GetContext(ctx, org, query, id)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

// GetBySlug retrieves an organization by its slug
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	query := `
		SELECT id, name, slug, logo, metadata, created_at
		FROM organizations
		WHERE slug = $1
	`

	org := &models.Organization{}
	err := r.db.GetContext(ctx, org, query, slug)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

// ListForUser retrieves all organizations the user is a member of, newest first
func (r *OrganizationRepository) ListForUser(ctx context.Context, userID string) ([]models.Organization, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.logo, o.metadata, o.created_at
		FROM organizations o
		INNER JOIN members m ON o.id = m.organization_id
		WHERE m.user_id = $1
		ORDER BY o.created_at DESC
	`

	orgs := make([]models.Organization, 0)
	if err := r.db.SelectContext(ctx, &orgs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user organizations: %w", err)
	}

	return orgs, nil
}

// CreateWithOwner creates the organization and its initial owner membership in
// a single transaction. Either both rows exist afterwards or neither does.
func (r *OrganizationRepository) CreateWithOwner(ctx context.Context, org *models.Organization, ownerUserID string) (*models.Member, error) {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	org.CreatedAt = time.Now()

	member := &models.Member{
		ID:             uuid.New().String(),
		OrganizationID: org.ID,
		UserID:         ownerUserID,
		Role:           models.RoleOwner,
		CreatedAt:      org.CreatedAt,
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	orgQuery := `
		INSERT INTO organizations (id, name, slug, logo, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, orgQuery,
		org.ID, org.Name, org.Slug, org.Logo, org.Metadata, org.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	memberQuery := `
		INSERT INTO members (id, organization_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, memberQuery,
		member.ID, member.OrganizationID, member.UserID, member.Role, member.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit organization creation: %w", err)
	}

	return member, nil
}

// Update persists the organization's mutable fields
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, slug = $3, logo = $4, metadata = $5
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, org.ID, org.Name, org.Slug, org.Logo, org.Metadata)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}

	return nil
}

// Delete deletes an organization. Members and invitations are removed by the
// ON DELETE CASCADE constraints. Returns true only if a row was deleted.
func (r *OrganizationRepository) Delete(ctx context.Context, orgID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, orgID)
	if err != nil {
		return false, fmt.Errorf("failed to delete organization: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}

	return affected > 0, nil
}

// SlugExists reports whether any organization other than excludeOrgID has the
// given slug. Advisory only; the partial unique index is the source of truth.
func (r *OrganizationRepository) SlugExists(ctx context.Context, slug, excludeOrgID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM organizations
			WHERE slug = $1 AND ($2 = '' OR id != $2)
		)
	`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, slug, excludeOrgID); err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}

	return exists, nil
}

// Counts returns the member and invitation counts for one organization
func (r *OrganizationRepository) Counts(ctx context.Context, orgID string) (members int, invitations int, err error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM members WHERE organization_id = $1),
			(SELECT COUNT(*) FROM invitations WHERE organization_id = $1)
	`

	err = r.db.QueryRowContext(ctx, query, orgID).Scan(&members, &invitations)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count organization members: %w", err)
	}

	return members, invitations, nil
}

// RoleDistribution returns a count per role over all memberships of the given
// organizations. An empty orgIDs slice yields an empty map without a query.
func (r *OrganizationRepository) RoleDistribution(ctx context.Context, orgIDs []string) (map[string]int, error) {
	dist := make(map[string]int)
	if len(orgIDs) == 0 {
		return dist, nil
	}

	query, args, err := sqlx.In(
		`SELECT role, COUNT(*) FROM members WHERE organization_id IN (?) GROUP BY role`,
		orgIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build role distribution query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query role distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, fmt.Errorf("failed to scan role distribution: %w", err)
		}
		dist[role] = count
	}

	return dist, rows.Err()
}
