// invitation_repository.go implements InvitationRepository for pending membership
// offers, including the joined view that links an invitation to an existing account.
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

// InvitationRepository handles database operations for invitations
type InvitationRepository struct {
	db *sqlx.DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *sqlx.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create adds an invitation row. Duplicate (organization, email) pairs are not
// rejected here; see DESIGN.md open questions.
func (r *InvitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.Status == "" {
		inv.Status = models.InvitationPending
	}
	inv.CreatedAt = time.Now()

	query := `
		INSERT INTO invitations (id, organization_id, email, role, status, expires_at, inviter_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		inv.ID,
		inv.OrganizationID,
		inv.Email,
		inv.Role,
		inv.Status,
		inv.ExpiresAt,
		inv.InviterID,
		inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	return nil
}

// GetByID retrieves an invitation by ID
func (r *InvitationRepository) GetByID(ctx context.Context, id string) (*models.Invitation, error) {
	query := `
		SELECT id, organization_id, email, role, status, expires_at, inviter_id, created_at
		FROM invitations
		WHERE id = $1
	`

	inv := &models.Invitation{}
	err := r.db.GetContext(ctx, inv, query, id)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return inv, nil
}

// listByOrganization retrieves invitations for an organization with the
// invitee's user projection when the invited email already has an account.
// The pendingOnly flag mirrors the two expansion shapes used by the lookups:
// slug lookups show only actionable invitations, ID lookups show all.
func (r *InvitationRepository) listByOrganization(ctx context.Context, orgID string, pendingOnly bool) ([]models.InvitationWithUser, error) {
	query := `
		SELECT i.id, i.organization_id, i.email, i.role, i.status, i.expires_at, i.inviter_id, i.created_at,
		       u.id, u.name, u.email, u.image, u.email_verified, u.created_at
		FROM invitations i
		LEFT JOIN users u ON LOWER(u.email) = LOWER(i.email)
		WHERE i.organization_id = $1 AND ($2 = FALSE OR i.status = 'pending')
		ORDER BY i.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, pendingOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := make([]models.InvitationWithUser, 0)
	for rows.Next() {
		var inv models.InvitationWithUser
		var (
			userID        sql.NullString
			userName      sql.NullString
			userEmail     sql.NullString
			userImage     sql.NullString
			userVerified  sql.NullBool
			userCreatedAt sql.NullTime
		)
		err := rows.Scan(
			&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.Status,
			&inv.ExpiresAt, &inv.InviterID, &inv.CreatedAt,
			&userID, &userName, &userEmail, &userImage, &userVerified, &userCreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		if userID.Valid {
			summary := models.UserSummary{
				ID:            userID.String,
				Name:          userName.String,
				Email:         userEmail.String,
				EmailVerified: userVerified.Bool,
				CreatedAt:     userCreatedAt.Time,
			}
			if userImage.Valid {
				summary.Image = &userImage.String
			}
			inv.User = &summary
		}
		invitations = append(invitations, inv)
	}

	return invitations, rows.Err()
}

// ListPendingByOrganization retrieves only pending invitations for an organization
func (r *InvitationRepository) ListPendingByOrganization(ctx context.Context, orgID string) ([]models.InvitationWithUser, error) {
	return r.listByOrganization(ctx, orgID, true)
}

// ListByOrganization retrieves all invitations for an organization regardless of status
func (r *InvitationRepository) ListByOrganization(ctx context.Context, orgID string) ([]models.InvitationWithUser, error) {
	return r.listByOrganization(ctx, orgID, false)
}

// UpdateStatus transitions an invitation to a new status
func (r *InvitationRepository) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE invitations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update invitation status: %w", err)
	}
	return nil
}

// CountByOrganization returns the number of invitations for an organization
func (r *InvitationRepository) CountByOrganization(ctx context.Context, orgID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM invitations WHERE organization_id = $1`, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to count invitations: %w", err)
	}
	return count, nil
}
