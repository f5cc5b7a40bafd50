// verification_repository.go implements VerificationRepository for short-lived
// password reset tokens. Only a bcrypt hash of the token secret is stored.
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

// VerificationRepository handles database operations for verification tokens
type VerificationRepository struct {
	db *sqlx.DB
}

// NewVerificationRepository creates a new verification repository
func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Create inserts a verification row
func (r *VerificationRepository) Create(ctx context.Context, v *models.Verification) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now()

	query := `
		INSERT INTO verifications (id, identifier, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		v.ID,
		v.Identifier,
		v.TokenHash,
		v.ExpiresAt,
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create verification: %w", err)
	}

	return nil
}

// GetByID retrieves a verification by ID
func (r *VerificationRepository) GetByID(ctx context.Context, id string) (*models.Verification, error) {
	query := `
		SELECT id, identifier, token_hash, expires_at, created_at
		FROM verifications
		WHERE id = $1
	`

	v := &models.Verification{}
	err := r.db.GetContext(ctx, v, query, id)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get verification: %w", err)
	}

	return v, nil
}

// Delete removes a verification after use
func (r *VerificationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM verifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete verification: %w", err)
	}
	return nil
}

// DeleteByIdentifier removes all outstanding tokens for an identifier. Issuing
// a new reset invalidates earlier ones.
func (r *VerificationRepository) DeleteByIdentifier(ctx context.Context, identifier string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM verifications WHERE identifier = $1`, identifier)
	if err != nil {
		return fmt.Errorf("failed to delete verifications: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens past their expiry
func (r *VerificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM verifications WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verifications: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}
