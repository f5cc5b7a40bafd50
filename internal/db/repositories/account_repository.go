// account_repository.go implements AccountRepository for linked sign-in
// methods. The "credential" provider row carries the bcrypt password hash;
// OIDC rows carry the provider account pair instead.
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

// AccountRepository handles database operations for accounts
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts an account row
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	account.CreatedAt = time.Now()

	query := `
		INSERT INTO accounts (id, user_id, provider_id, provider_account_id, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.UserID,
		account.ProviderID,
		account.ProviderAccountID,
		account.PasswordHash,
		account.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetCredential retrieves the password-based account for a user, if any
func (r *AccountRepository) GetCredential(ctx context.Context, userID string) (*models.Account, error) {
	query := `
		SELECT id, user_id, provider_id, provider_account_id, password_hash, created_at
		FROM accounts
		WHERE user_id = $1 AND provider_id = $2
	`

	account := &models.Account{}
	err := r.db.GetContext(ctx, account, query, userID, models.ProviderCredential)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get credential account: %w", err)
	}

	return account, nil
}

// GetByProviderAccount retrieves an account by its external identity
func (r *AccountRepository) GetByProviderAccount(ctx context.Context, providerID, providerAccountID string) (*models.Account, error) {
	query := `
		SELECT id, user_id, provider_id, provider_account_id, password_hash, created_at
		FROM accounts
		WHERE provider_id = $1 AND provider_account_id = $2
	`

	account := &models.Account{}
	err := r.db.GetContext(ctx, account, query, providerID, providerAccountID)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get account by provider: %w", err)
	}

	return account, nil
}

// ListByUser retrieves all linked sign-in methods for a user
func (r *AccountRepository) ListByUser(ctx context.Context, userID string) ([]models.AccountSummary, error) {
	query := `
		SELECT id, provider_id, created_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	accounts := make([]models.AccountSummary, 0)
	err := r.db.SelectContext(ctx, &accounts, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return accounts, nil
}

// UpdatePasswordHash replaces the stored hash on a credential account
func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $2 WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, accountID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}

	return nil
}
