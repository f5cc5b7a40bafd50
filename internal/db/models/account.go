package models

import "time"

// ProviderCredential is the provider_id used for email/password accounts; the
// bcrypt hash lives on the account row. External providers (OIDC) store the
// provider's subject identifier instead and have no password hash.
const ProviderCredential = "credential"

// Account represents a linked authentication method for a user
type Account struct {
	ID                string    `db:"id" json:"id"`
	UserID            string    `db:"user_id" json:"user_id"`
	ProviderID        string    `db:"provider_id" json:"provider_id"`
	ProviderAccountID string    `db:"provider_account_id" json:"provider_account_id"`
	PasswordHash      *string   `db:"password_hash" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// AccountSummary is the account projection returned in user detail views
type AccountSummary struct {
	ID         string    `db:"id" json:"id"`
	ProviderID string    `db:"provider_id" json:"provider_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
