package models

import "time"

// Verification is a one-shot password-reset token. Only the bcrypt hash of the
// token secret is stored; the raw secret is delivered to the user out of band
// and compared on redemption.
type Verification struct {
	ID         string    `db:"id" json:"id"`
	Identifier string    `db:"identifier" json:"identifier"`
	TokenHash  string    `db:"token_hash" json:"-"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
