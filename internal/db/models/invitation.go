// Package models - invitation.go defines pending offers of membership to an email
// address. An invitation is not a membership until accepted.
package models

import "time"

// Invitation statuses. Only pending invitations are actionable; the rest are
// terminal.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
	InvitationExpired  = "expired"
)

// Invitation represents a pending offer of membership to an email address
type Invitation struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Email          string    `db:"email" json:"email"`
	Role           string    `db:"role" json:"role"`
	Status         string    `db:"status" json:"status"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
	InviterID      *string   `db:"inviter_id" json:"inviter_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// IsExpired returns true if the invitation's deadline has passed at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// InvitationWithUser includes the invitee's user projection when the invited
// email already belongs to an account; User is nil otherwise.
type InvitationWithUser struct {
	Invitation
	User *UserSummary `json:"user"`
}
