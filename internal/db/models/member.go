// Package models - member.go defines the membership join entity binding a user to an
// organization with a role, and the role semantics used for permission checks.
package models

import "time"

// Membership roles. Role is a free-form string in storage; only owner and admin
// carry permission semantics.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Member represents a user's membership in an organization
type Member struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Role           string    `db:"role" json:"role"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// IsOwner returns true if this membership carries the owner role.
func (m *Member) IsOwner() bool {
	return m.Role == RoleOwner
}

// CanManage returns true if this membership may update the organization
// (owner or admin). Deletion additionally requires IsOwner.
func (m *Member) CanManage() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin
}

// MemberWithUser includes the member's user projection for display
type MemberWithUser struct {
	Member
	User UserSummary `json:"user"`
}

// MembershipWithOrganization includes the organization for a user's membership
type MembershipWithOrganization struct {
	Member
	Organization Organization `json:"organization"`
}
