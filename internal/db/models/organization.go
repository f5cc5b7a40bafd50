// Package models - organization.go defines the Organization model representing a tenant
// workspace with an optional URL-safe slug, plus the expanded views served to clients.
package models

import "time"

// Organization represents a tenant workspace grouping users via memberships
type Organization struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      *string   `db:"slug" json:"slug"`
	Logo      *string   `db:"logo" json:"logo"`
	Metadata  *string   `db:"metadata" json:"metadata"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OrganizationDetail is an organization expanded with its members, invitations,
// and counts. Members are ordered by join date ascending; which invitations are
// included (pending only, or all) depends on the query that produced it.
type OrganizationDetail struct {
	Organization
	Members         []MemberWithUser     `json:"members"`
	Invitations     []InvitationWithUser `json:"invitations"`
	MemberCount     int                  `json:"member_count"`
	InvitationCount int                  `json:"invitation_count"`
}
