// Package models - user.go defines the User model for orgdesk accounts with email,
// display name, and verification state, along with the projections exposed to the API.
package models

import "time"

// User represents a user account
type User struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	Name          string    `db:"name" json:"name"`
	EmailVerified bool      `db:"email_verified" json:"email_verified"`
	Image         *string   `db:"image" json:"image"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// UserSummary is the limited user projection embedded in member lists and
// invitation lists, and returned by the invitable-users query.
type UserSummary struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Email         string    `db:"email" json:"email"`
	Image         *string   `db:"image" json:"image"`
	EmailVerified bool      `db:"email_verified" json:"email_verified"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// UserWithCounts includes membership and session counts for admin listings
type UserWithCounts struct {
	User
	MemberCount  int `db:"member_count" json:"member_count"`
	SessionCount int `db:"session_count" json:"session_count"`
}

// UserDetail is the fully expanded user view: memberships with their
// organizations, linked account projections, and the most recent sessions.
type UserDetail struct {
	User
	Memberships    []MembershipWithOrganization `json:"memberships"`
	Accounts       []AccountSummary             `json:"accounts"`
	RecentSessions []SessionSummary             `json:"recent_sessions"`
}
