package services

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/orgdesk/orgdesk/internal/cache"
	"github.com/orgdesk/orgdesk/internal/config"
	"github.com/orgdesk/orgdesk/internal/db/models"
)

var orgCols = []string{"id", "name", "slug", "logo", "metadata", "created_at"}
var memberCols = []string{"id", "organization_id", "user_id", "role", "created_at"}
var memberWithUserCols = []string{
	"id", "organization_id", "user_id", "role", "created_at",
	"user.id", "user.name", "user.email", "user.image", "user.email_verified", "user.created_at",
}
var invitationCols = []string{"id", "organization_id", "email", "role", "status", "expires_at", "inviter_id", "created_at"}
var invitationWithUserCols = []string{
	"id", "organization_id", "email", "role", "status", "expires_at", "inviter_id", "created_at",
	"user_id", "user_name", "user_email", "user_image", "user_email_verified", "user_created_at",
}

func newOrgService(t *testing.T) (*OrganizationService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewOrganizationService(db, cache.New(&config.RedisConfig{})), mock
}

func sampleOrgRows() *sqlmock.Rows {
	return sqlmock.NewRows(orgCols).
		AddRow("org-1", "Acme", "acme", nil, nil, time.Now())
}

func memberRow(role string) *sqlmock.Rows {
	return sqlmock.NewRows(memberCols).
		AddRow("mem-1", "org-1", "user-1", role, time.Now())
}

// expectExpansion queues the member list, invitation list, and counts queries
// that follow every detail lookup. The organization ID is left unconstrained
// because creates generate it.
func expectExpansion(mock sqlmock.Sqlmock, pendingOnly bool) {
	mock.ExpectQuery("SELECT.*FROM members.*JOIN users").
		WillReturnRows(sqlmock.NewRows(memberWithUserCols).
			AddRow("mem-1", "org-1", "user-1", "owner", time.Now(),
				"user-1", "Alice", "alice@example.com", nil, true, time.Now()))
	mock.ExpectQuery("SELECT.*FROM invitations.*LEFT JOIN users").
		WithArgs(sqlmock.AnyArg(), pendingOnly).
		WillReturnRows(sqlmock.NewRows(invitationWithUserCols))
	mock.ExpectQuery(`SELECT.*COUNT.*FROM members.*FROM invitations`).
		WillReturnRows(sqlmock.NewRows([]string{"members", "invitations"}).AddRow(1, 0))
}

// ---------------------------------------------------------------------------
// ListOrganizations / ActiveOrganization / lookups
// ---------------------------------------------------------------------------

func TestListOrganizations_NilIdentity(t *testing.T) {
	svc, _ := newOrgService(t)

	_, err := svc.ListOrganizations(context.Background(), nil)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestListOrganizations(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*JOIN members").
		WithArgs("user-1").
		WillReturnRows(sampleOrgRows())
	mock.ExpectQuery("SELECT.*FROM members.*JOIN users").
		WillReturnRows(sqlmock.NewRows(memberWithUserCols).
			AddRow("mem-1", "org-1", "user-1", "owner", time.Now(),
				"user-1", "Alice", "alice@example.com", nil, true, time.Now()))
	mock.ExpectQuery(`SELECT.*COUNT.*FROM members.*FROM invitations`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"members", "invitations"}).AddRow(1, 2))

	details, err := svc.ListOrganizations(context.Background(), &Identity{UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(details) != 1 {
		t.Fatalf("len(details) = %d, want 1", len(details))
	}
	if details[0].MemberCount != 1 || details[0].InvitationCount != 2 {
		t.Errorf("counts = (%d, %d), want (1, 2)", details[0].MemberCount, details[0].InvitationCount)
	}
	if details[0].Invitations == nil {
		t.Error("Invitations should be an empty slice, not nil")
	}
}

func TestActiveOrganization_NoMembership(t *testing.T) {
	svc, mock := newOrgService(t)
	mock.ExpectQuery("SELECT.*FROM members.*LIMIT 1").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(membershipWithOrgCols))

	_, err := svc.ActiveOrganization(context.Background(), "user-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetOrganizationBySlug_PendingInvitationsOnly(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE slug").
		WithArgs("acme").
		WillReturnRows(sampleOrgRows())
	expectExpansion(mock, true)

	detail, err := svc.GetOrganizationBySlug(context.Background(), "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Name != "Acme" {
		t.Errorf("Name = %s, want Acme", detail.Name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetOrganizationByID_AllInvitations(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WithArgs("org-1").
		WillReturnRows(sampleOrgRows())
	expectExpansion(mock, false)

	if _, err := svc.GetOrganizationByID(context.Background(), "org-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetOrganizationBySlug_NotFound(t *testing.T) {
	svc, mock := newOrgService(t)
	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE slug").
		WillReturnRows(sqlmock.NewRows(orgCols))

	_, err := svc.GetOrganizationBySlug(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// CreateOrganization
// ---------------------------------------------------------------------------

func TestCreateOrganization_SlugTaken(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("acme", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := svc.CreateOrganization(context.Background(), &Identity{UserID: "user-1"},
		CreateOrganizationInput{Name: "Acme", Slug: strPtr("acme")})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
	// Nothing was inserted.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateOrganization_UniqueViolation(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO organizations").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := svc.CreateOrganization(context.Background(), &Identity{UserID: "user-1"},
		CreateOrganizationInput{Name: "Acme", Slug: strPtr("acme")})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestCreateOrganization_Success(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO organizations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO members").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectExpansion(mock, true)

	detail, err := svc.CreateOrganization(context.Background(), &Identity{UserID: "user-1"},
		CreateOrganizationInput{Name: "Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Name != "Acme" {
		t.Errorf("Name = %s, want Acme", detail.Name)
	}
	if detail.ID == "" {
		t.Error("expected generated organization ID")
	}
}

func TestCreateOrganization_NilIdentity(t *testing.T) {
	svc, _ := newOrgService(t)

	_, err := svc.CreateOrganization(context.Background(), nil, CreateOrganizationInput{Name: "Acme"})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

// ---------------------------------------------------------------------------
// UpdateOrganization
// ---------------------------------------------------------------------------

func TestUpdateOrganization_NonMember(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sampleOrgRows())
	mock.ExpectQuery("SELECT.*FROM members.*WHERE organization_id").
		WithArgs("org-1", "outsider").
		WillReturnRows(sqlmock.NewRows(memberCols))

	_, err := svc.UpdateOrganization(context.Background(), &Identity{UserID: "outsider"}, "org-1",
		UpdateOrganizationInput{Name: strPtr("Evil Corp")})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestUpdateOrganization_MemberRoleDenied(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sampleOrgRows())
	mock.ExpectQuery("SELECT.*FROM members.*WHERE organization_id").
		WillReturnRows(memberRow(models.RoleMember))

	_, err := svc.UpdateOrganization(context.Background(), &Identity{UserID: "user-1"}, "org-1",
		UpdateOrganizationInput{Name: strPtr("Renamed")})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestUpdateOrganization_AdminSucceeds(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sampleOrgRows())
	mock.ExpectQuery("SELECT.*FROM members.*WHERE organization_id").
		WillReturnRows(memberRow(models.RoleAdmin))
	mock.ExpectExec("UPDATE organizations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectExpansion(mock, true)

	detail, err := svc.UpdateOrganization(context.Background(), &Identity{UserID: "user-1"}, "org-1",
		UpdateOrganizationInput{Name: strPtr("Acme Renamed")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Name != "Acme Renamed" {
		t.Errorf("Name = %s, want Acme Renamed", detail.Name)
	}
}

func TestUpdateOrganization_SlugCollision(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sampleOrgRows())
	mock.ExpectQuery("SELECT.*FROM members.*WHERE organization_id").
		WillReturnRows(memberRow(models.RoleOwner))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("taken", "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := svc.UpdateOrganization(context.Background(), &Identity{UserID: "user-1"}, "org-1",
		UpdateOrganizationInput{Slug: strPtr("taken")})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

// ---------------------------------------------------------------------------
// DeleteOrganization
// ---------------------------------------------------------------------------

func TestDeleteOrganization_OwnerSucceeds(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sampleOrgRows())
	mock.ExpectQuery("SELECT.*FROM members.*WHERE organization_id").
		WillReturnRows(memberRow(models.RoleOwner))
	mock.ExpectExec("DELETE FROM organizations").
		WithArgs("org-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.DeleteOrganization(context.Background(), &Identity{UserID: "user-1"}, "org-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteOrganization_AdminDenied(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sampleOrgRows())
	mock.ExpectQuery("SELECT.*FROM members.*WHERE organization_id").
		WillReturnRows(memberRow(models.RoleAdmin))

	err := svc.DeleteOrganization(context.Background(), &Identity{UserID: "user-1"}, "org-1")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
	// No DELETE was issued; the organization survives.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeleteOrganization_NotFound(t *testing.T) {
	svc, mock := newOrgService(t)
	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sqlmock.NewRows(orgCols))

	err := svc.DeleteOrganization(context.Background(), &Identity{UserID: "user-1"}, "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// SlugAvailable
// ---------------------------------------------------------------------------

func TestSlugAvailable(t *testing.T) {
	svc, mock := newOrgService(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("fresh", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	available, err := svc.SlugAvailable(context.Background(), "fresh", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !available {
		t.Error("available = false, want true")
	}
}

func TestSlugAvailable_Taken(t *testing.T) {
	svc, mock := newOrgService(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("acme", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	available, err := svc.SlugAvailable(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if available {
		t.Error("available = true, want false")
	}
}

// ---------------------------------------------------------------------------
// OrganizationStats
// ---------------------------------------------------------------------------

func TestOrganizationStats_NoOrganizations(t *testing.T) {
	svc, mock := newOrgService(t)
	mock.ExpectQuery("SELECT.*FROM organizations.*JOIN members").
		WillReturnRows(sqlmock.NewRows(orgCols))

	stats, err := svc.OrganizationStats(context.Background(), &Identity{UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalOrganizations != 0 || stats.TotalMembers != 0 || stats.AverageMembers != 0 {
		t.Errorf("stats = %+v, want all zero", stats)
	}
	if stats.RoleDistribution == nil || len(stats.RoleDistribution) != 0 {
		t.Errorf("RoleDistribution = %v, want empty map", stats.RoleDistribution)
	}
}

func TestOrganizationStats_SingleOrganization(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*JOIN members").
		WillReturnRows(sampleOrgRows())
	// The counts and role distribution run concurrently.
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery(`SELECT.*COUNT.*FROM members.*FROM invitations`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"members", "invitations"}).AddRow(3, 2))
	mock.ExpectQuery("SELECT role, COUNT.*GROUP BY role").
		WillReturnRows(sqlmock.NewRows([]string{"role", "count"}).
			AddRow("owner", 1).
			AddRow("member", 2))

	stats, err := svc.OrganizationStats(context.Background(), &Identity{UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalOrganizations != 1 || stats.TotalMembers != 3 || stats.TotalInvitations != 2 {
		t.Errorf("stats = %+v, want 1 org, 3 members, 2 invitations", stats)
	}
	if stats.AverageMembers != 3 {
		t.Errorf("AverageMembers = %d, want 3", stats.AverageMembers)
	}
	if stats.RoleDistribution["member"] != 2 {
		t.Errorf("RoleDistribution[member] = %d, want 2", stats.RoleDistribution["member"])
	}
}

// ---------------------------------------------------------------------------
// Invitations
// ---------------------------------------------------------------------------

func TestCreateInvitation_DefaultsToMemberRole(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sampleOrgRows())
	mock.ExpectQuery("SELECT.*FROM members.*WHERE organization_id").
		WillReturnRows(memberRow(models.RoleOwner))
	mock.ExpectExec("INSERT INTO invitations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	inv, err := svc.CreateInvitation(context.Background(), &Identity{UserID: "user-1"},
		"org-1", "Bob@Example.com ", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Role != models.RoleMember {
		t.Errorf("Role = %s, want member", inv.Role)
	}
	if inv.Email != "bob@example.com" {
		t.Errorf("Email = %s, want bob@example.com", inv.Email)
	}
	if inv.Status != models.InvitationPending {
		t.Errorf("Status = %s, want pending", inv.Status)
	}
	if inv.InviterID == nil || *inv.InviterID != "user-1" {
		t.Errorf("InviterID = %v, want user-1", inv.InviterID)
	}
}

func TestCreateInvitation_MemberRoleDenied(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sampleOrgRows())
	mock.ExpectQuery("SELECT.*FROM members.*WHERE organization_id").
		WillReturnRows(memberRow(models.RoleMember))

	_, err := svc.CreateInvitation(context.Background(), &Identity{UserID: "user-1"},
		"org-1", "bob@example.com", "")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}

func pendingInvitationRow(email string, expiresAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(invitationCols).
		AddRow("inv-1", "org-1", email, "member", "pending", expiresAt, "user-1", time.Now())
}

func TestAcceptInvitation_Success(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE id").
		WithArgs("inv-1").
		WillReturnRows(pendingInvitationRow("bob@example.com", time.Now().Add(time.Hour)))
	mock.ExpectExec("INSERT INTO members").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE invitations").
		WithArgs("inv-1", "accepted").
		WillReturnResult(sqlmock.NewResult(0, 1))

	member, err := svc.AcceptInvitation(context.Background(),
		&Identity{UserID: "user-2", Email: "Bob@Example.com"}, "inv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if member.Role != models.RoleMember {
		t.Errorf("Role = %s, want member", member.Role)
	}
	if member.UserID != "user-2" {
		t.Errorf("UserID = %s, want user-2", member.UserID)
	}
}

func TestAcceptInvitation_Expired(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE id").
		WillReturnRows(pendingInvitationRow("bob@example.com", time.Now().Add(-time.Hour)))
	mock.ExpectExec("UPDATE invitations").
		WithArgs("inv-1", "expired").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.AcceptInvitation(context.Background(),
		&Identity{UserID: "user-2", Email: "bob@example.com"}, "inv-1")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAcceptInvitation_WrongEmail(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE id").
		WillReturnRows(pendingInvitationRow("bob@example.com", time.Now().Add(time.Hour)))

	_, err := svc.AcceptInvitation(context.Background(),
		&Identity{UserID: "user-3", Email: "mallory@example.com"}, "inv-1")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestAcceptInvitation_AlreadyAccepted(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE id").
		WillReturnRows(sqlmock.NewRows(invitationCols).
			AddRow("inv-1", "org-1", "bob@example.com", "member", "accepted",
				time.Now().Add(time.Hour), "user-1", time.Now()))

	_, err := svc.AcceptInvitation(context.Background(),
		&Identity{UserID: "user-2", Email: "bob@example.com"}, "inv-1")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestAcceptInvitation_AlreadyMember(t *testing.T) {
	svc, mock := newOrgService(t)

	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE id").
		WillReturnRows(pendingInvitationRow("bob@example.com", time.Now().Add(time.Hour)))
	mock.ExpectExec("INSERT INTO members").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := svc.AcceptInvitation(context.Background(),
		&Identity{UserID: "user-2", Email: "bob@example.com"}, "inv-1")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestAcceptInvitation_NotFound(t *testing.T) {
	svc, mock := newOrgService(t)
	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE id").
		WillReturnRows(sqlmock.NewRows(invitationCols))

	_, err := svc.AcceptInvitation(context.Background(),
		&Identity{UserID: "user-2", Email: "bob@example.com"}, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
