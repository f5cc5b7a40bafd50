// organizations.go implements the organization access module: CRUD with role
// gates, slug availability, invitations, and aggregate statistics.
package services

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/orgdesk/orgdesk/internal/cache"
	"github.com/orgdesk/orgdesk/internal/db/models"
	"github.com/orgdesk/orgdesk/internal/db/repositories"
	"github.com/orgdesk/orgdesk/internal/telemetry"
)

// invitationTTL is how long an invitation stays acceptable.
const invitationTTL = 48 * time.Hour

// OrganizationService exposes the organization access operations
type OrganizationService struct {
	orgs        *repositories.OrganizationRepository
	members     *repositories.MemberRepository
	invitations *repositories.InvitationRepository
	dashboard   *cache.DashboardCache
}

// NewOrganizationService creates an organization service bound to the given
// database. The dashboard cache may be a disabled no-op instance.
func NewOrganizationService(db *sqlx.DB, dashboard *cache.DashboardCache) *OrganizationService {
	return &OrganizationService{
		orgs:        repositories.NewOrganizationRepository(db),
		members:     repositories.NewMemberRepository(db),
		invitations: repositories.NewInvitationRepository(db),
		dashboard:   dashboard,
	}
}

// ListOrganizations returns the caller's organizations, newest first, each
// expanded with members and counts.
func (s *OrganizationService) ListOrganizations(ctx context.Context, identity *Identity) ([]models.OrganizationDetail, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}

	orgs, err := s.orgs.ListForUser(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}

	details := make([]models.OrganizationDetail, 0, len(orgs))
	for _, org := range orgs {
		detail := models.OrganizationDetail{Organization: org}

		detail.Members, err = s.members.ListByOrganization(ctx, org.ID)
		if err != nil {
			return nil, err
		}

		detail.MemberCount, detail.InvitationCount, err = s.orgs.Counts(ctx, org.ID)
		if err != nil {
			return nil, err
		}

		detail.Invitations = make([]models.InvitationWithUser, 0)
		details = append(details, detail)
	}

	return details, nil
}

// ActiveOrganization returns the fully expanded organization of the user's
// earliest membership, or ErrNotFound if the user belongs to none.
func (s *OrganizationService) ActiveOrganization(ctx context.Context, userID string) (*models.OrganizationDetail, error) {
	membership, err := s.members.FirstForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, ErrNotFound
	}

	return s.expandOrganization(ctx, &membership.Organization, true)
}

// GetOrganizationBySlug returns one organization expanded with members and
// only its pending invitations.
func (s *OrganizationService) GetOrganizationBySlug(ctx context.Context, slug string) (*models.OrganizationDetail, error) {
	org, err := s.orgs.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrNotFound
	}

	return s.expandOrganization(ctx, org, true)
}

// GetOrganizationByID returns one organization expanded with members and all
// of its invitations regardless of status.
func (s *OrganizationService) GetOrganizationByID(ctx context.Context, id string) (*models.OrganizationDetail, error) {
	org, err := s.orgs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrNotFound
	}

	return s.expandOrganization(ctx, org, false)
}

// CreateOrganizationInput carries the fields of a new organization
type CreateOrganizationInput struct {
	Name     string  `json:"name" binding:"required"`
	Slug     *string `json:"slug"`
	Logo     *string `json:"logo"`
	Metadata *string `json:"metadata"`
}

// CreateOrganization creates an organization and its owner membership for the
// caller in one transaction, then fires the dashboard invalidation signal.
// A taken slug returns ErrConflict whether it is caught by the advisory
// pre-check or by the unique index.
func (s *OrganizationService) CreateOrganization(ctx context.Context, identity *Identity, input CreateOrganizationInput) (*models.OrganizationDetail, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}

	if input.Slug != nil && *input.Slug != "" {
		taken, err := s.orgs.SlugExists(ctx, *input.Slug, "")
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrConflict
		}
	}

	org := &models.Organization{
		Name:     input.Name,
		Slug:     input.Slug,
		Logo:     input.Logo,
		Metadata: input.Metadata,
	}
	if _, err := s.orgs.CreateWithOwner(ctx, org, identity.UserID); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	telemetry.OrganizationMutationsTotal.WithLabelValues("create").Inc()
	s.dashboard.Invalidate()

	return s.expandOrganization(ctx, org, true)
}

// UpdateOrganizationInput carries the partial fields of an organization
// update; nil fields are left unchanged.
type UpdateOrganizationInput struct {
	Name     *string `json:"name"`
	Slug     *string `json:"slug"`
	Logo     *string `json:"logo"`
	Metadata *string `json:"metadata"`
}

// UpdateOrganization applies a partial update, gated on the caller holding an
// owner or admin membership. A slug change that collides with another
// organization returns ErrConflict.
func (s *OrganizationService) UpdateOrganization(ctx context.Context, identity *Identity, orgID string, input UpdateOrganizationInput) (*models.OrganizationDetail, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrNotFound
	}

	member, err := s.members.GetByOrgAndUser(ctx, orgID, identity.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.CanManage() {
		return nil, ErrPermissionDenied
	}

	if input.Slug != nil && *input.Slug != "" {
		taken, err := s.orgs.SlugExists(ctx, *input.Slug, orgID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrConflict
		}
		org.Slug = input.Slug
	}
	if input.Name != nil {
		org.Name = *input.Name
	}
	if input.Logo != nil {
		org.Logo = input.Logo
	}
	if input.Metadata != nil {
		org.Metadata = input.Metadata
	}

	if err := s.orgs.Update(ctx, org); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	telemetry.OrganizationMutationsTotal.WithLabelValues("update").Inc()
	s.dashboard.Invalidate()

	return s.expandOrganization(ctx, org, true)
}

// DeleteOrganization deletes an organization and, via cascade, its members
// and invitations. Only a membership with role owner passes the gate; admins
// get ErrPermissionDenied like everyone else.
func (s *OrganizationService) DeleteOrganization(ctx context.Context, identity *Identity, orgID string) error {
	if identity == nil {
		return ErrUnauthenticated
	}

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return err
	}
	if org == nil {
		return ErrNotFound
	}

	member, err := s.members.GetByOrgAndUser(ctx, orgID, identity.UserID)
	if err != nil {
		return err
	}
	if member == nil || !member.IsOwner() {
		return ErrPermissionDenied
	}

	deleted, err := s.orgs.Delete(ctx, orgID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	telemetry.OrganizationMutationsTotal.WithLabelValues("delete").Inc()
	s.dashboard.Invalidate()

	return nil
}

// SlugAvailable reports whether a slug is free, optionally ignoring one
// organization's own slug (for rename forms).
func (s *OrganizationService) SlugAvailable(ctx context.Context, slug, excludeOrgID string) (bool, error) {
	taken, err := s.orgs.SlugExists(ctx, slug, excludeOrgID)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// OrganizationStats is the aggregate view over the caller's organizations
type OrganizationStats struct {
	TotalOrganizations int            `json:"total_organizations"`
	TotalMembers       int            `json:"total_members"`
	TotalInvitations   int            `json:"total_invitations"`
	AverageMembers     int            `json:"average_members"`
	RoleDistribution   map[string]int `json:"role_distribution"`
}

// OrganizationStats aggregates counts over every organization the caller is a
// member of. Per-organization counts run concurrently; the role distribution
// is one grouped query over the same organization set. Results are served
// from the dashboard cache when present; any mutation bumps the cache
// generation and orphans the cached copy.
func (s *OrganizationService) OrganizationStats(ctx context.Context, identity *Identity) (*OrganizationStats, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}

	var cached OrganizationStats
	if s.dashboard.Get(ctx, identity.UserID, &cached) {
		return &cached, nil
	}

	orgs, err := s.orgs.ListForUser(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}

	stats := &OrganizationStats{
		TotalOrganizations: len(orgs),
		RoleDistribution:   make(map[string]int),
	}

	orgIDs := make([]string, len(orgs))
	memberCounts := make([]int, len(orgs))
	invitationCounts := make([]int, len(orgs))

	g, gctx := errgroup.WithContext(ctx)
	for i, org := range orgs {
		i, org := i, org
		orgIDs[i] = org.ID
		g.Go(func() error {
			var err error
			memberCounts[i], invitationCounts[i], err = s.orgs.Counts(gctx, org.ID)
			return err
		})
	}
	g.Go(func() error {
		var err error
		stats.RoleDistribution, err = s.orgs.RoleDistribution(gctx, orgIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range orgs {
		stats.TotalMembers += memberCounts[i]
		stats.TotalInvitations += invitationCounts[i]
	}
	if stats.TotalOrganizations > 0 {
		stats.AverageMembers = int(math.Round(float64(stats.TotalMembers) / float64(stats.TotalOrganizations)))
	}

	if err := s.dashboard.Set(ctx, identity.UserID, stats); err != nil {
		slog.Warn("dashboard cache store failed", "error", err)
	}

	return stats, nil
}

// CreateInvitation offers membership to an email address. The caller must
// hold an owner or admin membership. Duplicate invitations for the same
// (organization, email) pair are not rejected.
func (s *OrganizationService) CreateInvitation(ctx context.Context, identity *Identity, orgID, email, role string) (*models.Invitation, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrNotFound
	}

	member, err := s.members.GetByOrgAndUser(ctx, orgID, identity.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.CanManage() {
		return nil, ErrPermissionDenied
	}

	if role == "" {
		role = models.RoleMember
	}

	inviterID := identity.UserID
	inv := &models.Invitation{
		OrganizationID: orgID,
		Email:          strings.TrimSpace(strings.ToLower(email)),
		Role:           role,
		ExpiresAt:      time.Now().Add(invitationTTL),
		InviterID:      &inviterID,
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, err
	}

	telemetry.InvitationsTotal.WithLabelValues("created").Inc()
	return inv, nil
}

// AcceptInvitation turns a pending, unexpired invitation addressed to the
// caller's email into a membership and marks the invitation accepted. An
// expired invitation is moved to the expired status and reported as a
// conflict; an invitation for someone else's email is a permission error.
func (s *OrganizationService) AcceptInvitation(ctx context.Context, identity *Identity, invitationID string) (*models.Member, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}

	inv, err := s.invitations.GetByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrNotFound
	}

	if inv.Status != models.InvitationPending {
		return nil, ErrConflict
	}
	if inv.IsExpired(time.Now()) {
		if err := s.invitations.UpdateStatus(ctx, inv.ID, models.InvitationExpired); err != nil {
			return nil, err
		}
		telemetry.InvitationsTotal.WithLabelValues("expired").Inc()
		return nil, ErrConflict
	}
	if !strings.EqualFold(inv.Email, identity.Email) {
		return nil, ErrPermissionDenied
	}

	member := &models.Member{
		OrganizationID: inv.OrganizationID,
		UserID:         identity.UserID,
		Role:           inv.Role,
	}
	if err := s.members.Create(ctx, member); err != nil {
		if repositories.IsUniqueViolation(err) {
			// Already a member; the invitation is spent either way.
			return nil, ErrConflict
		}
		return nil, err
	}

	if err := s.invitations.UpdateStatus(ctx, inv.ID, models.InvitationAccepted); err != nil {
		return nil, err
	}

	telemetry.InvitationsTotal.WithLabelValues("accepted").Inc()
	s.dashboard.Invalidate()
	return member, nil
}

// expandOrganization builds the detail view: members ascending by join date,
// invitations (pending only or all), and counts.
func (s *OrganizationService) expandOrganization(ctx context.Context, org *models.Organization, pendingOnly bool) (*models.OrganizationDetail, error) {
	detail := &models.OrganizationDetail{Organization: *org}

	members, err := s.members.ListByOrganization(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	detail.Members = members

	if pendingOnly {
		detail.Invitations, err = s.invitations.ListPendingByOrganization(ctx, org.ID)
	} else {
		detail.Invitations, err = s.invitations.ListByOrganization(ctx, org.ID)
	}
	if err != nil {
		return nil, err
	}

	detail.MemberCount, detail.InvitationCount, err = s.orgs.Counts(ctx, org.ID)
	if err != nil {
		return nil, err
	}

	return detail, nil
}
