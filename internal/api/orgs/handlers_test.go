package orgs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/orgdesk/orgdesk/internal/cache"
	"github.com/orgdesk/orgdesk/internal/config"
	"github.com/orgdesk/orgdesk/internal/middleware"
	"github.com/orgdesk/orgdesk/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var orgCols = []string{"id", "name", "slug", "logo", "metadata", "created_at"}
var memberCols = []string{"id", "organization_id", "user_id", "role", "created_at"}
var memberWithUserCols = []string{
	"id", "organization_id", "user_id", "role", "created_at",
	"user.id", "user.name", "user.email", "user.image", "user.email_verified", "user.created_at",
}
var invitationWithUserCols = []string{
	"id", "organization_id", "email", "role", "status", "expires_at", "inviter_id", "created_at",
	"user_id", "user_name", "user_email", "user_image", "user_email_verified", "user_created_at",
}

// newRouter builds a router with the organization routes and a stub identity
// injected the way middleware.RequireAuth would. A nil identity simulates an
// unauthenticated request slipping past the middleware.
func newRouter(t *testing.T, identity *services.Identity) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")

	h := NewHandlers(
		services.NewOrganizationService(db, cache.New(&config.RedisConfig{})),
		services.NewUserService(db),
	)

	r := gin.New()
	if identity != nil {
		r.Use(func(c *gin.Context) { c.Set(middleware.IdentityKey, identity) })
	}
	r.GET("/organizations", h.List)
	r.POST("/organizations", h.Create)
	r.GET("/organizations/active", h.Active)
	r.GET("/organizations/stats", h.Stats)
	r.GET("/organizations/slug-check/:slug", h.SlugCheck)
	r.GET("/organizations/by-slug/:slug", h.GetBySlug)
	r.GET("/organizations/:id", h.Get)
	r.PATCH("/organizations/:id", h.Update)
	r.DELETE("/organizations/:id", h.Delete)
	r.GET("/organizations/:id/invitable-users", h.InvitableUsers)
	r.POST("/organizations/:id/invitations", h.CreateInvitation)
	r.POST("/organizations/invitations/:id/accept", h.AcceptInvitation)
	return mock, r
}

func getJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return resp
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func sampleOrgRows() *sqlmock.Rows {
	return sqlmock.NewRows(orgCols).
		AddRow("org-1", "Acme", "acme", nil, nil, time.Now())
}

var alice = &services.Identity{UserID: "user-1", Email: "alice@example.com"}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_SlugTaken(t *testing.T) {
	mock, r := newRouter(t, alice)

	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	w := postJSON(r, "/organizations", `{"name":"Acme","slug":"acme"}`)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409: body=%s", w.Code, w.Body.String())
	}
}

func TestCreate_MissingName(t *testing.T) {
	_, r := newRouter(t, alice)

	w := postJSON(r, "/organizations", `{"slug":"acme"}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreate_Unauthenticated(t *testing.T) {
	_, r := newRouter(t, nil)

	w := postJSON(r, "/organizations", `{"name":"Acme"}`)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestCreate_Success(t *testing.T) {
	mock, r := newRouter(t, alice)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO organizations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO members").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT.*FROM members.*JOIN users").
		WillReturnRows(sqlmock.NewRows(memberWithUserCols))
	mock.ExpectQuery("SELECT.*FROM invitations").
		WillReturnRows(sqlmock.NewRows(invitationWithUserCols))
	mock.ExpectQuery(`SELECT.*COUNT.*FROM members.*FROM invitations`).
		WillReturnRows(sqlmock.NewRows([]string{"members", "invitations"}).AddRow(1, 0))

	w := postJSON(r, "/organizations", `{"name":"Acme"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(t, w)
	if resp["name"] != "Acme" {
		t.Errorf("name = %v, want Acme", resp["name"])
	}
}

// ---------------------------------------------------------------------------
// Update / Delete gates
// ---------------------------------------------------------------------------

func TestUpdate_NonMemberGets403(t *testing.T) {
	mock, r := newRouter(t, alice)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sampleOrgRows())
	mock.ExpectQuery("SELECT.*FROM members.*WHERE organization_id").
		WillReturnRows(sqlmock.NewRows(memberCols))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/organizations/org-1", bytes.NewBufferString(`{"name":"X"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403: body=%s", w.Code, w.Body.String())
	}
}

func TestDelete_MemberRoleGets403(t *testing.T) {
	mock, r := newRouter(t, alice)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sampleOrgRows())
	mock.ExpectQuery("SELECT.*FROM members.*WHERE organization_id").
		WillReturnRows(sqlmock.NewRows(memberCols).
			AddRow("mem-1", "org-1", "user-1", "member", time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/organizations/org-1", nil))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDelete_UnknownOrgGets404(t *testing.T) {
	mock, r := newRouter(t, alice)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sqlmock.NewRows(orgCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/organizations/ghost", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func TestGetBySlug_NotFound(t *testing.T) {
	mock, r := newRouter(t, alice)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE slug").
		WillReturnRows(sqlmock.NewRows(orgCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/organizations/by-slug/ghost", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSlugCheck(t *testing.T) {
	mock, r := newRouter(t, alice)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("fresh", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/organizations/slug-check/fresh", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := getJSON(t, w)
	if resp["available"] != true {
		t.Errorf("available = %v, want true", resp["available"])
	}
}

// ---------------------------------------------------------------------------
// Invitations
// ---------------------------------------------------------------------------

func TestCreateInvitation_InvalidEmail(t *testing.T) {
	_, r := newRouter(t, alice)

	w := postJSON(r, "/organizations/org-1/invitations", `{"email":"not-an-email"}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAcceptInvitation_AlreadyAcceptedGets409(t *testing.T) {
	mock, r := newRouter(t, alice)

	invitationCols := []string{"id", "organization_id", "email", "role", "status", "expires_at", "inviter_id", "created_at"}
	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE id").
		WillReturnRows(sqlmock.NewRows(invitationCols).
			AddRow("inv-1", "org-1", "alice@example.com", "member", "accepted",
				time.Now().Add(time.Hour), "user-2", time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/organizations/invitations/inv-1/accept", nil))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}
