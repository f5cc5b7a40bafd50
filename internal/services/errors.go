// Package services implements the user and organization access modules: the
// permission-checked operations the HTTP layer exposes. Operations return
// tagged sentinel errors rather than collapsing every failure into an empty
// result; the presentation boundary decides how each kind is rendered.
package services

import "errors"

// The four externally meaningful failure kinds. Anything else that comes out
// of an operation is an internal error.
var (
	ErrUnauthenticated  = errors.New("not authenticated")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("resource conflict")
)

// Identity is the authenticated caller, resolved once at the HTTP boundary
// and passed explicitly into every operation that needs it. A nil *Identity
// means the caller is not authenticated.
type Identity struct {
	UserID    string
	Email     string
	SessionID string
}
