package session

import (
	"context"

	"github.com/itsupport/helpdesk/internal/domain"
)

// CookieName is the HTTP cookie carrying the signed session id.
const CookieName = "helpdesk_session"

// Principal is the authenticated caller kept for the lifetime of a session.
// The superadmin principal carries UserID 0 and no repository row.
type Principal struct {
	UserID   int64       `json:"id"`
	Login    string      `json:"login"`
	FullName string      `json:"full_name"`
	Role     domain.Role `json:"role"`
	Groups   []string    `json:"groups"`
}

// IsAdmin reports whether the principal holds the administrator role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == domain.RoleAdmin
}

// Store maps opaque session ids to principals with a fixed TTL. Destroying an
// unknown id is a no-op.
type Store interface {
	Create(ctx context.Context, principal *Principal) (string, error)
	Resolve(ctx context.Context, id string) (*Principal, error)
	Destroy(ctx context.Context, id string) error
}
