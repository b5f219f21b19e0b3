package dto

import (
	"time"

	"github.com/itsupport/helpdesk/internal/domain"
	"github.com/itsupport/helpdesk/internal/session"
)

// LoginRequest payload.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// CabinetRequest payload.
type CabinetRequest struct {
	Number string `json:"number"`
}

// ContactRequest payload.
type ContactRequest struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// PrincipalResponse is the session view of the caller.
type PrincipalResponse struct {
	ID       int64       `json:"id"`
	Login    string      `json:"login"`
	FullName string      `json:"full_name"`
	Role     domain.Role `json:"role"`
	Groups   []string    `json:"groups"`
}

// UserResponse is one directory row.
type UserResponse struct {
	ID        int64       `json:"id"`
	Login     string      `json:"login"`
	FullName  string      `json:"full_name"`
	Groups    []string    `json:"groups"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

// FromPrincipal converts a session principal to its response shape.
func FromPrincipal(p *session.Principal) PrincipalResponse {
	groups := p.Groups
	if groups == nil {
		groups = []string{}
	}
	return PrincipalResponse{
		ID:       p.UserID,
		Login:    p.Login,
		FullName: p.FullName,
		Role:     p.Role,
		Groups:   groups,
	}
}

// Users converts directory rows.
func Users(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, user := range users {
		groups := user.Groups
		if groups == nil {
			groups = []string{}
		}
		out = append(out, UserResponse{
			ID:        user.ID,
			Login:     user.Login,
			FullName:  user.FullName,
			Groups:    groups,
			Role:      user.Role,
			CreatedAt: user.CreatedAt,
		})
	}
	return out
}
