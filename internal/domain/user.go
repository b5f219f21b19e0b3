package domain

import "time"

// Role distinguishes regular requesters from administrators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the domain model for people resolved through the identity provider.
// Rows are upserted by login on every successful sign-in and never deleted.
type User struct {
	ID        int64
	Login     string
	FullName  string
	Groups    []string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin reports whether the user holds the administrator role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Contact holds a user's phone and email, one row per user, created lazily on
// first access.
type Contact struct {
	ID        int64
	UserID    int64
	Phone     string
	Email     string
	UpdatedAt time.Time
}
