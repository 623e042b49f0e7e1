package user

import "time"

// Role grants a set of capabilities within the back office.
type Role string

const (
	RoleViewer  Role = "viewer"
	RoleAnalyst Role = "analyst"
	RoleAdmin   Role = "admin"
)

// Rank orders roles by privilege so middleware can compare them.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleAnalyst:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the role is a known role.
func (r Role) Valid() bool { return r.Rank() > 0 }

// User represents an operator of the back office.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session tracks an issued token so logout can revoke it before expiry.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}
