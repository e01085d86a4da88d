// ABOUTME: Auth and session models shared by the gateway, session store and CLI
// ABOUTME: Defines users, roles, the persisted session record and auth API contracts

package models

import "fmt"

// Role is a user's platform role.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a string to a Role. Empty input defaults to student.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return RoleStudent, nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// User is the identity record held by the session store
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Bio       string `json:"bio,omitempty"`
	School    string `json:"school,omitempty"`
	Grade     string `json:"grade,omitempty"`
}

// Clone returns a copy of u, or nil if u is nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// PersistedSession is the durable form of a session.
// Derived flags are recomputed on load and never stored.
type PersistedSession struct {
	User  *User   `json:"user"`
	Token *string `json:"token"`
}

// LoginRequest represents credentials for authentication
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the auth service's successful login payload
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// RefreshRequest is sent to the token refresh endpoint
type RefreshRequest struct {
	UserID string `json:"userId"`
}

// RefreshResponse carries the replacement token
type RefreshResponse struct {
	Token string `json:"token"`
}
