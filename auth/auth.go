// Package auth provides password login, bearer tokens and role checks for the
// DMS API. Users live in the users table; tokens are stateless HS256 JWTs.
package auth

import (
	"strings"
	"time"

	"github.com/teranos/DMS/errors"
)

// Role is a user's permission level
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ParseRole converts a string to a Role, rejecting unknown values
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return r, nil
	default:
		return "", errors.NewInvalidRequestError("invalid role %q (want admin, editor or viewer)", s)
	}
}

// CanEdit reports whether the role may create and modify documents and run ingestion
func (r Role) CanEdit() bool {
	return r == RoleAdmin || r == RoleEditor
}

// User represents a DMS account
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	Role           Role      `json:"role"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	HashedPassword string    `json:"-"`
}

// UserCreate is the input for registering a user
type UserCreate struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role,omitempty"` // empty = viewer
}

// UserUpdate is a partial update; nil fields are left unchanged
type UserUpdate struct {
	Email    *string `json:"email,omitempty"`
	FullName *string `json:"full_name,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *Role   `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// Token is the login response body
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
