package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles
const (
	RoleAdmin    = "admin"
	RoleAgent    = "agent"
	RoleCustomer = "customer"
)

// User represents an account that can sign in
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	FirstName    string    `json:"firstName" db:"first_name"`
	LastName     string    `json:"lastName" db:"last_name"`
	Role         string    `json:"role" db:"role"`
	PasswordHash *string   `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// FullName returns "First Last"
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Viewer is the authenticated caller of a store operation
type Viewer struct {
	UserID uuid.UUID
	Role   string
}

// IsAdmin reports whether the viewer has the admin role
func (v Viewer) IsAdmin() bool { return v.Role == RoleAdmin }

// IsAgent reports whether the viewer has the agent role
func (v Viewer) IsAgent() bool { return v.Role == RoleAgent }

// UserUpdate is a partial account edit; nil fields are left alone
type UserUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	Role      *string
}
