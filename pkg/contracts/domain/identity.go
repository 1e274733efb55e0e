package domain

import (
	"fmt"
	"slices"
	"time"
)

// Role is the caller's position in the clinic
type Role string

const (
	RoleSuperadmin   Role = "superadmin"
	RoleAdmin        Role = "admin"
	RoleDentist      Role = "dentist"
	RoleReceptionist Role = "receptionist"
)

var allRoles = []Role{RoleSuperadmin, RoleAdmin, RoleDentist, RoleReceptionist}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return slices.Contains(allRoles, r)
}

// ParseRole converts a wire value into a Role
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Identity is the resolved caller of a request. It never carries credentials.
type Identity struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	IsActive    bool      `json:"isActive"`
	Permissions ModuleSet `json:"permissions"`
}

// IsSuperadmin reports whether the identity bypasses license and module checks
func (i Identity) IsSuperadmin() bool {
	return i.Role == RoleSuperadmin
}

// Clone returns a deep copy of the identity
func (i Identity) Clone() Identity {
	i.Permissions = i.Permissions.Clone()
	return i
}

// User is a stored account
type User struct {
	Identity
	Name         string    `json:"name" validate:"required"`
	Email        string    `json:"email" validate:"required,email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
