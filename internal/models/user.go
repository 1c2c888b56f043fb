package models

import (
	"time"

	"github.com/lib/pq"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin       UserRole = "ADMIN"
	RoleProfessor   UserRole = "PROFESOR"
	RoleStudent     UserRole = "ESTUDIANTE"
	RoleCoordinator UserRole = "COORDINADOR"
)

// User represents an application user stored in the users table. A user may
// hold several roles; PreferredRole selects the default view after login.
type User struct {
	ID              string         `db:"id" json:"id"`
	Email           string         `db:"email" json:"email"`
	PasswordHash    string         `db:"password_hash" json:"-"`
	Name            string         `db:"name" json:"name"`
	LastName        string         `db:"last_name" json:"last_name"`
	InstitutionalID string         `db:"institutional_id" json:"institutional_id"`
	Roles           pq.StringArray `db:"roles" json:"roles"`
	PreferredRole   UserRole       `db:"preferred_role" json:"preferred_role"`
	Active          bool           `db:"active" json:"active"`
	LastLogin       *time.Time     `db:"last_login" json:"last_login,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(role UserRole) bool {
	for _, r := range u.Roles {
		if UserRole(r) == role {
			return true
		}
	}
	return false
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
}

// TotalPages derives the page count from total and size.
func (p *Pagination) TotalPages() int {
	if p == nil || p.Size <= 0 {
		return 0
	}
	pages := p.Total / p.Size
	if p.Total%p.Size != 0 {
		pages++
	}
	return pages
}
