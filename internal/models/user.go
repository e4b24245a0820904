package models

import (
	"strings"
	"time"
)

// Role is the closed set of application roles.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleAdministratif Role = "administratif"
	RoleProf          Role = "prof"
	RoleEleve         Role = "eleve"
)

// AllRoles lists every role, staff first.
var AllRoles = []Role{RoleAdmin, RoleAdministratif, RoleProf, RoleEleve}

// StaffRoles are the roles allowed to manage school structure.
var StaffRoles = []Role{RoleAdmin, RoleAdministratif}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return HasAnyRole(r, AllRoles...)
}

// ParseRole normalises raw input ("Prof", " ELEVE ") into a Role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	return r, r.Valid()
}

// HasAnyRole reports whether role is one of allowed.
func HasAnyRole(role Role, allowed ...Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID            string     `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	Role          Role       `db:"role" json:"role"`
	StudentNumber *string    `db:"student_number" json:"student_number,omitempty"`
	TeacherNumber *string    `db:"teacher_number" json:"teacher_number,omitempty"`
	DateOfBirth   *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	Active        bool       `db:"active" json:"active"`
	LastLogin     *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// FullName joins last and first name the way rosters print them.
func (u User) FullName() string {
	return strings.TrimSpace(u.LastName + " " + u.FirstName)
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role           *Role
	Search         string
	AcademicYearID string
	SubGroupID     string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// UserSubGroup is one row of the student ↔ sub-group membership joined with the parent group year.
type UserSubGroup struct {
	UserID         string `db:"user_id" json:"user_id"`
	SubGroupID     string `db:"sub_group_id" json:"sub_group_id"`
	GroupID        string `db:"group_id" json:"group_id"`
	AcademicYearID string `db:"academic_year_id" json:"academic_year_id"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NewPagination normalises page inputs the same way repositories do.
func NewPagination(page, size, total int) *Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &Pagination{Page: page, PageSize: size, TotalCount: total}
}
