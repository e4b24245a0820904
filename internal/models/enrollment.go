package models

import "time"

// Enrollment statuses written by the reconciliation procedures.
const (
	EnrollmentStatusEnCours = "en_cours"
	EnrollmentStatusTermine = "termine"
)

// StudentEnrollment records that a user participates in an academic year under a role.
type StudentEnrollment struct {
	ID             string     `db:"id" json:"id"`
	StudentID      string     `db:"student_id" json:"student_id"`
	AcademicYearID string     `db:"academic_year_id" json:"academic_year_id"`
	Role           Role       `db:"role" json:"role"`
	MainSubGroupID *string    `db:"main_sub_group_id" json:"main_sub_group_id,omitempty"`
	Status         *string    `db:"status" json:"status,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// EnrollmentDetail joins an enrollment with its user and year for audit listings.
type EnrollmentDetail struct {
	StudentEnrollment
	Email      string `db:"email" json:"email"`
	FirstName  string `db:"first_name" json:"first_name"`
	LastName   string `db:"last_name" json:"last_name"`
	YearName   string `db:"year_name" json:"year_name"`
	IsCurrent  bool   `db:"is_current" json:"is_current"`
	IsArchived bool   `db:"is_archived" json:"is_archived"`
}

// EnrollmentFilter narrows enrollment listings.
type EnrollmentFilter struct {
	AcademicYearID string
	StudentID      string
	Role           *Role
	Page           int
	PageSize       int
}
