package models

import "time"

// Course is a subject taught within an academic year.
type Course struct {
	ID             string     `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Code           *string    `db:"code" json:"code,omitempty"`
	Type           *string    `db:"type" json:"type,omitempty"`
	Domain         *string    `db:"domain" json:"domain,omitempty"`
	TotalHours     *int       `db:"total_hours" json:"total_hours,omitempty"`
	TotalSessions  *int       `db:"total_sessions" json:"total_sessions,omitempty"`
	Coef           float64    `db:"coef" json:"coef"`
	AcademicYearID string     `db:"academic_year_id" json:"academic_year_id"`
	FiliereID      *string    `db:"filiere_id" json:"filiere_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	ProfessorIDs   []string   `db:"-" json:"professor_ids"`
	SubGroupIDs    []string   `db:"-" json:"sub_group_ids"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	AcademicYearID string
	ProfessorID    string
	SubGroupID     string
}

// CourseLink is one row of a course join table (professor or sub-group).
type CourseLink struct {
	CourseID string `db:"course_id"`
	TargetID string `db:"target_id"`
}

// TeachingAssignment ties a professor to a year through at least one course.
type TeachingAssignment struct {
	ProfessorID    string `db:"professor_id"`
	AcademicYearID string `db:"academic_year_id"`
}
