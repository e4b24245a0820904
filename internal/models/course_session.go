package models

import "time"

// CourseSession is one scheduled occurrence of a course.
type CourseSession struct {
	ID               string     `db:"id" json:"id"`
	CourseID         string     `db:"course_id" json:"course_id"`
	ProfessorID      *string    `db:"professor_id" json:"professor_id,omitempty"`
	SalleID          *string    `db:"salle_id" json:"salle_id,omitempty"`
	CreatedByID      string     `db:"created_by_id" json:"created_by_id"`
	Date             time.Time  `db:"date" json:"date"`
	StartTime        time.Time  `db:"start_time" json:"start_time"`
	EndTime          time.Time  `db:"end_time" json:"end_time"`
	TargetGroupID    *string    `db:"target_group_id" json:"target_group_id,omitempty"`
	TargetSubGroupID *string    `db:"target_sub_group_id" json:"target_sub_group_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// CourseSessionDetail enriches a session with display names for planning views.
type CourseSessionDetail struct {
	CourseSession
	CourseName     string  `db:"course_name" json:"course_name"`
	AcademicYearID string  `db:"academic_year_id" json:"academic_year_id"`
	ProfessorName  *string `db:"professor_name" json:"professor_name,omitempty"`
	RoomName       *string `db:"room_name" json:"room_name,omitempty"`
	SubGroupCode   *string `db:"sub_group_code" json:"sub_group_code,omitempty"`
}

// PlanningFilter scopes a planning listing to a year and to what the actor may see.
// Empty visibility fields mean no restriction.
type PlanningFilter struct {
	AcademicYearID string
	// AcademicYearIDs is used when AcademicYearID is empty.
	AcademicYearIDs []string
	Session         AcademicSession
	ProfessorID     string
	StudentID       string
	From            *time.Time
	To              *time.Time
}

// BookingConflict describes an existing session overlapping a requested slot.
type BookingConflict struct {
	Dimension string `db:"dimension" json:"dimension"`
	SessionID string `db:"session_id" json:"session_id"`
}

const (
	ConflictDimensionProfessor = "professor"
	ConflictDimensionRoom      = "room"
)
