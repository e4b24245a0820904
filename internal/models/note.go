package models

import "time"

// Note is a grade given to a student for a course.
type Note struct {
	ID          string     `db:"id" json:"id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	CourseID    string     `db:"course_id" json:"course_id"`
	SessionID   *string    `db:"session_id" json:"session_id,omitempty"`
	Valeur      float64    `db:"valeur" json:"valeur"`
	Commentaire *string    `db:"commentaire" json:"commentaire,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// NoteDetail carries the course name and coefficient alongside the grade.
type NoteDetail struct {
	Note
	CourseName string  `db:"course_name" json:"course_name"`
	Coef       float64 `db:"coef" json:"coef"`
	FirstName  string  `db:"first_name" json:"first_name"`
	LastName   string  `db:"last_name" json:"last_name"`
}

// NoteFilter narrows note listings.
type NoteFilter struct {
	StudentID string
	CourseID  string
}
