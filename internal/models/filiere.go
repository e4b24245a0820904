package models

import "time"

// Filiere is a track scoped to an academic year.
type Filiere struct {
	ID             string     `db:"id" json:"id"`
	Code           string     `db:"code" json:"code"`
	Label          *string    `db:"label" json:"label,omitempty"`
	AcademicYearID string     `db:"academic_year_id" json:"academic_year_id"`
	LevelID        *string    `db:"level_id" json:"level_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}
