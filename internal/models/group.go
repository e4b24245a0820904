package models

import "time"

// Group is a cohort within an academic year.
type Group struct {
	ID             string     `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Label          *string    `db:"label" json:"label,omitempty"`
	AcademicYearID string     `db:"academic_year_id" json:"academic_year_id"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	SubGroups      []SubGroup `db:"-" json:"sub_groups"`
}

// SubGroup is the class-sized unit students are assigned to.
type SubGroup struct {
	ID         string     `db:"id" json:"id"`
	Code       string     `db:"code" json:"code"`
	Label      *string    `db:"label" json:"label,omitempty"`
	Level      *string    `db:"level" json:"level,omitempty"`
	Session    *string    `db:"session" json:"session,omitempty"`
	GroupID    string     `db:"group_id" json:"group_id"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	FiliereIDs []string   `db:"-" json:"filiere_ids,omitempty"`
}

// SubGroupWithYear is a sub-group resolved with the academic year of its parent group.
type SubGroupWithYear struct {
	SubGroup
	AcademicYearID string `db:"academic_year_id" json:"academic_year_id"`
}

// GroupFilter narrows group listings. The zero value is the cached unfiltered list.
type GroupFilter struct {
	AcademicYearID string
}

// Unfiltered reports whether the filter selects every group.
func (f GroupFilter) Unfiltered() bool {
	return f.AcademicYearID == ""
}
