package models

import (
	"strings"
	"time"
)

// AcademicSession is one of the two yearly intakes.
type AcademicSession string

const (
	SessionOctobre AcademicSession = "octobre"
	SessionFevrier AcademicSession = "fevrier"
)

// ParseAcademicSession accepts any casing and surrounding spaces.
func ParseAcademicSession(raw string) (AcademicSession, bool) {
	s := AcademicSession(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case SessionOctobre, SessionFevrier:
		return s, true
	}
	return "", false
}

// YearState is the lifecycle position derived from the year flags.
type YearState string

const (
	YearStateActive   YearState = "active"
	YearStateCurrent  YearState = "current"
	YearStateArchived YearState = "archived"
	YearStateDeleted  YearState = "deleted"
)

// AcademicYear is the root aggregate for groups, filieres and courses.
type AcademicYear struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Session      AcademicSession `db:"session" json:"session"`
	StartDate    time.Time       `db:"start_date" json:"start_date"`
	EndDate      time.Time       `db:"end_date" json:"end_date"`
	IsCurrent    bool            `db:"is_current" json:"is_current"`
	IsArchived   bool            `db:"is_archived" json:"is_archived"`
	ArchivedAt   *time.Time      `db:"archived_at" json:"archived_at,omitempty"`
	ArchivedByID *string         `db:"archived_by_id" json:"archived_by_id,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time      `db:"deleted_at" json:"deleted_at,omitempty"`
}

// State derives the lifecycle state.
func (y AcademicYear) State() YearState {
	switch {
	case y.DeletedAt != nil:
		return YearStateDeleted
	case y.IsArchived:
		return YearStateArchived
	case y.IsCurrent:
		return YearStateCurrent
	default:
		return YearStateActive
	}
}

// Finished reports whether the year ended before now.
func (y AcademicYear) Finished(now time.Time) bool {
	return y.EndDate.Before(now)
}

// AcademicYearFilter defines filters supported by list endpoints.
type AcademicYearFilter struct {
	Session    AcademicSession
	IsCurrent  *bool
	IsArchived *bool
}

// CloneTarget selects which structure CloneStructure copies.
type CloneTarget string

const (
	CloneGroups  CloneTarget = "groups"
	CloneCourses CloneTarget = "courses"
)
