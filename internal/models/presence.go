package models

import (
	"strings"
	"time"
)

// PresenceStatus is the attendance outcome for one student in one session.
type PresenceStatus string

const (
	PresencePresent  PresenceStatus = "present"
	PresenceAbsent   PresenceStatus = "absent"
	PresenceRetard   PresenceStatus = "retard"
	PresenceJustifie PresenceStatus = "justifie"
)

// PresenceStatuses lists every status in display order.
var PresenceStatuses = []PresenceStatus{PresencePresent, PresenceAbsent, PresenceRetard, PresenceJustifie}

// ParsePresenceStatus normalises user input into a status.
func ParsePresenceStatus(raw string) (PresenceStatus, bool) {
	s := PresenceStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range PresenceStatuses {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// Presence is a single attendance mark.
type Presence struct {
	ID               string         `db:"id" json:"id"`
	SessionID        string         `db:"session_id" json:"session_id"`
	StudentID        string         `db:"student_id" json:"student_id"`
	Status           PresenceStatus `db:"status" json:"status"`
	Justified        bool           `db:"justified" json:"justified"`
	Reason           *string        `db:"reason" json:"reason,omitempty"`
	ValidatedByAdmin *bool          `db:"validated_by_admin" json:"validated_by_admin,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
}

// PresenceDetail adds student and course names for listings and sheets.
type PresenceDetail struct {
	Presence
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	CourseID     string    `db:"course_id" json:"course_id"`
	CourseName   string    `db:"course_name" json:"course_name"`
	SessionStart time.Time `db:"session_start" json:"session_start"`
}

// PresenceCount is one status bucket of a session summary.
type PresenceCount struct {
	Status PresenceStatus `db:"status"`
	Total  int            `db:"total"`
}

// SessionAttendanceSummary aggregates the marks of a session.
type SessionAttendanceSummary struct {
	SessionID      string                 `json:"session_id"`
	Total          int                    `json:"total"`
	Counts         map[PresenceStatus]int `json:"counts"`
	AttendanceRate float64                `json:"attendance_rate"`
}
