package dto

import (
	"time"

	"github.com/noah-isme/ecole-api/internal/models"
)

// ImportDocument is the bulk structure document applied to the current year.
type ImportDocument struct {
	Groups     []ImportGroup  `json:"groups" validate:"dive"`
	Courses    []ImportCourse `json:"courses" validate:"dive"`
	Professors []ImportUser   `json:"professors" validate:"dive"`
	Users      []ImportUser   `json:"users" validate:"dive"`
}

// ImportGroup is a group and its sub-groups.
type ImportGroup struct {
	Name      string           `json:"name" validate:"required"`
	Label     *string          `json:"label"`
	SubGroups []ImportSubGroup `json:"subGroups" validate:"dive"`
}

// ImportSubGroup is a sub-group keyed by code within its group.
type ImportSubGroup struct {
	Code    string  `json:"code" validate:"required"`
	Label   *string `json:"label"`
	Level   *string `json:"level"`
	Session *string `json:"session"`
}

// ImportCourse is a course keyed by name within the year. SubGroupCodes take "group/code"
// references; a bare code only resolves when a single group of the document carries it.
type ImportCourse struct {
	Name            string   `json:"name" validate:"required"`
	Code            *string  `json:"code"`
	Type            *string  `json:"type"`
	Domain          *string  `json:"domain"`
	TotalHours      *int     `json:"totalHours"`
	TotalSessions   *int     `json:"totalSessions"`
	Coef            *float64 `json:"coef"`
	SubGroupCodes   []string `json:"subGroupCodes"`
	ProfessorEmails []string `json:"professorEmails"`
}

// ImportUser is a user keyed by email. SubGroupCode is qualified by GroupName, or written "group/code".
type ImportUser struct {
	Email         string  `json:"email" validate:"required,email"`
	FirstName     string  `json:"firstName" validate:"required"`
	LastName      string  `json:"lastName" validate:"required"`
	Role          string  `json:"role"`
	Password      string  `json:"password"`
	StudentNumber *string `json:"studentNumber"`
	TeacherNumber *string `json:"teacherNumber"`
	GroupName     *string `json:"groupName"`
	SubGroupCode  *string `json:"subGroupCode"`
}

// ImportCount tallies one entity kind.
type ImportCount struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// ImportIssue records a single item that could not be applied.
type ImportIssue struct {
	Kind    string `json:"kind"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

// ImportReport summarises an import run. Applied items stay applied when later ones fail.
type ImportReport struct {
	AcademicYearID string                 `json:"academicYearId"`
	Counts         map[string]ImportCount `json:"counts"`
	Issues         []ImportIssue          `json:"issues,omitempty"`
}

// ExportDump is the full flat export of the database.
type ExportDump struct {
	ExportedAt    time.Time                  `json:"exportedAt"`
	AcademicYears []models.AcademicYear      `json:"academicYears"`
	Groups        []models.Group             `json:"groups"`
	Filieres      []models.Filiere           `json:"filieres"`
	Courses       []models.Course            `json:"courses"`
	Rooms         []models.Room              `json:"rooms"`
	Users         []models.User              `json:"users"`
	Enrollments   []models.StudentEnrollment `json:"enrollments"`
	Sessions      []models.CourseSession     `json:"sessions"`
	Presences     []models.Presence          `json:"presences"`
	Notes         []models.Note              `json:"notes"`
}
