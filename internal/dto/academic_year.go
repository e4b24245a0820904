package dto

import (
	"time"

	"github.com/noah-isme/ecole-api/internal/models"
)

// CreateAcademicYearRequest is the payload for creating a year.
type CreateAcademicYearRequest struct {
	Name      string    `json:"name" validate:"required"`
	Session   string    `json:"session" validate:"required,academic_session"`
	StartDate time.Time `json:"startDate" validate:"required"`
	EndDate   time.Time `json:"endDate" validate:"required,gtfield=StartDate"`
	IsCurrent bool      `json:"isCurrent"`
}

// UpdateAcademicYearRequest patches descriptive fields of a year.
type UpdateAcademicYearRequest struct {
	Name      *string    `json:"name" validate:"omitempty,min=1"`
	Session   *string    `json:"session" validate:"omitempty,academic_session"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}

// ArchiveAcademicYearRequest carries the administrative override flag.
type ArchiveAcademicYearRequest struct {
	Force bool `json:"force"`
}

// CloneStructureRequest copies groups or courses from a source year.
type CloneStructureRequest struct {
	SourceYearID string `json:"sourceYearId" validate:"required"`
	What         string `json:"what" validate:"required,oneof=groups courses"`
}

// CloneReport lists what a clone created and what already existed.
type CloneReport struct {
	TargetYearID string   `json:"targetYearId"`
	SourceYearID string   `json:"sourceYearId"`
	What         string   `json:"what"`
	Created      int      `json:"created"`
	Skipped      int      `json:"skipped"`
	Failed       int      `json:"failed"`
	Errors       []string `json:"errors,omitempty"`
}

// RecomputeResult reports the effect of a lifecycle sweep.
type RecomputeResult struct {
	Demoted  int64                 `json:"demoted"`
	Finished []models.AcademicYear `json:"finished"`
}
