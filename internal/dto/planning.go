package dto

import (
	"time"

	"github.com/noah-isme/ecole-api/internal/models"
)

// PlanningSessionInput describes one session to schedule.
type PlanningSessionInput struct {
	CourseID         string    `json:"courseId" validate:"required"`
	ProfessorID      *string   `json:"professorId"`
	RoomID           *string   `json:"roomId"`
	TargetSubGroupID string    `json:"targetSubGroupId" validate:"required"`
	Start            time.Time `json:"start" validate:"required"`
	End              time.Time `json:"end" validate:"required,gtfield=Start"`
}

// BulkCreateSessionsRequest schedules several sessions at once.
type BulkCreateSessionsRequest struct {
	Sessions []PlanningSessionInput `json:"sessions" validate:"required,min=1,dive"`
}

// BulkSessionResult is the outcome of one bulk item.
type BulkSessionResult struct {
	Index     int                      `json:"index"`
	SessionID string                   `json:"sessionId,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Conflicts []models.BookingConflict `json:"conflicts,omitempty"`
}

// BulkCreateSessionsReport aggregates the per-item outcomes. Created items are never rolled back.
type BulkCreateSessionsReport struct {
	Created int                 `json:"created"`
	Failed  int                 `json:"failed"`
	Items   []BulkSessionResult `json:"items"`
}

// UpdateSessionRequest patches a session.
type UpdateSessionRequest struct {
	CourseID         *string    `json:"courseId"`
	ProfessorID      *string    `json:"professorId"`
	RoomID           *string    `json:"roomId"`
	TargetSubGroupID *string    `json:"targetSubGroupId"`
	Start            *time.Time `json:"start"`
	End              *time.Time `json:"end"`
}
