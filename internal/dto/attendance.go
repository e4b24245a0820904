package dto

// PresenceInput is one student's mark in a session.
type PresenceInput struct {
	StudentID string  `json:"studentId" validate:"required"`
	Status    string  `json:"status" validate:"required,presence_status"`
	Justified *bool   `json:"justified"`
	Reason    *string `json:"reason"`
}

// MarkSessionRequest replaces the marks of a session.
type MarkSessionRequest struct {
	Presences []PresenceInput `json:"presences" validate:"dive"`
}

// JustifyPresenceRequest records the staff decision on an absence justification.
type JustifyPresenceRequest struct {
	Validated bool    `json:"validated"`
	Reason    *string `json:"reason"`
}

// CreateNoteRequest records a grade.
type CreateNoteRequest struct {
	StudentID   string   `json:"studentId" validate:"required"`
	CourseID    string   `json:"courseId" validate:"required"`
	Valeur      *float64 `json:"valeur" validate:"required"`
	Commentaire *string  `json:"commentaire"`
	SessionID   *string  `json:"sessionId"`
}

// UpdateNoteRequest patches a grade.
type UpdateNoteRequest struct {
	Valeur      *float64 `json:"valeur"`
	Commentaire *string  `json:"commentaire"`
}
