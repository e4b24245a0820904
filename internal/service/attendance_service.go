package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
	"github.com/noah-isme/ecole-api/pkg/export"
)

// Attendance sheet formats.
const (
	SheetFormatCSV = "csv"
	SheetFormatPDF = "pdf"
)

type presenceRepository interface {
	ReplaceForSession(ctx context.Context, sessionID string, presences []models.Presence) error
	ListBySession(ctx context.Context, sessionID string) ([]models.PresenceDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.PresenceDetail, error)
	CountByStatus(ctx context.Context, sessionID string) ([]models.PresenceCount, error)
	FindByID(ctx context.Context, id string) (*models.Presence, error)
	UpdateJustification(ctx context.Context, p *models.Presence) error
}

type sessionLookup interface {
	FindByID(ctx context.Context, id string) (*models.CourseSession, error)
}

// SheetRenderer turns a dataset into a downloadable document.
type SheetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// AttendanceService records and reports presences per course session.
type AttendanceService struct {
	repo      presenceRepository
	sessions  sessionLookup
	renderers map[string]SheetRenderer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs an AttendanceService with CSV and PDF sheet renderers.
func NewAttendanceService(repo presenceRepository, sessions sessionLookup, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:     repo,
		sessions: sessions,
		renderers: map[string]SheetRenderer{
			SheetFormatCSV: export.NewCSVExporter(),
			SheetFormatPDF: export.NewPDFExporter(),
		},
		validator: defaultValidator(validate),
		logger:    logger,
	}
}

// MarkSession replaces the marks of a session in one transaction. Marking twice with the same
// payload leaves the same rows.
func (s *AttendanceService) MarkSession(ctx context.Context, actor *models.JWTClaims, sessionID string, req dto.MarkSessionRequest) ([]models.PresenceDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid presence payload")
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actor.HasAnyRole(models.RoleProf) && (session.ProfessorID == nil || *session.ProfessorID != actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session professor can take attendance")
	}

	seen := make(map[string]struct{}, len(req.Presences))
	presences := make([]models.Presence, 0, len(req.Presences))
	for _, input := range req.Presences {
		if _, dup := seen[input.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is listed twice", input.StudentID))
		}
		seen[input.StudentID] = struct{}{}

		status, _ := models.ParsePresenceStatus(input.Status)
		justified := status == models.PresenceJustifie
		if input.Justified != nil {
			justified = *input.Justified
		}
		presences = append(presences, models.Presence{
			SessionID: session.ID,
			StudentID: input.StudentID,
			Status:    status,
			Justified: justified,
			Reason:    input.Reason,
		})
	}

	if err := s.repo.ReplaceForSession(ctx, session.ID, presences); err != nil {
		return nil, writeError(err, "failed to record presences")
	}
	s.logger.Info("session attendance recorded", zap.String("session_id", session.ID), zap.Int("count", len(presences)))
	return s.ListBySession(ctx, session.ID)
}

// ListBySession returns the live marks of a session.
func (s *AttendanceService) ListBySession(ctx context.Context, sessionID string) ([]models.PresenceDetail, error) {
	rows, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list presences")
	}
	if rows == nil {
		rows = []models.PresenceDetail{}
	}
	return rows, nil
}

// ListByStudent returns a student's marks. Students may only read their own.
func (s *AttendanceService) ListByStudent(ctx context.Context, actor *models.JWTClaims, studentID string) ([]models.PresenceDetail, error) {
	if err := authorizeStudentRead(actor, studentID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student presences")
	}
	if rows == nil {
		rows = []models.PresenceDetail{}
	}
	return rows, nil
}

// Summary aggregates the marks of a session. Late students count as attending.
func (s *AttendanceService) Summary(ctx context.Context, sessionID string) (*models.SessionAttendanceSummary, error) {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountByStatus(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise presences")
	}

	summary := &models.SessionAttendanceSummary{SessionID: sessionID, Counts: make(map[models.PresenceStatus]int, len(models.PresenceStatuses))}
	for _, status := range models.PresenceStatuses {
		summary.Counts[status] = 0
	}
	for _, c := range counts {
		summary.Counts[c.Status] += c.Total
		summary.Total += c.Total
	}
	if summary.Total > 0 {
		attending := summary.Counts[models.PresencePresent] + summary.Counts[models.PresenceRetard]
		summary.AttendanceRate = float64(attending) / float64(summary.Total)
	}
	return summary, nil
}

// Justify records the staff decision on a justification. An accepted absence becomes justifie.
func (s *AttendanceService) Justify(ctx context.Context, presenceID string, req dto.JustifyPresenceRequest) (*models.Presence, error) {
	presence, err := s.repo.FindByID(ctx, presenceID)
	if err != nil {
		return nil, lookupError(err, "presence not found", "failed to load presence")
	}
	validated := req.Validated
	presence.ValidatedByAdmin = &validated
	presence.Justified = validated
	if req.Reason != nil {
		presence.Reason = req.Reason
	}
	if validated && presence.Status == models.PresenceAbsent {
		presence.Status = models.PresenceJustifie
	}
	if err := s.repo.UpdateJustification(ctx, presence); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update justification")
	}
	return presence, nil
}

// AttendanceSheet renders the marks of a session as CSV or PDF.
func (s *AttendanceService) AttendanceSheet(ctx context.Context, sessionID, format string) ([]byte, string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = SheetFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	rows, err := s.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}

	data := export.Dataset{
		Title:   "Feuille d'appel",
		Headers: []string{"Nom", "Prénom", "Statut", "Justifié", "Motif"},
		Meta:    []string{"Séance du " + session.StartTime.Format("02/01/2006 15:04") + " à " + session.EndTime.Format("15:04")},
	}
	if len(rows) > 0 {
		data.Title = "Feuille d'appel - " + rows[0].CourseName
	}
	for _, row := range rows {
		reason := ""
		if row.Reason != nil {
			reason = *row.Reason
		}
		justified := "non"
		if row.Justified {
			justified = "oui"
		}
		data.Rows = append(data.Rows, map[string]string{
			"Nom":      row.LastName,
			"Prénom":   row.FirstName,
			"Statut":   string(row.Status),
			"Justifié": justified,
			"Motif":    reason,
		})
	}

	out, err := renderer.Render(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render attendance sheet")
	}
	return out, fmt.Sprintf("appel-%s.%s", session.StartTime.Format("20060102-1504"), format), nil
}

func (s *AttendanceService) loadSession(ctx context.Context, sessionID string) (*models.CourseSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, lookupError(err, "course session not found", "failed to load course session")
	}
	return session, nil
}

// authorizeStudentRead lets staff and professors read anyone; others only themselves.
func authorizeStudentRead(actor *models.JWTClaims, studentID string) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if actor.HasAnyRole(models.RoleAdmin, models.RoleAdministratif, models.RoleProf) || actor.UserID == studentID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "students may only access their own records")
}
