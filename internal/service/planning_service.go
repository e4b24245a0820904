package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	"github.com/noah-isme/ecole-api/pkg/database"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

type courseSessionRepository interface {
	List(ctx context.Context, filter models.PlanningFilter) ([]models.CourseSessionDetail, error)
	FindByID(ctx context.Context, id string) (*models.CourseSession, error)
	FindOverlaps(ctx context.Context, professorID, roomID *string, start, end time.Time, excludeID string) ([]models.BookingConflict, error)
	Create(ctx context.Context, session *models.CourseSession) error
	Update(ctx context.Context, session *models.CourseSession) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type courseLookup interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type subGroupLookup interface {
	FindSubGroup(ctx context.Context, id string) (*models.SubGroupWithYear, error)
}

type currentYearLookup interface {
	FindCurrent(ctx context.Context, session models.AcademicSession) (*models.AcademicYear, error)
	ListCurrent(ctx context.Context) ([]models.AcademicYear, error)
}

// PlanningService schedules course sessions and filters the planning by role.
type PlanningService struct {
	sessions  courseSessionRepository
	courses   courseLookup
	subGroups subGroupLookup
	years     currentYearLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPlanningService constructs a PlanningService.
func NewPlanningService(sessions courseSessionRepository, courses courseLookup, subGroups subGroupLookup, years currentYearLookup, validate *validator.Validate, logger *zap.Logger) *PlanningService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanningService{sessions: sessions, courses: courses, subGroups: subGroups, years: years, validator: defaultValidator(validate), logger: logger}
}

// List returns the sessions the actor may see. Without a year the current year of the requested
// session is used, or the current years of every session when none is given. When no year is
// current the planning is empty.
func (s *PlanningService) List(ctx context.Context, actor *models.JWTClaims, filter models.PlanningFilter) ([]models.CourseSessionDetail, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if filter.AcademicYearID == "" {
		ids, err := s.currentYearIDs(ctx, filter.Session)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve current academic year")
		}
		if len(ids) == 0 {
			return []models.CourseSessionDetail{}, nil
		}
		filter.AcademicYearIDs = ids
	}

	switch actor.Role {
	case models.RoleProf:
		filter.ProfessorID = actor.UserID
		filter.StudentID = ""
	case models.RoleEleve:
		filter.StudentID = actor.UserID
		filter.ProfessorID = ""
	}

	sessions, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list planning")
	}
	if sessions == nil {
		sessions = []models.CourseSessionDetail{}
	}
	return sessions, nil
}

func (s *PlanningService) currentYearIDs(ctx context.Context, session models.AcademicSession) ([]string, error) {
	if session != "" {
		year, err := s.years.FindCurrent(ctx, session)
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return []string{year.ID}, nil
	}
	years, err := s.years.ListCurrent(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(years))
	for _, y := range years {
		ids = append(ids, y.ID)
	}
	return ids, nil
}

// Get returns a session.
func (s *PlanningService) Get(ctx context.Context, id string) (*models.CourseSession, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "course session not found", "failed to load course session")
	}
	return session, nil
}

// BulkCreate schedules each item independently. A failing item is reported and the
// remaining items are still attempted; created sessions are never rolled back.
func (s *PlanningService) BulkCreate(ctx context.Context, actor *models.JWTClaims, req dto.BulkCreateSessionsRequest) (*dto.BulkCreateSessionsReport, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if len(req.Sessions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one session is required")
	}

	report := &dto.BulkCreateSessionsReport{Items: make([]dto.BulkSessionResult, 0, len(req.Sessions))}
	for i, input := range req.Sessions {
		result := dto.BulkSessionResult{Index: i}
		session, err := s.createOne(ctx, actor, input)
		if err != nil {
			report.Failed++
			result.Error = appErrors.FromError(err).Message
			var conflictErr *BookingConflictError
			if errors.As(err, &conflictErr) {
				result.Conflicts = conflictErr.Conflicts()
			}
			s.logger.Warn("bulk session item failed", zap.Int("index", i), zap.String("course_id", input.CourseID), zap.Error(err))
		} else {
			report.Created++
			result.SessionID = session.ID
		}
		report.Items = append(report.Items, result)
	}
	return report, nil
}

func (s *PlanningService) createOne(ctx context.Context, actor *models.JWTClaims, input dto.PlanningSessionInput) (*models.CourseSession, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, invalid(err, "invalid session payload")
	}
	session := &models.CourseSession{
		CourseID:         input.CourseID,
		ProfessorID:      input.ProfessorID,
		SalleID:          input.RoomID,
		CreatedByID:      actor.UserID,
		StartTime:        input.Start.UTC(),
		EndTime:          input.End.UTC(),
		TargetSubGroupID: &input.TargetSubGroupID,
	}
	if session.ProfessorID == nil && actor.Role == models.RoleProf {
		uid := actor.UserID
		session.ProfessorID = &uid
	}
	if err := s.resolve(ctx, session); err != nil {
		return nil, err
	}
	if err := s.checkAvailability(ctx, session); err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, s.bookingError(ctx, session, err, "failed to create course session")
	}
	return session, nil
}

// Update patches a session and re-checks double booking against the new slot.
func (s *PlanningService) Update(ctx context.Context, id string, req dto.UpdateSessionRequest) (*models.CourseSession, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.CourseID != nil {
		session.CourseID = *req.CourseID
	}
	if req.ProfessorID != nil {
		session.ProfessorID = emptyToNil(*req.ProfessorID)
	}
	if req.RoomID != nil {
		session.SalleID = emptyToNil(*req.RoomID)
	}
	if req.TargetSubGroupID != nil {
		session.TargetSubGroupID = req.TargetSubGroupID
	}
	if req.Start != nil {
		session.StartTime = req.Start.UTC()
	}
	if req.End != nil {
		session.EndTime = req.End.UTC()
	}
	if !session.StartTime.Before(session.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start must be before end")
	}
	if err := s.resolve(ctx, session); err != nil {
		return nil, err
	}
	if err := s.checkAvailability(ctx, session); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, s.bookingError(ctx, session, err, "failed to update course session")
	}
	return session, nil
}

// Delete soft deletes a session and its attendance.
func (s *PlanningService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.sessions.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course session")
	}
	return nil
}

// resolve checks the course and sub-group and derives the target group and the session date.
func (s *PlanningService) resolve(ctx context.Context, session *models.CourseSession) error {
	if session.TargetSubGroupID == nil || *session.TargetSubGroupID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "targetSubGroupId is required")
	}
	course, err := s.courses.FindByID(ctx, session.CourseID)
	if err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrValidation, "course does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	sg, err := s.subGroups.FindSubGroup(ctx, *session.TargetSubGroupID)
	if err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrValidation, "sub-group does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sub-group")
	}
	if sg.AcademicYearID != course.AcademicYearID {
		return appErrors.Clone(appErrors.ErrValidation, "sub-group and course belong to different academic years")
	}
	groupID := sg.GroupID
	session.TargetGroupID = &groupID
	start := session.StartTime
	session.Date = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	return nil
}

func (s *PlanningService) checkAvailability(ctx context.Context, session *models.CourseSession) error {
	conflicts, err := s.sessions.FindOverlaps(ctx, session.ProfessorID, session.SalleID, session.StartTime, session.EndTime, session.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check session availability")
	}
	if len(conflicts) == 0 {
		return nil
	}
	return NewBookingConflictError(conflicts)
}

// bookingError turns an overlap rejected by the database into a BookingConflictError listing
// the sessions that won the slot.
func (s *PlanningService) bookingError(ctx context.Context, session *models.CourseSession, err error, internal string) error {
	if !database.IsExclusionViolation(err) {
		return writeError(err, internal)
	}
	s.logger.Warn("concurrent booking rejected", zap.String("course_id", session.CourseID), zap.Time("start", session.StartTime))
	if conflictErr := s.checkAvailability(ctx, session); conflictErr != nil {
		return conflictErr
	}
	return writeError(err, internal)
}

// BookingConflictError is a CONFLICT error carrying the overlapping sessions.
type BookingConflictError struct {
	err       *appErrors.Error
	conflicts []models.BookingConflict
}

// NewBookingConflictError reports the first conflicting dimension as the error field.
func NewBookingConflictError(conflicts []models.BookingConflict) *BookingConflictError {
	dimension := conflicts[0].Dimension
	return &BookingConflictError{
		err:       appErrors.Conflict(dimension, fmt.Sprintf("%s is already booked in this time range", dimension)),
		conflicts: conflicts,
	}
}

func (e *BookingConflictError) Error() string {
	return e.err.Error()
}

func (e *BookingConflictError) Unwrap() error {
	return e.err
}

// Conflicts returns the sessions overlapping the requested slot.
func (e *BookingConflictError) Conflicts() []models.BookingConflict {
	return e.conflicts
}

func emptyToNil(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
