package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

type noteRepository interface {
	List(ctx context.Context, filter models.NoteFilter) ([]models.NoteDetail, error)
	FindByID(ctx context.Context, id string) (*models.Note, error)
	Create(ctx context.Context, note *models.Note) error
	Update(ctx context.Context, note *models.Note) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// GradeScale bounds accepted grade values.
type GradeScale struct {
	Min float64
	Max float64
}

// NoteService records grades.
type NoteService struct {
	repo      noteRepository
	courses   courseLookup
	users     userLookup
	scale     GradeScale
	validator *validator.Validate
	logger    *zap.Logger
}

// NewNoteService constructs a NoteService. A zero scale defaults to 0..20.
func NewNoteService(repo noteRepository, courses courseLookup, users userLookup, scale GradeScale, validate *validator.Validate, logger *zap.Logger) *NoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scale.Max <= scale.Min {
		scale = GradeScale{Min: 0, Max: 20}
	}
	return &NoteService{repo: repo, courses: courses, users: users, scale: scale, validator: defaultValidator(validate), logger: logger}
}

// RecordNote stores a grade for a student in a course.
func (s *NoteService) RecordNote(ctx context.Context, req dto.CreateNoteRequest) (*models.Note, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid note payload")
	}
	if err := s.checkValue(*req.Valeur); err != nil {
		return nil, err
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleEleve {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grades can only be recorded for students")
	}

	note := &models.Note{
		StudentID:   req.StudentID,
		CourseID:    req.CourseID,
		SessionID:   req.SessionID,
		Valeur:      *req.Valeur,
		Commentaire: req.Commentaire,
	}
	if err := s.repo.Create(ctx, note); err != nil {
		return nil, writeError(err, "failed to record note")
	}
	return note, nil
}

// Update patches a grade.
func (s *NoteService) Update(ctx context.Context, id string, req dto.UpdateNoteRequest) (*models.Note, error) {
	note, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "note not found", "failed to load note")
	}
	if req.Valeur != nil {
		if err := s.checkValue(*req.Valeur); err != nil {
			return nil, err
		}
		note.Valeur = *req.Valeur
	}
	if req.Commentaire != nil {
		note.Commentaire = req.Commentaire
	}
	if err := s.repo.Update(ctx, note); err != nil {
		return nil, writeError(err, "failed to update note")
	}
	return note, nil
}

// Delete soft deletes a grade.
func (s *NoteService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return lookupError(err, "note not found", "failed to load note")
	}
	if err := s.repo.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete note")
	}
	return nil
}

// ListByStudent returns a student's grades. Students may only read their own.
func (s *NoteService) ListByStudent(ctx context.Context, actor *models.JWTClaims, studentID string) ([]models.NoteDetail, error) {
	if err := authorizeStudentRead(actor, studentID); err != nil {
		return nil, err
	}
	return s.list(ctx, models.NoteFilter{StudentID: studentID})
}

// ListByCourse returns the grades of a course.
func (s *NoteService) ListByCourse(ctx context.Context, courseID string) ([]models.NoteDetail, error) {
	return s.list(ctx, models.NoteFilter{CourseID: courseID})
}

func (s *NoteService) list(ctx context.Context, filter models.NoteFilter) ([]models.NoteDetail, error) {
	notes, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notes")
	}
	if notes == nil {
		notes = []models.NoteDetail{}
	}
	return notes, nil
}

func (s *NoteService) checkValue(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return appErrors.Clone(appErrors.ErrValidation, "valeur must be a finite number")
	}
	if value < s.scale.Min || value > s.scale.Max {
		err := appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("valeur must be between %g and %g", s.scale.Min, s.scale.Max))
		err.Field = "valeur"
		return err
	}
	return nil
}
