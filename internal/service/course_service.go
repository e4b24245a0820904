package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

const defaultCourseCoef = 1.0

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CourseService manages courses and their professor and sub-group links.
type CourseService struct {
	repo      courseRepository
	years     yearLookup
	users     userLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, years yearLookup, users userLookup, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, years: years, users: users, validator: defaultValidator(validate), logger: logger}
}

// List returns courses matching the filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	courses, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// Get returns a course with its links.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "course not found", "failed to load course")
	}
	return course, nil
}

// Create adds a course to a non-archived year.
func (s *CourseService) Create(ctx context.Context, req dto.CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid course payload")
	}
	if err := s.checkRequest(ctx, req); err != nil {
		return nil, err
	}
	course := &models.Course{}
	applyCourseRequest(course, req)
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, writeError(err, "failed to create course")
	}
	return course, nil
}

// Update replaces a course and its links.
func (s *CourseService) Update(ctx context.Context, id string, req dto.CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkRequest(ctx, req); err != nil {
		return nil, err
	}
	applyCourseRequest(course, req)
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, writeError(err, "failed to update course")
	}
	return course, nil
}

// Delete soft deletes a course.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

func (s *CourseService) checkRequest(ctx context.Context, req dto.CourseRequest) error {
	year, err := s.years.FindByID(ctx, req.AcademicYearID)
	if err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrValidation, "academic year does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	if year.IsArchived {
		return appErrors.Clone(appErrors.ErrInvalidState, "academic year is archived")
	}
	for _, id := range req.ProfessorIDs {
		user, err := s.users.FindByID(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return appErrors.Clone(appErrors.ErrValidation, "professor "+id+" does not exist")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor")
		}
		if user.Role != models.RoleProf {
			return appErrors.Clone(appErrors.ErrValidation, "user "+id+" is not a professor")
		}
	}
	return nil
}

func applyCourseRequest(course *models.Course, req dto.CourseRequest) {
	course.Name = req.Name
	course.Code = req.Code
	course.Type = req.Type
	course.Domain = req.Domain
	course.TotalHours = req.TotalHours
	course.TotalSessions = req.TotalSessions
	course.Coef = defaultCourseCoef
	if req.Coef != nil {
		course.Coef = *req.Coef
	}
	course.AcademicYearID = req.AcademicYearID
	course.FiliereID = req.FiliereID
	course.ProfessorIDs = nonNilIDs(req.ProfessorIDs)
	course.SubGroupIDs = nonNilIDs(req.SubGroupIDs)
}
