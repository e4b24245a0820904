package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateWithEnrollment(ctx context.Context, user *models.User, enrollment *models.StudentEnrollment) error
	Update(ctx context.Context, user *models.User) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type enrollmentYearLookup interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	FindCurrent(ctx context.Context, session models.AcademicSession) (*models.AcademicYear, error)
}

// UserService manages user accounts. Every created user is enrolled in a year in the same transaction.
type UserService struct {
	repo      userRepository
	years     enrollmentYearLookup
	subGroups subGroupLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userRepository, years enrollmentYearLookup, subGroups subGroupLookup, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, years: years, subGroups: subGroups, validator: defaultValidator(validate), logger: logger}
}

// List returns a page of users.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "user not found", "failed to load user")
	}
	return user, nil
}

// Create inserts a user and its enrollment. Without an explicit year the current one is used.
func (s *UserService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid user payload")
	}
	role, _ := models.ParseRole(req.Role)
	year, err := s.enrollmentYear(ctx, req.AcademicYearID)
	if err != nil {
		return nil, err
	}
	if req.MainSubGroupID != nil {
		sg, err := s.subGroups.FindSubGroup(ctx, *req.MainSubGroupID)
		if err != nil {
			if isNotFound(err) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "sub-group does not exist")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sub-group")
		}
		if sg.AcademicYearID != year.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "sub-group does not belong to the enrollment year")
		}
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user := &models.User{
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash:  hash,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Role:          role,
		StudentNumber: req.StudentNumber,
		TeacherNumber: req.TeacherNumber,
		DateOfBirth:   req.DateOfBirth,
		Phone:         req.Phone,
		Active:        true,
	}
	status := models.EnrollmentStatusEnCours
	enrollment := &models.StudentEnrollment{
		AcademicYearID: year.ID,
		Role:           role,
		MainSubGroupID: req.MainSubGroupID,
		Status:         &status,
	}
	if err := s.repo.CreateWithEnrollment(ctx, user, enrollment); err != nil {
		return nil, writeError(err, "failed to create user")
	}

	s.audit(ctx, actor, models.AuditActionUserCreate, user.ID, map[string]interface{}{
		"email": user.Email, "role": user.Role, "academic_year_id": year.ID,
	})
	return user, nil
}

// Update patches a user profile.
func (s *UserService) Update(ctx context.Context, id string, req dto.UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid user payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Role != nil {
		user.Role, _ = models.ParseRole(*req.Role)
	}
	if req.StudentNumber != nil {
		user.StudentNumber = req.StudentNumber
	}
	if req.TeacherNumber != nil {
		user.TeacherNumber = req.TeacherNumber
	}
	if req.DateOfBirth != nil {
		user.DateOfBirth = req.DateOfBirth
	}
	if req.Phone != nil {
		user.Phone = req.Phone
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, writeError(err, "failed to update user")
	}
	return user, nil
}

// Delete soft deletes a user. Users cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor != nil && actor.UserID == id {
		return appErrors.Clone(appErrors.ErrInvalidState, "cannot delete your own account")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.audit(ctx, actor, models.AuditActionUserDelete, id, nil)
	return nil
}

func (s *UserService) enrollmentYear(ctx context.Context, yearID string) (*models.AcademicYear, error) {
	if yearID == "" {
		year, err := s.years.FindCurrent(ctx, "")
		if err != nil {
			if isNotFound(err) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "no current academic year; academicYearId is required")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve current academic year")
		}
		return year, nil
	}
	year, err := s.years.FindByID(ctx, yearID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "academic year does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	if year.IsArchived {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot enroll into an archived academic year")
	}
	return year, nil
}

func (s *UserService) audit(ctx context.Context, actor *models.JWTClaims, action, userID string, values map[string]interface{}) {
	var actorID *string
	if actor != nil && actor.UserID != "" {
		id := actor.UserID
		actorID = &id
	}
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	resourceID := userID
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{UserID: actorID, Action: action, Resource: "user", ResourceID: &resourceID, NewValues: payload}); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}
