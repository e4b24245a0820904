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

const (
	groupsCacheKey     = "groups:all"
	groupsCachePattern = "groups:*"
)

type groupRepository interface {
	List(ctx context.Context, filter models.GroupFilter) ([]models.Group, error)
	FindByID(ctx context.Context, id string) (*models.Group, error)
	Create(ctx context.Context, group *models.Group) error
	Update(ctx context.Context, group *models.Group) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	FindSubGroup(ctx context.Context, id string) (*models.SubGroupWithYear, error)
	CreateSubGroup(ctx context.Context, sg *models.SubGroup) error
	UpdateSubGroup(ctx context.Context, sg *models.SubGroup) error
	SoftDeleteSubGroup(ctx context.Context, id string, at time.Time) error
	SetSubGroupFilieres(ctx context.Context, subGroupID string, filiereIDs []string) error
	AddStudents(ctx context.Context, subGroupID string, userIDs []string) error
	RemoveStudent(ctx context.Context, subGroupID, userID string) error
	ListSubGroupStudents(ctx context.Context, subGroupID string) ([]models.User, error)
}

type yearLookup interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
}

// GroupService manages groups, their sub-groups and sub-group membership.
// The unfiltered list is cached and every write clears the group keys.
type GroupService struct {
	repo      groupRepository
	years     yearLookup
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGroupService constructs a GroupService.
func NewGroupService(repo groupRepository, years yearLookup, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *GroupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &GroupService{repo: repo, years: years, cache: cache, cacheTTL: cacheTTL, validator: defaultValidator(validate), logger: logger}
}

// List returns groups with their sub-groups.
func (s *GroupService) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, bool, error) {
	if filter.Unfiltered() {
		var cached []models.Group
		if s.cache.Get(ctx, groupsCacheKey, &cached) {
			return cached, true, nil
		}
	}

	groups, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	if filter.Unfiltered() {
		s.cache.Set(ctx, groupsCacheKey, groups, s.cacheTTL)
	}
	return groups, false, nil
}

// Get returns a group with its sub-groups.
func (s *GroupService) Get(ctx context.Context, id string) (*models.Group, error) {
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "group not found", "failed to load group")
	}
	return group, nil
}

// Create adds a group to a non-archived year.
func (s *GroupService) Create(ctx context.Context, req dto.CreateGroupRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid group payload")
	}
	if err := s.ensureWritableYear(ctx, req.AcademicYearID); err != nil {
		return nil, err
	}
	group := &models.Group{Name: req.Name, Label: req.Label, AcademicYearID: req.AcademicYearID, SubGroups: []models.SubGroup{}}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, writeError(err, "failed to create group")
	}
	s.invalidate(ctx)
	return group, nil
}

// Update patches a group.
func (s *GroupService) Update(ctx context.Context, id string, req dto.UpdateGroupRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid group payload")
	}
	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		group.Name = *req.Name
	}
	if req.Label != nil {
		group.Label = req.Label
	}
	if err := s.repo.Update(ctx, group); err != nil {
		return nil, writeError(err, "failed to update group")
	}
	s.invalidate(ctx)
	return group, nil
}

// Delete soft deletes a group and its sub-groups.
func (s *GroupService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete group")
	}
	s.invalidate(ctx)
	return nil
}

// GetSubGroup returns a sub-group with its filiere links.
func (s *GroupService) GetSubGroup(ctx context.Context, id string) (*models.SubGroupWithYear, error) {
	sg, err := s.repo.FindSubGroup(ctx, id)
	if err != nil {
		return nil, lookupError(err, "sub-group not found", "failed to load sub-group")
	}
	return sg, nil
}

// CreateSubGroup adds a sub-group under an existing group.
func (s *GroupService) CreateSubGroup(ctx context.Context, req dto.SubGroupRequest) (*models.SubGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid sub-group payload")
	}
	group, err := s.Get(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureWritableYear(ctx, group.AcademicYearID); err != nil {
		return nil, err
	}

	sg := &models.SubGroup{Code: req.Code, Label: req.Label, Level: req.Level, Session: normalizeSession(req.Session), GroupID: group.ID}
	if err := s.repo.CreateSubGroup(ctx, sg); err != nil {
		return nil, writeError(err, "failed to create sub-group")
	}
	if len(req.FiliereIDs) > 0 {
		if err := s.repo.SetSubGroupFilieres(ctx, sg.ID, req.FiliereIDs); err != nil {
			return nil, writeError(err, "failed to link sub-group filieres")
		}
	}
	sg.FiliereIDs = nonNilIDs(req.FiliereIDs)
	s.invalidate(ctx)
	return sg, nil
}

// UpdateSubGroup replaces a sub-group's fields and filiere links.
func (s *GroupService) UpdateSubGroup(ctx context.Context, id string, req dto.SubGroupRequest) (*models.SubGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid sub-group payload")
	}
	current, err := s.GetSubGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.GroupID != current.GroupID {
		if _, err := s.Get(ctx, req.GroupID); err != nil {
			return nil, err
		}
	}

	sg := current.SubGroup
	sg.Code = req.Code
	sg.Label = req.Label
	sg.Level = req.Level
	sg.Session = normalizeSession(req.Session)
	sg.GroupID = req.GroupID
	if err := s.repo.UpdateSubGroup(ctx, &sg); err != nil {
		return nil, writeError(err, "failed to update sub-group")
	}
	if err := s.repo.SetSubGroupFilieres(ctx, sg.ID, req.FiliereIDs); err != nil {
		return nil, writeError(err, "failed to link sub-group filieres")
	}
	sg.FiliereIDs = nonNilIDs(req.FiliereIDs)
	s.invalidate(ctx)
	return &sg, nil
}

// DeleteSubGroup soft deletes a sub-group.
func (s *GroupService) DeleteSubGroup(ctx context.Context, id string) error {
	if _, err := s.GetSubGroup(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDeleteSubGroup(ctx, id, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete sub-group")
	}
	s.invalidate(ctx)
	return nil
}

// ListStudents returns the members of a sub-group.
func (s *GroupService) ListStudents(ctx context.Context, subGroupID string) ([]models.User, error) {
	if _, err := s.GetSubGroup(ctx, subGroupID); err != nil {
		return nil, err
	}
	users, err := s.repo.ListSubGroupStudents(ctx, subGroupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sub-group students")
	}
	return users, nil
}

// AddStudents attaches users to a sub-group. Existing memberships are kept.
func (s *GroupService) AddStudents(ctx context.Context, subGroupID string, req dto.SubGroupStudentsRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return invalid(err, "invalid sub-group students payload")
	}
	if _, err := s.GetSubGroup(ctx, subGroupID); err != nil {
		return err
	}
	if err := s.repo.AddStudents(ctx, subGroupID, req.UserIDs); err != nil {
		return writeError(err, "failed to add sub-group students")
	}
	s.invalidate(ctx)
	return nil
}

// RemoveStudent detaches a user from a sub-group.
func (s *GroupService) RemoveStudent(ctx context.Context, subGroupID, userID string) error {
	if err := s.repo.RemoveStudent(ctx, subGroupID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove sub-group student")
	}
	s.invalidate(ctx)
	return nil
}

func (s *GroupService) ensureWritableYear(ctx context.Context, yearID string) error {
	year, err := s.years.FindByID(ctx, yearID)
	if err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrValidation, "academic year does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	if year.IsArchived {
		return appErrors.Clone(appErrors.ErrInvalidState, "academic year is archived")
	}
	return nil
}

func (s *GroupService) invalidate(ctx context.Context) {
	s.cache.Invalidate(ctx, groupsCachePattern)
}

func normalizeSession(raw *string) *string {
	if raw == nil {
		return nil
	}
	session, ok := models.ParseAcademicSession(*raw)
	if !ok {
		return raw
	}
	value := string(session)
	return &value
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
