package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

type academicYearRepository interface {
	List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, error)
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	FindCurrent(ctx context.Context, session models.AcademicSession) (*models.AcademicYear, error)
	ListFinished(ctx context.Context, now time.Time) ([]models.AcademicYear, error)
	Create(ctx context.Context, year *models.AcademicYear) error
	CreateCurrent(ctx context.Context, year *models.AcademicYear) error
	Update(ctx context.Context, year *models.AcademicYear) error
	SetCurrent(ctx context.Context, id string, session models.AcademicSession) error
	Archive(ctx context.Context, id string, actorID *string, at time.Time) error
	Unarchive(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	DemoteExpired(ctx context.Context, now time.Time) (int64, error)
}

type structureGroupRepository interface {
	List(ctx context.Context, filter models.GroupFilter) ([]models.Group, error)
	FindByName(ctx context.Context, academicYearID, name string) (*models.Group, error)
	Create(ctx context.Context, group *models.Group) error
	FindSubGroupByCode(ctx context.Context, groupID, code string) (*models.SubGroup, error)
	CreateSubGroup(ctx context.Context, sg *models.SubGroup) error
}

type structureCourseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	FindByName(ctx context.Context, academicYearID, name string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
}

type auditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AcademicYearService governs the current/archived lifecycle of academic years.
type AcademicYearService struct {
	repo      academicYearRepository
	groups    structureGroupRepository
	courses   structureCourseRepository
	audit     auditRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAcademicYearService creates the lifecycle service.
func NewAcademicYearService(repo academicYearRepository, groups structureGroupRepository, courses structureCourseRepository, audit auditRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AcademicYearService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicYearService{
		repo:      repo,
		groups:    groups,
		courses:   courses,
		audit:     audit,
		cache:     cache,
		validator: defaultValidator(validate),
		logger:    logger,
		now:       time.Now,
	}
}

// List returns non-deleted years.
func (s *AcademicYearService) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, error) {
	years, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}
	return years, nil
}

// Get returns a year by ID.
func (s *AcademicYearService) Get(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "academic year not found", "failed to load academic year")
	}
	return year, nil
}

// GetCurrent returns the current year, optionally for a session.
func (s *AcademicYearService) GetCurrent(ctx context.Context, rawSession string) (*models.AcademicYear, error) {
	var session models.AcademicSession
	if rawSession != "" {
		parsed, ok := models.ParseAcademicSession(rawSession)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "session must be octobre or fevrier")
		}
		session = parsed
	}
	year, err := s.repo.FindCurrent(ctx, session)
	if err != nil {
		return nil, lookupError(err, "no current academic year", "failed to load current academic year")
	}
	return year, nil
}

// Finished lists non-archived years whose end date has passed.
func (s *AcademicYearService) Finished(ctx context.Context) ([]models.AcademicYear, error) {
	years, err := s.repo.ListFinished(ctx, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list finished academic years")
	}
	return years, nil
}

// Create inserts a year. A year requested as current is inserted together with the demotion of
// its session's current year, so a failure leaves nothing behind.
func (s *AcademicYearService) Create(ctx context.Context, req dto.CreateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid academic year payload")
	}
	session, _ := models.ParseAcademicSession(req.Session)

	year := &models.AcademicYear{
		Name:      req.Name,
		Session:   session,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	create := s.repo.Create
	if req.IsCurrent {
		create = s.repo.CreateCurrent
	}
	if err := create(ctx, year); err != nil {
		return nil, writeError(err, "failed to create academic year")
	}
	return year, nil
}

// Update changes descriptive fields. Archived years are immutable.
func (s *AcademicYearService) Update(ctx context.Context, id string, req dto.UpdateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid academic year payload")
	}
	year, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if year.IsArchived {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "archived academic year cannot be modified")
	}

	if req.Name != nil {
		year.Name = *req.Name
	}
	if req.Session != nil {
		session, _ := models.ParseAcademicSession(*req.Session)
		if year.IsCurrent && session != year.Session {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot change the session of the current year")
		}
		year.Session = session
	}
	if req.StartDate != nil {
		year.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		year.EndDate = *req.EndDate
	}
	if !year.StartDate.Before(year.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "startDate must be before endDate")
	}

	if err := s.repo.Update(ctx, year); err != nil {
		return nil, writeError(err, "failed to update academic year")
	}
	return year, nil
}

// SetCurrent makes the year the only current one of its session.
func (s *AcademicYearService) SetCurrent(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if year.IsArchived {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot activate an archived academic year")
	}
	if err := s.repo.SetCurrent(ctx, year.ID, year.Session); err != nil {
		return nil, writeError(err, "failed to activate academic year")
	}
	year.IsCurrent = true
	s.logger.Info("academic year activated", zap.String("academic_year_id", year.ID), zap.String("session", string(year.Session)))
	return year, nil
}

// Archive archives the year. The current year requires force, which also clears currency.
// An archived year is returned as is.
func (s *AcademicYearService) Archive(ctx context.Context, id string, force bool, actor *models.JWTClaims) (*models.AcademicYear, error) {
	year, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if year.IsArchived {
		return year, nil
	}
	if year.IsCurrent && !force {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot archive the active year")
	}

	at := s.now().UTC()
	var actorID *string
	if actor != nil && actor.UserID != "" {
		uid := actor.UserID
		actorID = &uid
	}
	if err := s.repo.Archive(ctx, year.ID, actorID, at); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive academic year")
	}

	year.IsArchived = true
	year.IsCurrent = false
	year.ArchivedAt = &at
	year.ArchivedByID = actorID
	s.recordAudit(ctx, actorID, models.AuditActionYearArchive, year.ID, map[string]interface{}{"force": force})
	return year, nil
}

// Unarchive clears archival fields. It never restores currency.
func (s *AcademicYearService) Unarchive(ctx context.Context, id string, actor *models.JWTClaims) (*models.AcademicYear, error) {
	year, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !year.IsArchived {
		return year, nil
	}
	if err := s.repo.Unarchive(ctx, year.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unarchive academic year")
	}
	year.IsArchived = false
	year.ArchivedAt = nil
	year.ArchivedByID = nil

	var actorID *string
	if actor != nil && actor.UserID != "" {
		uid := actor.UserID
		actorID = &uid
	}
	s.recordAudit(ctx, actorID, models.AuditActionYearUnarchive, year.ID, nil)
	return year, nil
}

// Delete soft deletes a non-current year.
func (s *AcademicYearService) Delete(ctx context.Context, id string) error {
	year, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if year.IsCurrent {
		return appErrors.Clone(appErrors.ErrInvalidState, "cannot delete the current academic year")
	}
	if err := s.repo.SoftDelete(ctx, year.ID, s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete academic year")
	}
	return nil
}

// Recompute demotes current years that have ended and returns the finished, non-archived years.
// It never archives.
func (s *AcademicYearService) Recompute(ctx context.Context, now time.Time) (*dto.RecomputeResult, error) {
	demoted, err := s.repo.DemoteExpired(ctx, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to demote expired academic years")
	}
	finished, err := s.repo.ListFinished(ctx, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list finished academic years")
	}
	if finished == nil {
		finished = []models.AcademicYear{}
	}
	if demoted > 0 {
		s.logger.Info("expired academic years demoted", zap.Int64("count", demoted))
	}
	return &dto.RecomputeResult{Demoted: demoted, Finished: finished}, nil
}

// CloneStructure copies groups (with sub-groups) or courses (with links) from the source year.
// Entities already present in the target under the same natural key are skipped, so re-running is safe.
func (s *AcademicYearService) CloneStructure(ctx context.Context, targetYearID string, req dto.CloneStructureRequest) (*dto.CloneReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid clone payload")
	}
	if req.SourceYearID == targetYearID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "source and target years must differ")
	}
	target, err := s.Get(ctx, targetYearID)
	if err != nil {
		return nil, err
	}
	if target.IsArchived {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot clone into an archived academic year")
	}
	if _, err := s.repo.FindByID(ctx, req.SourceYearID); err != nil {
		return nil, lookupError(err, "source academic year not found", "failed to load source academic year")
	}

	report := &dto.CloneReport{TargetYearID: target.ID, SourceYearID: req.SourceYearID, What: req.What}
	switch models.CloneTarget(req.What) {
	case models.CloneGroups:
		err = s.cloneGroups(ctx, req.SourceYearID, target.ID, report)
		s.cache.Invalidate(ctx, groupsCachePattern)
	case models.CloneCourses:
		err = s.cloneCourses(ctx, req.SourceYearID, target.ID, report)
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *AcademicYearService) cloneGroups(ctx context.Context, sourceID, targetID string, report *dto.CloneReport) error {
	groups, err := s.groups.List(ctx, models.GroupFilter{AcademicYearID: sourceID})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list source groups")
	}
	for _, src := range groups {
		dst, err := s.groups.FindByName(ctx, targetID, src.Name)
		switch {
		case err == nil:
			report.Skipped++
		case errors.Is(err, sql.ErrNoRows):
			dst = &models.Group{Name: src.Name, Label: src.Label, AcademicYearID: targetID}
			if err := s.groups.Create(ctx, dst); err != nil {
				s.cloneFailure(report, fmt.Sprintf("group %s", src.Name), err)
				continue
			}
			report.Created++
		default:
			s.cloneFailure(report, fmt.Sprintf("group %s", src.Name), err)
			continue
		}

		for _, srcSG := range src.SubGroups {
			if _, err := s.groups.FindSubGroupByCode(ctx, dst.ID, srcSG.Code); err == nil {
				report.Skipped++
				continue
			} else if !errors.Is(err, sql.ErrNoRows) {
				s.cloneFailure(report, fmt.Sprintf("sub-group %s/%s", src.Name, srcSG.Code), err)
				continue
			}
			sg := &models.SubGroup{Code: srcSG.Code, Label: srcSG.Label, Level: srcSG.Level, Session: srcSG.Session, GroupID: dst.ID}
			if err := s.groups.CreateSubGroup(ctx, sg); err != nil {
				s.cloneFailure(report, fmt.Sprintf("sub-group %s/%s", src.Name, srcSG.Code), err)
				continue
			}
			report.Created++
		}
	}
	return nil
}

func (s *AcademicYearService) cloneCourses(ctx context.Context, sourceID, targetID string, report *dto.CloneReport) error {
	courses, err := s.courses.List(ctx, models.CourseFilter{AcademicYearID: sourceID})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list source courses")
	}
	subGroupMap, err := s.subGroupTranslation(ctx, sourceID, targetID)
	if err != nil {
		return err
	}

	for _, src := range courses {
		if _, err := s.courses.FindByName(ctx, targetID, src.Name); err == nil {
			report.Skipped++
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			s.cloneFailure(report, "course "+src.Name, err)
			continue
		}

		clone := src
		clone.ID = ""
		clone.AcademicYearID = targetID
		clone.FiliereID = nil
		clone.ProfessorIDs = append([]string(nil), src.ProfessorIDs...)
		clone.SubGroupIDs = nil
		for _, sgID := range src.SubGroupIDs {
			if mapped, ok := subGroupMap[sgID]; ok {
				clone.SubGroupIDs = append(clone.SubGroupIDs, mapped)
			}
		}
		if err := s.courses.Create(ctx, &clone); err != nil {
			s.cloneFailure(report, "course "+src.Name, err)
			continue
		}
		report.Created++
	}
	return nil
}

// subGroupTranslation maps source sub-group IDs to the target sub-group with the same group name and code.
func (s *AcademicYearService) subGroupTranslation(ctx context.Context, sourceID, targetID string) (map[string]string, error) {
	sourceGroups, err := s.groups.List(ctx, models.GroupFilter{AcademicYearID: sourceID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list source groups")
	}
	targetGroups, err := s.groups.List(ctx, models.GroupFilter{AcademicYearID: targetID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list target groups")
	}
	byKey := make(map[string]string)
	for _, g := range targetGroups {
		for _, sg := range g.SubGroups {
			byKey[g.Name+"/"+sg.Code] = sg.ID
		}
	}
	out := make(map[string]string)
	for _, g := range sourceGroups {
		for _, sg := range g.SubGroups {
			if id, ok := byKey[g.Name+"/"+sg.Code]; ok {
				out[sg.ID] = id
			}
		}
	}
	return out, nil
}

func (s *AcademicYearService) cloneFailure(report *dto.CloneReport, item string, err error) {
	report.Failed++
	report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", item, err))
	s.logger.Warn("clone item failed", zap.String("item", item), zap.Error(err))
}

func (s *AcademicYearService) recordAudit(ctx context.Context, actorID *string, action, yearID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	resourceID := yearID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     actorID,
		Action:     action,
		Resource:   "academic_year",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record academic year audit log", zap.String("action", action), zap.Error(err))
	}
}
