package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

// Entity kinds reported by an import run.
const (
	importKindGroups     = "groups"
	importKindSubGroups  = "subGroups"
	importKindCourses    = "courses"
	importKindProfessors = "professors"
	importKindUsers      = "users"
)

type importYearRepository interface {
	ListCurrent(ctx context.Context) ([]models.AcademicYear, error)
}

type importGroupRepository interface {
	FindByName(ctx context.Context, academicYearID, name string) (*models.Group, error)
	Create(ctx context.Context, group *models.Group) error
	Update(ctx context.Context, group *models.Group) error
	FindSubGroupByCode(ctx context.Context, groupID, code string) (*models.SubGroup, error)
	CreateSubGroup(ctx context.Context, sg *models.SubGroup) error
	UpdateSubGroup(ctx context.Context, sg *models.SubGroup) error
	AddStudents(ctx context.Context, subGroupID string, userIDs []string) error
}

type importCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByName(ctx context.Context, academicYearID, name string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
}

type importUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	CreateWithEnrollment(ctx context.Context, user *models.User, enrollment *models.StudentEnrollment) error
	Update(ctx context.Context, user *models.User) error
}

// ImportService applies a structure document to the current academic year, item by item.
type ImportService struct {
	years           importYearRepository
	groups          importGroupRepository
	courses         importCourseRepository
	users           importUserRepository
	cache           *CacheService
	validator       *validator.Validate
	logger          *zap.Logger
	defaultPassword string
	now             func() time.Time
}

// NewImportService constructs an ImportService. defaultPassword is used for users imported without one.
func NewImportService(years importYearRepository, groups importGroupRepository, courses importCourseRepository, users importUserRepository, cache *CacheService, defaultPassword string, validate *validator.Validate, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		years:           years,
		groups:          groups,
		courses:         courses,
		users:           users,
		cache:           cache,
		validator:       defaultValidator(validate),
		logger:          logger,
		defaultPassword: defaultPassword,
		now:             time.Now,
	}
}

// importRun carries the lookups built while walking the document.
type importRun struct {
	year   models.AcademicYear
	report *dto.ImportReport
	// "group/code" -> sub-group id
	subGroups map[string]string
	// bare code -> ids of every imported sub-group carrying it
	subGroupsByCode map[string][]string
	// course id -> professor emails not resolvable when the course was written
	pendingProfessors map[string][]string
}

func (r *importRun) count(kind string, apply func(*dto.ImportCount)) {
	c := r.report.Counts[kind]
	apply(&c)
	r.report.Counts[kind] = c
}

func (r *importRun) created(kind string) { r.count(kind, func(c *dto.ImportCount) { c.Created++ }) }
func (r *importRun) updated(kind string) { r.count(kind, func(c *dto.ImportCount) { c.Updated++ }) }

func subGroupRef(groupName, code string) string {
	return groupName + "/" + code
}

func (r *importRun) addSubGroup(groupName, code, id string) {
	r.subGroups[subGroupRef(groupName, code)] = id
	r.subGroupsByCode[code] = appendUnique(r.subGroupsByCode[code], id)
}

// resolveSubGroup accepts "group/code", or a bare code qualified by groupName. A bare code
// without a group only resolves when a single imported group carries it.
func (r *importRun) resolveSubGroup(ref string, groupName *string) (string, error) {
	ref = strings.TrimSpace(ref)
	if groupName != nil && *groupName != "" && !strings.Contains(ref, "/") {
		ref = subGroupRef(*groupName, ref)
	}
	if strings.Contains(ref, "/") {
		if id, ok := r.subGroups[ref]; ok {
			return id, nil
		}
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown sub-group %q", ref))
	}
	switch ids := r.subGroupsByCode[ref]; len(ids) {
	case 0:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown sub-group code %q", ref))
	case 1:
		return ids[0], nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("sub-group code %q exists in several groups, use \"group/%s\"", ref, ref))
	}
}

func (r *importRun) failed(kind, key string, err error) {
	r.count(kind, func(c *dto.ImportCount) { c.Failed++ })
	r.report.Issues = append(r.report.Issues, dto.ImportIssue{Kind: kind, Key: key, Message: appErrors.FromError(err).Message})
}

// Import upserts groups, sub-groups, courses, professors then users. Items already applied stay
// applied when a later one fails; failures are collected in the report.
func (s *ImportService) Import(ctx context.Context, doc dto.ImportDocument) (*dto.ImportReport, error) {
	if err := s.validator.Struct(doc); err != nil {
		return nil, invalid(err, "invalid import document")
	}
	current, err := s.years.ListCurrent(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve current academic year")
	}
	if len(current) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "no current academic year to import into")
	}

	run := &importRun{
		year: current[0],
		report: &dto.ImportReport{
			AcademicYearID: current[0].ID,
			Counts:         map[string]dto.ImportCount{},
		},
		subGroups:         map[string]string{},
		subGroupsByCode:   map[string][]string{},
		pendingProfessors: map[string][]string{},
	}

	for _, g := range doc.Groups {
		s.importGroup(ctx, run, g)
	}
	s.cache.Invalidate(ctx, groupsCachePattern)

	for _, c := range doc.Courses {
		s.importCourse(ctx, run, c)
	}
	for _, p := range doc.Professors {
		s.importUser(ctx, run, importKindProfessors, p, models.RoleProf)
	}
	s.linkPendingProfessors(ctx, run)
	for _, u := range doc.Users {
		role, ok := models.ParseRole(u.Role)
		if strings.TrimSpace(u.Role) == "" {
			role, ok = models.RoleEleve, true
		}
		if !ok {
			run.failed(importKindUsers, u.Email, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", u.Role)))
			continue
		}
		s.importUser(ctx, run, importKindUsers, u, role)
	}

	s.logger.Info("import finished",
		zap.String("academic_year_id", run.year.ID),
		zap.Int("issues", len(run.report.Issues)),
	)
	return run.report, nil
}

func (s *ImportService) importGroup(ctx context.Context, run *importRun, item dto.ImportGroup) {
	group, err := s.groups.FindByName(ctx, run.year.ID, item.Name)
	switch {
	case err == nil:
		if item.Label != nil {
			group.Label = item.Label
			if err := s.groups.Update(ctx, group); err != nil {
				run.failed(importKindGroups, item.Name, writeError(err, "failed to update group"))
				return
			}
		}
		run.updated(importKindGroups)
	case isNotFound(err):
		group = &models.Group{Name: item.Name, Label: item.Label, AcademicYearID: run.year.ID}
		if err := s.groups.Create(ctx, group); err != nil {
			run.failed(importKindGroups, item.Name, writeError(err, "failed to create group"))
			return
		}
		run.created(importKindGroups)
	default:
		run.failed(importKindGroups, item.Name, lookupError(err, "group not found", "failed to load group"))
		return
	}

	for _, sgItem := range item.SubGroups {
		key := subGroupRef(item.Name, sgItem.Code)
		sg, err := s.groups.FindSubGroupByCode(ctx, group.ID, sgItem.Code)
		switch {
		case err == nil:
			sg.Label, sg.Level, sg.Session = coalesce(sgItem.Label, sg.Label), coalesce(sgItem.Level, sg.Level), coalesce(sgItem.Session, sg.Session)
			if err := s.groups.UpdateSubGroup(ctx, sg); err != nil {
				run.failed(importKindSubGroups, key, writeError(err, "failed to update sub-group"))
				continue
			}
			run.updated(importKindSubGroups)
		case isNotFound(err):
			sg = &models.SubGroup{Code: sgItem.Code, Label: sgItem.Label, Level: sgItem.Level, Session: sgItem.Session, GroupID: group.ID}
			if err := s.groups.CreateSubGroup(ctx, sg); err != nil {
				run.failed(importKindSubGroups, key, writeError(err, "failed to create sub-group"))
				continue
			}
			run.created(importKindSubGroups)
		default:
			run.failed(importKindSubGroups, key, lookupError(err, "sub-group not found", "failed to load sub-group"))
			continue
		}
		run.addSubGroup(item.Name, sgItem.Code, sg.ID)
	}
}

func (s *ImportService) importCourse(ctx context.Context, run *importRun, item dto.ImportCourse) {
	course, err := s.courses.FindByName(ctx, run.year.ID, item.Name)
	isNew := false
	switch {
	case err == nil:
	case isNotFound(err):
		isNew = true
		course = &models.Course{Name: item.Name, AcademicYearID: run.year.ID, Coef: defaultCourseCoef}
	default:
		run.failed(importKindCourses, item.Name, lookupError(err, "course not found", "failed to load course"))
		return
	}

	course.Code = coalesce(item.Code, course.Code)
	course.Type = coalesce(item.Type, course.Type)
	course.Domain = coalesce(item.Domain, course.Domain)
	if item.TotalHours != nil {
		course.TotalHours = item.TotalHours
	}
	if item.TotalSessions != nil {
		course.TotalSessions = item.TotalSessions
	}
	if item.Coef != nil {
		course.Coef = *item.Coef
	}

	subGroupIDs := append([]string{}, course.SubGroupIDs...)
	for _, ref := range item.SubGroupCodes {
		id, err := run.resolveSubGroup(ref, nil)
		if err != nil {
			run.report.Issues = append(run.report.Issues, dto.ImportIssue{Kind: importKindCourses, Key: item.Name, Message: appErrors.FromError(err).Message})
			continue
		}
		subGroupIDs = appendUnique(subGroupIDs, id)
	}
	course.SubGroupIDs = subGroupIDs

	professorIDs := append([]string{}, course.ProfessorIDs...)
	var pending []string
	for _, email := range item.ProfessorEmails {
		prof, err := s.users.FindByEmail(ctx, email)
		if err != nil || prof.Role != models.RoleProf {
			pending = append(pending, email)
			continue
		}
		professorIDs = appendUnique(professorIDs, prof.ID)
	}
	course.ProfessorIDs = professorIDs

	if isNew {
		err = s.courses.Create(ctx, course)
	} else {
		err = s.courses.Update(ctx, course)
	}
	if err != nil {
		run.failed(importKindCourses, item.Name, writeError(err, "failed to save course"))
		return
	}
	if isNew {
		run.created(importKindCourses)
	} else {
		run.updated(importKindCourses)
	}
	if len(pending) > 0 {
		run.pendingProfessors[course.ID] = pending
	}
}

// linkPendingProfessors attaches professors imported after the courses that reference them.
func (s *ImportService) linkPendingProfessors(ctx context.Context, run *importRun) {
	for courseID, emails := range run.pendingProfessors {
		course, err := s.courses.FindByID(ctx, courseID)
		if err != nil {
			run.failed(importKindCourses, courseID, lookupError(err, "course not found", "failed to load course"))
			continue
		}
		linked := false
		for _, email := range emails {
			prof, err := s.users.FindByEmail(ctx, email)
			if err != nil || prof.Role != models.RoleProf {
				run.report.Issues = append(run.report.Issues, dto.ImportIssue{Kind: importKindCourses, Key: course.Name, Message: fmt.Sprintf("unknown professor %q", email)})
				continue
			}
			course.ProfessorIDs = appendUnique(course.ProfessorIDs, prof.ID)
			linked = true
		}
		if !linked {
			continue
		}
		if err := s.courses.Update(ctx, course); err != nil {
			run.failed(importKindCourses, course.Name, writeError(err, "failed to link course professors"))
		}
	}
}

func (s *ImportService) importUser(ctx context.Context, run *importRun, kind string, item dto.ImportUser, role models.Role) {
	var mainSubGroupID *string
	if item.SubGroupCode != nil && *item.SubGroupCode != "" {
		id, err := run.resolveSubGroup(*item.SubGroupCode, item.GroupName)
		if err != nil {
			run.failed(kind, item.Email, err)
			return
		}
		mainSubGroupID = &id
	}

	user, err := s.users.FindByEmail(ctx, item.Email)
	switch {
	case err == nil:
		user.FirstName, user.LastName = item.FirstName, item.LastName
		user.StudentNumber = coalesce(item.StudentNumber, user.StudentNumber)
		user.TeacherNumber = coalesce(item.TeacherNumber, user.TeacherNumber)
		user.UpdatedAt = s.now().UTC()
		if err := s.users.Update(ctx, user); err != nil {
			run.failed(kind, item.Email, writeError(err, "failed to update user"))
			return
		}
		if mainSubGroupID != nil {
			if err := s.groups.AddStudents(ctx, *mainSubGroupID, []string{user.ID}); err != nil {
				run.failed(kind, item.Email, writeError(err, "failed to link user sub-group"))
				return
			}
		}
		run.updated(kind)
	case isNotFound(err):
		password := item.Password
		if password == "" {
			password = s.defaultPassword
		}
		hash, err := HashPassword(password)
		if err != nil {
			run.failed(kind, item.Email, err)
			return
		}
		status := models.EnrollmentStatusEnCours
		user = &models.User{
			Email:         strings.ToLower(strings.TrimSpace(item.Email)),
			PasswordHash:  hash,
			FirstName:     item.FirstName,
			LastName:      item.LastName,
			Role:          role,
			StudentNumber: item.StudentNumber,
			TeacherNumber: item.TeacherNumber,
			Active:        true,
		}
		enrollment := &models.StudentEnrollment{AcademicYearID: run.year.ID, Role: role, MainSubGroupID: mainSubGroupID, Status: &status}
		if err := s.users.CreateWithEnrollment(ctx, user, enrollment); err != nil {
			run.failed(kind, item.Email, writeError(err, "failed to create user"))
			return
		}
		run.created(kind)
	default:
		run.failed(kind, item.Email, lookupError(err, "user not found", "failed to load user"))
	}
}

func coalesce(value, fallback *string) *string {
	if value != nil {
		return value
	}
	return fallback
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
