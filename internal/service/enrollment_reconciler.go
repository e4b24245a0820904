package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

type reconcileYearRepository interface {
	List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, error)
	ListCurrent(ctx context.Context) ([]models.AcademicYear, error)
	LatestArchived(ctx context.Context) (*models.AcademicYear, error)
}

type reconcileUserRepository interface {
	ListByRoles(ctx context.Context, roles []models.Role) ([]models.User, error)
	ListWithoutYearEnrollment(ctx context.Context, academicYearID string, roles []models.Role) ([]models.User, error)
	ListWithoutEnrollment(ctx context.Context, roles []models.Role) ([]models.User, error)
}

type reconcileEnrollmentRepository interface {
	ListAll(ctx context.Context) ([]models.EnrollmentDetail, error)
	Create(ctx context.Context, enrollment *models.StudentEnrollment) error
	Upsert(ctx context.Context, enrollment *models.StudentEnrollment) error
	ListDuplicated(ctx context.Context) ([]models.StudentEnrollment, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type membershipRepository interface {
	ListUserSubGroups(ctx context.Context, userID, academicYearID string) ([]models.UserSubGroup, error)
}

type teachingRepository interface {
	ListTeachingAssignments(ctx context.Context) ([]models.TeachingAssignment, error)
}

// EnrollmentReconciler runs the batch procedures keeping enrollments aligned with users and years.
// Every procedure is best effort: a failing item is logged and counted, the sweep goes on.
type EnrollmentReconciler struct {
	years       reconcileYearRepository
	users       reconcileUserRepository
	enrollments reconcileEnrollmentRepository
	memberships membershipRepository
	teaching    teachingRepository
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentReconciler constructs the reconciler.
func NewEnrollmentReconciler(years reconcileYearRepository, users reconcileUserRepository, enrollments reconcileEnrollmentRepository, memberships membershipRepository, teaching teachingRepository, metrics *MetricsService, logger *zap.Logger) *EnrollmentReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentReconciler{
		years:       years,
		users:       users,
		enrollments: enrollments,
		memberships: memberships,
		teaching:    teaching,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Tasks lists the procedures accepted by Run.
func (r *EnrollmentReconciler) Tasks() []string {
	return []string{dto.TaskBackfill, dto.TaskDedupe, dto.TaskOrphans, dto.TaskPopulate, dto.TaskCheck}
}

// Run dispatches a procedure by name.
func (r *EnrollmentReconciler) Run(ctx context.Context, task string) (*dto.ReconcileReport, error) {
	switch task {
	case dto.TaskBackfill:
		return r.BackfillCurrentYear(ctx)
	case dto.TaskDedupe:
		return r.DeduplicateEnrollments(ctx)
	case dto.TaskOrphans:
		return r.MigrateOrphans(ctx)
	case dto.TaskPopulate:
		return r.PopulateFromCourseAssignment(ctx)
	case dto.TaskCheck:
		return r.CheckAllEnrollments(ctx)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown maintenance task %q", task))
	}
}

// BackfillCurrentYear enrolls every active user lacking an enrollment in the single current year.
// The main sub-group is set only when the user belongs to exactly one sub-group of that year.
func (r *EnrollmentReconciler) BackfillCurrentYear(ctx context.Context) (*dto.ReconcileReport, error) {
	report := &dto.ReconcileReport{Task: dto.TaskBackfill}
	current, err := r.years.ListCurrent(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list current academic years")
	}
	if len(current) != 1 {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("expected exactly one current academic year, found %d", len(current)))
	}
	year := current[0]

	users, err := r.users.ListWithoutYearEnrollment(ctx, year.ID, models.AllRoles)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users without enrollment")
	}
	status := models.EnrollmentStatusEnCours
	for _, user := range users {
		report.Processed++
		enrollment := &models.StudentEnrollment{StudentID: user.ID, AcademicYearID: year.ID, Role: user.Role, Status: &status}

		memberships, err := r.memberships.ListUserSubGroups(ctx, user.ID, year.ID)
		if err != nil {
			r.itemFailed(report, user.ID, err)
			continue
		}
		if len(memberships) == 1 {
			sgID := memberships[0].SubGroupID
			enrollment.MainSubGroupID = &sgID
		}
		if err := r.enrollments.Create(ctx, enrollment); err != nil {
			r.itemFailed(report, user.ID, err)
			continue
		}
		r.itemChanged(report)
	}
	r.finish(report)
	return report, nil
}

// DeduplicateEnrollments keeps one live enrollment per student: the one in a current year,
// otherwise the newest.
func (r *EnrollmentReconciler) DeduplicateEnrollments(ctx context.Context) (*dto.ReconcileReport, error) {
	report := &dto.ReconcileReport{Task: dto.TaskDedupe}
	current, err := r.years.ListCurrent(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list current academic years")
	}
	currentIDs := make(map[string]struct{}, len(current))
	for _, y := range current {
		currentIDs[y.ID] = struct{}{}
	}

	duplicated, err := r.enrollments.ListDuplicated(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list duplicated enrollments")
	}

	var order []string
	byStudent := make(map[string][]models.StudentEnrollment)
	for _, e := range duplicated {
		if _, ok := byStudent[e.StudentID]; !ok {
			order = append(order, e.StudentID)
		}
		byStudent[e.StudentID] = append(byStudent[e.StudentID], e)
	}

	at := r.now().UTC()
	for _, studentID := range order {
		rows := byStudent[studentID]
		keep := pickEnrollmentToKeep(rows, currentIDs)
		for _, e := range rows {
			report.Processed++
			if e.ID == keep {
				r.itemSkipped(report)
				continue
			}
			if err := r.enrollments.SoftDelete(ctx, e.ID, at); err != nil {
				r.itemFailed(report, e.ID, err)
				continue
			}
			r.itemChanged(report)
		}
	}
	r.finish(report)
	return report, nil
}

// pickEnrollmentToKeep expects rows newest first.
func pickEnrollmentToKeep(rows []models.StudentEnrollment, currentIDs map[string]struct{}) string {
	for _, e := range rows {
		if _, ok := currentIDs[e.AcademicYearID]; ok {
			return e.ID
		}
	}
	newest := rows[0]
	for _, e := range rows[1:] {
		if e.CreatedAt.After(newest.CreatedAt) {
			newest = e
		}
	}
	return newest.ID
}

// MigrateOrphans enrolls students and professors that never had an enrollment into the most
// recently created archived year.
func (r *EnrollmentReconciler) MigrateOrphans(ctx context.Context) (*dto.ReconcileReport, error) {
	report := &dto.ReconcileReport{Task: dto.TaskOrphans}
	orphans, err := r.users.ListWithoutEnrollment(ctx, []models.Role{models.RoleEleve, models.RoleProf})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list orphan users")
	}
	if len(orphans) == 0 {
		r.finish(report)
		return report, nil
	}

	year, err := r.years.LatestArchived(ctx)
	if err != nil {
		if !isNotFound(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load archived academic year")
		}
		report.Processed = len(orphans)
		report.Skipped = len(orphans)
		report.Notes = append(report.Notes, "no archived academic year to attach orphans to")
		r.logger.Warn("orphan migration skipped: no archived academic year", zap.Int("orphans", len(orphans)))
		r.finish(report)
		return report, nil
	}

	status := models.EnrollmentStatusTermine
	for _, user := range orphans {
		report.Processed++
		enrollment := &models.StudentEnrollment{StudentID: user.ID, AcademicYearID: year.ID, Role: user.Role, Status: &status}
		if err := r.enrollments.Create(ctx, enrollment); err != nil {
			r.itemFailed(report, user.ID, err)
			continue
		}
		r.itemChanged(report)
	}
	r.finish(report)
	return report, nil
}

// PopulateFromCourseAssignment enrolls staff in every year and professors in the years they teach.
func (r *EnrollmentReconciler) PopulateFromCourseAssignment(ctx context.Context) (*dto.ReconcileReport, error) {
	report := &dto.ReconcileReport{Task: dto.TaskPopulate}
	years, err := r.years.List(ctx, models.AcademicYearFilter{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}
	staff, err := r.users.ListByRoles(ctx, models.StaffRoles)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list staff users")
	}
	assignments, err := r.teaching.ListTeachingAssignments(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teaching assignments")
	}

	yearByID := make(map[string]models.AcademicYear, len(years))
	for _, year := range years {
		yearByID[year.ID] = year
		for _, user := range staff {
			r.upsert(ctx, report, user.ID, year, user.Role)
		}
	}
	for _, a := range assignments {
		year, ok := yearByID[a.AcademicYearID]
		if !ok {
			report.Processed++
			r.itemSkipped(report)
			continue
		}
		r.upsert(ctx, report, a.ProfessorID, year, models.RoleProf)
	}
	r.finish(report)
	return report, nil
}

func (r *EnrollmentReconciler) upsert(ctx context.Context, report *dto.ReconcileReport, userID string, year models.AcademicYear, role models.Role) {
	report.Processed++
	status := models.EnrollmentStatusTermine
	if year.IsCurrent {
		status = models.EnrollmentStatusEnCours
	}
	enrollment := &models.StudentEnrollment{StudentID: userID, AcademicYearID: year.ID, Role: role, Status: &status}
	if err := r.enrollments.Upsert(ctx, enrollment); err != nil {
		r.itemFailed(report, userID, err)
		return
	}
	r.itemChanged(report)
}

// CheckAllEnrollments lists every live enrollment with its year flags. It changes nothing.
func (r *EnrollmentReconciler) CheckAllEnrollments(ctx context.Context) (*dto.ReconcileReport, error) {
	report := &dto.ReconcileReport{Task: dto.TaskCheck, Lines: []dto.EnrollmentCheckLine{}}
	rows, err := r.enrollments.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	for _, row := range rows {
		report.Processed++
		report.Lines = append(report.Lines, dto.EnrollmentCheckLine{
			EnrollmentID: row.ID,
			StudentID:    row.StudentID,
			StudentName:  (models.User{FirstName: row.FirstName, LastName: row.LastName}).FullName(),
			Role:         string(row.Role),
			YearName:     row.YearName,
			IsCurrent:    row.IsCurrent,
			IsArchived:   row.IsArchived,
		})
	}
	r.finish(report)
	return report, nil
}

func (r *EnrollmentReconciler) itemChanged(report *dto.ReconcileReport) {
	report.Changed++
	r.metrics.RecordReconcileItem(report.Task, "changed")
}

func (r *EnrollmentReconciler) itemSkipped(report *dto.ReconcileReport) {
	report.Skipped++
	r.metrics.RecordReconcileItem(report.Task, "skipped")
}

func (r *EnrollmentReconciler) itemFailed(report *dto.ReconcileReport, id string, err error) {
	report.Failed++
	r.metrics.RecordReconcileItem(report.Task, "failed")
	r.logger.Warn("enrollment reconciliation item failed", zap.String("task", report.Task), zap.String("id", id), zap.Error(err))
}

func (r *EnrollmentReconciler) finish(report *dto.ReconcileReport) {
	r.logger.Info("enrollment reconciliation finished",
		zap.String("task", report.Task),
		zap.Int("processed", report.Processed),
		zap.Int("changed", report.Changed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
}
