package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

// schoolStore backs every repository the reconciler needs with the same in-memory state.
type schoolStore struct {
	years       []models.AcademicYear
	users       []models.User
	enrollments []*models.StudentEnrollment
	memberships []models.UserSubGroup
	assignments []models.TeachingAssignment
	failFor     string
	seq         int
}

func (s *schoolStore) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, error) {
	return s.years, nil
}

func (s *schoolStore) ListCurrent(ctx context.Context) ([]models.AcademicYear, error) {
	var out []models.AcademicYear
	for _, y := range s.years {
		if y.IsCurrent && !y.IsArchived {
			out = append(out, y)
		}
	}
	return out, nil
}

func (s *schoolStore) LatestArchived(ctx context.Context) (*models.AcademicYear, error) {
	var latest *models.AcademicYear
	for i := range s.years {
		y := &s.years[i]
		if y.IsArchived && (latest == nil || y.CreatedAt.After(latest.CreatedAt)) {
			latest = y
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

func (s *schoolStore) live() []*models.StudentEnrollment {
	var out []*models.StudentEnrollment
	for _, e := range s.enrollments {
		if e.DeletedAt == nil {
			out = append(out, e)
		}
	}
	return out
}

func (s *schoolStore) ListByRoles(ctx context.Context, roles []models.Role) ([]models.User, error) {
	var out []models.User
	for _, u := range s.users {
		if models.HasAnyRole(u.Role, roles...) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *schoolStore) ListWithoutYearEnrollment(ctx context.Context, yearID string, roles []models.Role) ([]models.User, error) {
	users, _ := s.ListByRoles(ctx, roles)
	var out []models.User
	for _, u := range users {
		found := false
		for _, e := range s.live() {
			if e.StudentID == u.ID && e.AcademicYearID == yearID {
				found = true
			}
		}
		if !found {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *schoolStore) ListWithoutEnrollment(ctx context.Context, roles []models.Role) ([]models.User, error) {
	users, _ := s.ListByRoles(ctx, roles)
	var out []models.User
	for _, u := range users {
		found := false
		for _, e := range s.enrollments {
			if e.StudentID == u.ID {
				found = true
			}
		}
		if !found {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *schoolStore) ListAll(ctx context.Context) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for _, e := range s.live() {
		out = append(out, models.EnrollmentDetail{StudentEnrollment: *e, FirstName: "F" + e.StudentID, LastName: "L" + e.StudentID})
	}
	return out, nil
}

func (s *schoolStore) Create(ctx context.Context, e *models.StudentEnrollment) error {
	if e.StudentID == s.failFor {
		return errors.New("boom")
	}
	for _, existing := range s.live() {
		if existing.StudentID == e.StudentID && existing.AcademicYearID == e.AcademicYearID && existing.Role == e.Role {
			return errors.New("duplicate enrollment")
		}
	}
	s.seq++
	e.ID = fmt.Sprintf("enr-%d", s.seq)
	e.CreatedAt = time.Date(2024, 1, 1, 0, 0, s.seq, 0, time.UTC)
	cp := *e
	s.enrollments = append(s.enrollments, &cp)
	return nil
}

func (s *schoolStore) Upsert(ctx context.Context, e *models.StudentEnrollment) error {
	for _, existing := range s.live() {
		if existing.StudentID == e.StudentID && existing.AcademicYearID == e.AcademicYearID && existing.Role == e.Role {
			existing.Status = e.Status
			return nil
		}
	}
	return s.Create(ctx, e)
}

func (s *schoolStore) ListDuplicated(ctx context.Context) ([]models.StudentEnrollment, error) {
	counts := map[string]int{}
	for _, e := range s.live() {
		counts[e.StudentID]++
	}
	var out []models.StudentEnrollment
	for _, e := range s.live() {
		if counts[e.StudentID] > 1 {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *schoolStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	for _, e := range s.enrollments {
		if e.ID == id {
			e.DeletedAt = &at
		}
	}
	return nil
}

func (s *schoolStore) ListUserSubGroups(ctx context.Context, userID, yearID string) ([]models.UserSubGroup, error) {
	var out []models.UserSubGroup
	for _, m := range s.memberships {
		if m.UserID == userID && m.AcademicYearID == yearID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *schoolStore) ListTeachingAssignments(ctx context.Context) ([]models.TeachingAssignment, error) {
	return s.assignments, nil
}

func (s *schoolStore) enrollmentsOf(userID string) []*models.StudentEnrollment {
	var out []*models.StudentEnrollment
	for _, e := range s.live() {
		if e.StudentID == userID {
			out = append(out, e)
		}
	}
	return out
}

func newReconciler(store *schoolStore) *EnrollmentReconciler {
	r := NewEnrollmentReconciler(store, store, store, store, store, NewMetricsService(), zap.NewNop())
	r.now = func() time.Time { return date(2024, time.November, 1) }
	return r
}

var (
	currentYear  = models.AcademicYear{ID: "cur", Name: "2024-2025", Session: models.SessionOctobre, IsCurrent: true, CreatedAt: date(2024, 6, 1)}
	archivedOld  = models.AcademicYear{ID: "old", Name: "2021-2022", Session: models.SessionOctobre, IsArchived: true, CreatedAt: date(2021, 6, 1)}
	archivedLast = models.AcademicYear{ID: "last", Name: "2022-2023", Session: models.SessionOctobre, IsArchived: true, CreatedAt: date(2022, 6, 1)}
)

func TestBackfillCurrentYearSetsMainSubGroup(t *testing.T) {
	store := &schoolStore{
		years:       []models.AcademicYear{currentYear},
		users:       []models.User{{ID: "st1", Role: models.RoleEleve}},
		memberships: []models.UserSubGroup{{UserID: "st1", SubGroupID: "sg1", GroupID: "g1", AcademicYearID: "cur"}},
	}

	report, err := newReconciler(store).BackfillCurrentYear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Changed)

	enrollments := store.enrollmentsOf("st1")
	require.Len(t, enrollments, 1)
	assert.Equal(t, "cur", enrollments[0].AcademicYearID)
	assert.Equal(t, models.RoleEleve, enrollments[0].Role)
	require.NotNil(t, enrollments[0].MainSubGroupID)
	assert.Equal(t, "sg1", *enrollments[0].MainSubGroupID)
}

func TestBackfillCurrentYearLeavesAmbiguousSubGroupEmpty(t *testing.T) {
	store := &schoolStore{
		years: []models.AcademicYear{currentYear},
		users: []models.User{{ID: "st1", Role: models.RoleEleve}, {ID: "p1", Role: models.RoleProf}},
		memberships: []models.UserSubGroup{
			{UserID: "st1", SubGroupID: "sg1", AcademicYearID: "cur"},
			{UserID: "st1", SubGroupID: "sg2", AcademicYearID: "cur"},
		},
	}

	_, err := newReconciler(store).BackfillCurrentYear(context.Background())
	require.NoError(t, err)
	require.Len(t, store.enrollmentsOf("st1"), 1)
	assert.Nil(t, store.enrollmentsOf("st1")[0].MainSubGroupID)
	require.Len(t, store.enrollmentsOf("p1"), 1)
	assert.Equal(t, models.RoleProf, store.enrollmentsOf("p1")[0].Role)
}

func TestBackfillCurrentYearIsIdempotent(t *testing.T) {
	store := &schoolStore{
		years: []models.AcademicYear{currentYear},
		users: []models.User{{ID: "st1", Role: models.RoleEleve}, {ID: "a1", Role: models.RoleAdmin}},
	}
	r := newReconciler(store)

	_, err := r.BackfillCurrentYear(context.Background())
	require.NoError(t, err)
	report, err := r.BackfillCurrentYear(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Len(t, store.live(), 2)
}

func TestBackfillCurrentYearAbortsWithoutSingleCurrentYear(t *testing.T) {
	otherCurrent := models.AcademicYear{ID: "fev", Name: "fev", Session: models.SessionFevrier, IsCurrent: true}
	for name, years := range map[string][]models.AcademicYear{
		"none":     {archivedOld},
		"multiple": {currentYear, otherCurrent},
	} {
		t.Run(name, func(t *testing.T) {
			store := &schoolStore{years: years, users: []models.User{{ID: "st1", Role: models.RoleEleve}}}
			_, err := newReconciler(store).BackfillCurrentYear(context.Background())
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
			assert.Empty(t, store.enrollments)
		})
	}
}

func TestBackfillCurrentYearContinuesAfterItemFailure(t *testing.T) {
	store := &schoolStore{
		years:   []models.AcademicYear{currentYear},
		users:   []models.User{{ID: "bad", Role: models.RoleEleve}, {ID: "st2", Role: models.RoleEleve}},
		failFor: "bad",
	}

	report, err := newReconciler(store).BackfillCurrentYear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Changed)
	assert.Len(t, store.enrollmentsOf("st2"), 1)
}

func TestDeduplicateEnrollmentsKeepsCurrentYear(t *testing.T) {
	store := &schoolStore{years: []models.AcademicYear{currentYear, archivedOld, archivedLast}}
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &models.StudentEnrollment{StudentID: "st1", AcademicYearID: "cur", Role: models.RoleEleve}))
	require.NoError(t, store.Create(ctx, &models.StudentEnrollment{StudentID: "st1", AcademicYearID: "old", Role: models.RoleEleve}))
	require.NoError(t, store.Create(ctx, &models.StudentEnrollment{StudentID: "st2", AcademicYearID: "old", Role: models.RoleEleve}))
	require.NoError(t, store.Create(ctx, &models.StudentEnrollment{StudentID: "st2", AcademicYearID: "last", Role: models.RoleEleve}))
	require.NoError(t, store.Create(ctx, &models.StudentEnrollment{StudentID: "st3", AcademicYearID: "cur", Role: models.RoleEleve}))
	r := newReconciler(store)

	report, err := r.DeduplicateEnrollments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Changed)

	require.Len(t, store.enrollmentsOf("st1"), 1)
	assert.Equal(t, "cur", store.enrollmentsOf("st1")[0].AcademicYearID)
	require.Len(t, store.enrollmentsOf("st2"), 1)
	assert.Equal(t, "last", store.enrollmentsOf("st2")[0].AcademicYearID)
	assert.Len(t, store.enrollmentsOf("st3"), 1)

	report, err = r.DeduplicateEnrollments(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
}

func TestMigrateOrphansUsesLatestArchivedYear(t *testing.T) {
	store := &schoolStore{
		years: []models.AcademicYear{currentYear, archivedOld, archivedLast},
		users: []models.User{{ID: "st1", Role: models.RoleEleve}, {ID: "p1", Role: models.RoleProf}, {ID: "a1", Role: models.RoleAdmin}},
	}
	r := newReconciler(store)

	report, err := r.MigrateOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Changed)
	for _, id := range []string{"st1", "p1"} {
		enrollments := store.enrollmentsOf(id)
		require.Len(t, enrollments, 1)
		assert.Equal(t, "last", enrollments[0].AcademicYearID)
		assert.Equal(t, models.EnrollmentStatusTermine, *enrollments[0].Status)
	}
	assert.Empty(t, store.enrollmentsOf("a1"))

	report, err = r.MigrateOrphans(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
}

func TestMigrateOrphansWithoutArchivedYearSkips(t *testing.T) {
	store := &schoolStore{years: []models.AcademicYear{currentYear}, users: []models.User{{ID: "st1", Role: models.RoleEleve}}}

	report, err := newReconciler(store).MigrateOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.NotEmpty(t, report.Notes)
	assert.Empty(t, store.enrollments)
}

func TestPopulateFromCourseAssignmentIsIdempotent(t *testing.T) {
	store := &schoolStore{
		years:       []models.AcademicYear{currentYear, archivedLast},
		users:       []models.User{{ID: "a1", Role: models.RoleAdmin}, {ID: "ad1", Role: models.RoleAdministratif}, {ID: "p1", Role: models.RoleProf}},
		assignments: []models.TeachingAssignment{{ProfessorID: "p1", AcademicYearID: "last"}, {ProfessorID: "p1", AcademicYearID: "ghost"}},
	}
	r := newReconciler(store)

	report, err := r.PopulateFromCourseAssignment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Changed)
	assert.Equal(t, 1, report.Skipped)
	before := len(store.live())

	_, err = r.PopulateFromCourseAssignment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, len(store.live()))

	for _, e := range store.enrollmentsOf("a1") {
		want := models.EnrollmentStatusTermine
		if e.AcademicYearID == "cur" {
			want = models.EnrollmentStatusEnCours
		}
		assert.Equal(t, want, *e.Status)
	}
	require.Len(t, store.enrollmentsOf("p1"), 1)
	assert.Equal(t, models.RoleProf, store.enrollmentsOf("p1")[0].Role)
}

func TestCheckAllEnrollmentsReportsWithoutChanges(t *testing.T) {
	store := &schoolStore{}
	require.NoError(t, store.Create(context.Background(), &models.StudentEnrollment{StudentID: "st1", AcademicYearID: "cur", Role: models.RoleEleve}))

	report, err := newReconciler(store).Run(context.Background(), dto.TaskCheck)
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, "Lst1 Fst1", report.Lines[0].StudentName)
	assert.Zero(t, report.Changed)

	_, err = newReconciler(store).Run(context.Background(), "explode")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
