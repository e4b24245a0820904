package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

type fakeSessionRepo struct {
	sessions   []*models.CourseSession
	lastFilter models.PlanningFilter
	seq        int
	// beforeCreate runs ahead of each insert; a non-nil error aborts it.
	beforeCreate func() error
}

func (f *fakeSessionRepo) List(ctx context.Context, filter models.PlanningFilter) ([]models.CourseSessionDetail, error) {
	f.lastFilter = filter
	var out []models.CourseSessionDetail
	for _, s := range f.sessions {
		if s.DeletedAt == nil {
			out = append(out, models.CourseSessionDetail{CourseSession: *s, AcademicYearID: filter.AcademicYearID})
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) FindByID(ctx context.Context, id string) (*models.CourseSession, error) {
	for _, s := range f.sessions {
		if s.ID == id && s.DeletedAt == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSessionRepo) FindOverlaps(ctx context.Context, professorID, roomID *string, start, end time.Time, excludeID string) ([]models.BookingConflict, error) {
	var out []models.BookingConflict
	for _, s := range f.sessions {
		if s.DeletedAt != nil || s.ID == excludeID || !s.StartTime.Before(end) || !s.EndTime.After(start) {
			continue
		}
		switch {
		case professorID != nil && s.ProfessorID != nil && *s.ProfessorID == *professorID:
			out = append(out, models.BookingConflict{Dimension: models.ConflictDimensionProfessor, SessionID: s.ID})
		case roomID != nil && s.SalleID != nil && *s.SalleID == *roomID:
			out = append(out, models.BookingConflict{Dimension: models.ConflictDimensionRoom, SessionID: s.ID})
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) Create(ctx context.Context, session *models.CourseSession) error {
	if f.beforeCreate != nil {
		if err := f.beforeCreate(); err != nil {
			return err
		}
	}
	f.seq++
	session.ID = fmt.Sprintf("session-%d", f.seq)
	cp := *session
	f.sessions = append(f.sessions, &cp)
	return nil
}

func (f *fakeSessionRepo) Update(ctx context.Context, session *models.CourseSession) error {
	for i, s := range f.sessions {
		if s.ID == session.ID {
			cp := *session
			f.sessions[i] = &cp
		}
	}
	return nil
}

func (f *fakeSessionRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	for _, s := range f.sessions {
		if s.ID == id {
			s.DeletedAt = &at
		}
	}
	return nil
}

type fakeCourseLookup map[string]*models.Course

func (f fakeCourseLookup) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := f[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

type fakeSubGroupLookup map[string]*models.SubGroupWithYear

func (f fakeSubGroupLookup) FindSubGroup(ctx context.Context, id string) (*models.SubGroupWithYear, error) {
	sg, ok := f[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return sg, nil
}

func strPtr(s string) *string { return &s }

func newPlanningFixture(years ...models.AcademicYear) (*PlanningService, *fakeSessionRepo) {
	sessions := &fakeSessionRepo{}
	courses := fakeCourseLookup{
		"c1": {ID: "c1", Name: "Algebre", AcademicYearID: "y1"},
		"c2": {ID: "c2", Name: "Histoire", AcademicYearID: "y1"},
		"old": {ID: "old", Name: "Ancien", AcademicYearID: "y0"},
	}
	subGroups := fakeSubGroupLookup{
		"sg1": {SubGroup: models.SubGroup{ID: "sg1", Code: "L1-A", GroupID: "g1"}, AcademicYearID: "y1"},
	}
	svc := NewPlanningService(sessions, courses, subGroups, newFakeYearRepo(years...), nil, zap.NewNop())
	return svc, sessions
}

func slot(hour int) (time.Time, time.Time) {
	start := time.Date(2024, 11, 4, hour, 0, 0, 0, time.UTC)
	return start, start.Add(2 * time.Hour)
}

var staffActor = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

func TestPlanningServiceBulkCreateDerivesGroupAndReportsConflicts(t *testing.T) {
	svc, repo := newPlanningFixture()
	start, end := slot(8)
	laterStart, laterEnd := slot(9)

	report, err := svc.BulkCreate(context.Background(), staffActor, dto.BulkCreateSessionsRequest{Sessions: []dto.PlanningSessionInput{
		{CourseID: "c1", ProfessorID: strPtr("p1"), RoomID: strPtr("r1"), TargetSubGroupID: "sg1", Start: start, End: end},
		{CourseID: "c2", ProfessorID: strPtr("p1"), TargetSubGroupID: "sg1", Start: laterStart, End: laterEnd},
		{CourseID: "c2", ProfessorID: strPtr("p2"), RoomID: strPtr("r1"), TargetSubGroupID: "sg1", Start: laterStart, End: laterEnd},
		{CourseID: "missing", TargetSubGroupID: "sg1", Start: start, End: end},
		{CourseID: "c2", ProfessorID: strPtr("p1"), TargetSubGroupID: "sg1", Start: end, End: end.Add(time.Hour)},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 3, report.Failed)
	require.Len(t, report.Items, 5)

	assert.NotEmpty(t, report.Items[0].SessionID)
	require.Len(t, report.Items[1].Conflicts, 1)
	assert.Equal(t, models.ConflictDimensionProfessor, report.Items[1].Conflicts[0].Dimension)
	require.Len(t, report.Items[2].Conflicts, 1)
	assert.Equal(t, models.ConflictDimensionRoom, report.Items[2].Conflicts[0].Dimension)
	assert.NotEmpty(t, report.Items[3].Error)
	assert.NotEmpty(t, report.Items[4].SessionID)

	created := repo.sessions[0]
	require.NotNil(t, created.TargetGroupID)
	assert.Equal(t, "g1", *created.TargetGroupID)
	assert.Equal(t, "admin-1", created.CreatedByID)
	assert.Equal(t, time.Date(2024, 11, 4, 0, 0, 0, 0, time.UTC), created.Date)
}

func TestPlanningServiceBulkCreateRejectsCrossYearSubGroup(t *testing.T) {
	svc, _ := newPlanningFixture()
	start, end := slot(8)

	report, err := svc.BulkCreate(context.Background(), staffActor, dto.BulkCreateSessionsRequest{Sessions: []dto.PlanningSessionInput{
		{CourseID: "old", TargetSubGroupID: "sg1", Start: start, End: end},
		{CourseID: "c1", TargetSubGroupID: "", Start: start, End: end},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Zero(t, report.Created)
}

func TestPlanningServiceProfDefaultsToSelf(t *testing.T) {
	svc, repo := newPlanningFixture()
	start, end := slot(10)
	prof := &models.JWTClaims{UserID: "p9", Role: models.RoleProf}

	report, err := svc.BulkCreate(context.Background(), prof, dto.BulkCreateSessionsRequest{Sessions: []dto.PlanningSessionInput{
		{CourseID: "c1", TargetSubGroupID: "sg1", Start: start, End: end},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)
	require.NotNil(t, repo.sessions[0].ProfessorID)
	assert.Equal(t, "p9", *repo.sessions[0].ProfessorID)
}

func TestPlanningServiceUpdateRechecksConflicts(t *testing.T) {
	svc, _ := newPlanningFixture()
	ctx := context.Background()
	morningStart, morningEnd := slot(8)
	noonStart, noonEnd := slot(12)
	report, err := svc.BulkCreate(ctx, staffActor, dto.BulkCreateSessionsRequest{Sessions: []dto.PlanningSessionInput{
		{CourseID: "c1", ProfessorID: strPtr("p1"), TargetSubGroupID: "sg1", Start: morningStart, End: morningEnd},
		{CourseID: "c2", ProfessorID: strPtr("p1"), TargetSubGroupID: "sg1", Start: noonStart, End: noonEnd},
	}})
	require.NoError(t, err)
	require.Equal(t, 2, report.Created)

	moved := morningStart.Add(time.Hour)
	_, err = svc.Update(ctx, report.Items[1].SessionID, dto.UpdateSessionRequest{Start: &moved, End: &noonStart})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	updated, err := svc.Update(ctx, report.Items[0].SessionID, dto.UpdateSessionRequest{End: &moved})
	require.NoError(t, err)
	assert.Equal(t, moved, updated.EndTime)
}

func TestPlanningServiceConcurrentBookingReportsWinner(t *testing.T) {
	svc, repo := newPlanningFixture()
	start, end := slot(10)
	repo.beforeCreate = func() error {
		repo.beforeCreate = nil
		repo.sessions = append(repo.sessions, &models.CourseSession{ID: "winner", CourseID: "c2", SalleID: strPtr("r1"), StartTime: start, EndTime: end})
		return fmt.Errorf("create course session: %w", &pq.Error{Code: "23P01", Constraint: "course_sessions_room_overlap"})
	}

	report, err := svc.BulkCreate(context.Background(), staffActor, dto.BulkCreateSessionsRequest{Sessions: []dto.PlanningSessionInput{
		{CourseID: "c1", RoomID: strPtr("r1"), TargetSubGroupID: "sg1", Start: start, End: end},
	}})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Items[0].Conflicts, 1)
	assert.Equal(t, "winner", report.Items[0].Conflicts[0].SessionID)
	assert.Equal(t, models.ConflictDimensionRoom, report.Items[0].Conflicts[0].Dimension)
	assert.Len(t, repo.sessions, 1)
}

func TestPlanningServiceListVisibility(t *testing.T) {
	current := models.AcademicYear{ID: "y1", Name: "cur", Session: models.SessionOctobre, StartDate: date(2024, 10, 1), EndDate: date(2025, 7, 1), IsCurrent: true}
	svc, repo := newPlanningFixture(current)
	ctx := context.Background()

	_, err := svc.List(ctx, &models.JWTClaims{UserID: "p1", Role: models.RoleProf}, models.PlanningFilter{StudentID: "someone"})
	require.NoError(t, err)
	assert.Equal(t, []string{"y1"}, repo.lastFilter.AcademicYearIDs)
	assert.Equal(t, "p1", repo.lastFilter.ProfessorID)
	assert.Empty(t, repo.lastFilter.StudentID)

	_, err = svc.List(ctx, &models.JWTClaims{UserID: "s1", Role: models.RoleEleve}, models.PlanningFilter{})
	require.NoError(t, err)
	assert.Equal(t, "s1", repo.lastFilter.StudentID)
	assert.Empty(t, repo.lastFilter.ProfessorID)

	_, err = svc.List(ctx, staffActor, models.PlanningFilter{AcademicYearID: "y7"})
	require.NoError(t, err)
	assert.Equal(t, "y7", repo.lastFilter.AcademicYearID)
	assert.Empty(t, repo.lastFilter.ProfessorID)
}

func TestPlanningServiceListCoversEveryCurrentSession(t *testing.T) {
	svc, repo := newPlanningFixture(
		models.AcademicYear{ID: "oct", Name: "2024-2025", Session: models.SessionOctobre, StartDate: date(2024, 10, 1), EndDate: date(2025, 7, 1), IsCurrent: true},
		models.AcademicYear{ID: "fev", Name: "Fev 2025", Session: models.SessionFevrier, StartDate: date(2025, 2, 1), EndDate: date(2025, 12, 1), IsCurrent: true},
		models.AcademicYear{ID: "old", Name: "2023-2024", Session: models.SessionOctobre, StartDate: date(2023, 10, 1), EndDate: date(2024, 7, 1)},
	)
	ctx := context.Background()

	_, err := svc.List(ctx, staffActor, models.PlanningFilter{})
	require.NoError(t, err)
	assert.Empty(t, repo.lastFilter.AcademicYearID)
	assert.ElementsMatch(t, []string{"oct", "fev"}, repo.lastFilter.AcademicYearIDs)

	_, err = svc.List(ctx, staffActor, models.PlanningFilter{Session: models.SessionOctobre})
	require.NoError(t, err)
	assert.Equal(t, []string{"oct"}, repo.lastFilter.AcademicYearIDs)
}

func TestPlanningServiceListWithoutCurrentYearIsEmpty(t *testing.T) {
	svc, _ := newPlanningFixture()

	sessions, err := svc.List(context.Background(), staffActor, models.PlanningFilter{})
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestPlanningServiceDelete(t *testing.T) {
	svc, _ := newPlanningFixture()
	start, end := slot(8)
	report, err := svc.BulkCreate(context.Background(), staffActor, dto.BulkCreateSessionsRequest{Sessions: []dto.PlanningSessionInput{
		{CourseID: "c1", TargetSubGroupID: "sg1", Start: start, End: end},
	}})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), report.Items[0].SessionID))
	err = svc.Delete(context.Background(), report.Items[0].SessionID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
