package service

import (
	"bytes"
	"context"
	"database/sql"
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

type fakePresenceRepo struct {
	rows    map[string]*models.Presence
	updates int
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{rows: map[string]*models.Presence{}}
}

func (f *fakePresenceRepo) ReplaceForSession(ctx context.Context, sessionID string, presences []models.Presence) error {
	keep := map[string]bool{}
	for _, p := range presences {
		keep[p.StudentID] = true
	}
	now := time.Now()
	for _, row := range f.rows {
		if row.SessionID == sessionID && !keep[row.StudentID] {
			row.DeletedAt = &now
		}
	}
	for _, p := range presences {
		key := sessionID + "/" + p.StudentID
		existing, ok := f.rows[key]
		if ok {
			existing.Status = p.Status
			existing.Justified = p.Justified
			existing.Reason = p.Reason
			existing.DeletedAt = nil
			continue
		}
		cp := p
		cp.ID = key
		cp.SessionID = sessionID
		f.rows[key] = &cp
		f.updates++
	}
	return nil
}

func (f *fakePresenceRepo) live(match func(*models.Presence) bool) []models.PresenceDetail {
	var out []models.PresenceDetail
	for _, row := range f.rows {
		if row.DeletedAt == nil && match(row) {
			out = append(out, models.PresenceDetail{Presence: *row, LastName: "Nom " + row.StudentID, FirstName: row.StudentID, CourseName: "Algebre"})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

func (f *fakePresenceRepo) ListBySession(ctx context.Context, sessionID string) ([]models.PresenceDetail, error) {
	return f.live(func(p *models.Presence) bool { return p.SessionID == sessionID }), nil
}

func (f *fakePresenceRepo) ListByStudent(ctx context.Context, studentID string) ([]models.PresenceDetail, error) {
	return f.live(func(p *models.Presence) bool { return p.StudentID == studentID }), nil
}

func (f *fakePresenceRepo) CountByStatus(ctx context.Context, sessionID string) ([]models.PresenceCount, error) {
	counts := map[models.PresenceStatus]int{}
	for _, row := range f.live(func(p *models.Presence) bool { return p.SessionID == sessionID }) {
		counts[row.Status]++
	}
	var out []models.PresenceCount
	for status, total := range counts {
		out = append(out, models.PresenceCount{Status: status, Total: total})
	}
	return out, nil
}

func (f *fakePresenceRepo) FindByID(ctx context.Context, id string) (*models.Presence, error) {
	row, ok := f.rows[id]
	if !ok || row.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	cp := *row
	return &cp, nil
}

func (f *fakePresenceRepo) UpdateJustification(ctx context.Context, p *models.Presence) error {
	cp := *p
	f.rows[p.ID] = &cp
	return nil
}

type fakeSessionLookup map[string]*models.CourseSession

func (f fakeSessionLookup) FindByID(ctx context.Context, id string) (*models.CourseSession, error) {
	s, ok := f[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func newAttendanceFixture() (*AttendanceService, *fakePresenceRepo) {
	repo := newFakePresenceRepo()
	start := time.Date(2024, 11, 4, 8, 0, 0, 0, time.UTC)
	sessions := fakeSessionLookup{"s1": {ID: "s1", CourseID: "c1", ProfessorID: strPtr("p1"), StartTime: start, EndTime: start.Add(2 * time.Hour)}}
	return NewAttendanceService(repo, sessions, nil, zap.NewNop()), repo
}

func boolPtr(b bool) *bool { return &b }

func TestAttendanceServiceMarkSessionIsIdempotent(t *testing.T) {
	svc, repo := newAttendanceFixture()
	ctx := context.Background()
	req := dto.MarkSessionRequest{Presences: []dto.PresenceInput{
		{StudentID: "st1", Status: "present"},
		{StudentID: "st2", Status: "justifie"},
		{StudentID: "st3", Status: "absent", Justified: boolPtr(true), Reason: strPtr("certificat")},
	}}

	first, err := svc.MarkSession(ctx, staffActor, "s1", req)
	require.NoError(t, err)
	second, err := svc.MarkSession(ctx, staffActor, "s1", req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, repo.rows, 3)
	assert.False(t, second[0].Justified)
	assert.True(t, second[1].Justified)
	assert.True(t, second[2].Justified)
}

func TestAttendanceServiceMarkSessionReplacesMissingStudents(t *testing.T) {
	svc, _ := newAttendanceFixture()
	ctx := context.Background()

	_, err := svc.MarkSession(ctx, staffActor, "s1", dto.MarkSessionRequest{Presences: []dto.PresenceInput{
		{StudentID: "st1", Status: "present"}, {StudentID: "st2", Status: "absent"},
	}})
	require.NoError(t, err)

	rows, err := svc.MarkSession(ctx, staffActor, "s1", dto.MarkSessionRequest{Presences: []dto.PresenceInput{
		{StudentID: "st2", Status: "retard"},
	}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "st2", rows[0].StudentID)
	assert.Equal(t, models.PresenceRetard, rows[0].Status)
}

func TestAttendanceServiceMarkSessionRejections(t *testing.T) {
	svc, _ := newAttendanceFixture()
	ctx := context.Background()

	_, err := svc.MarkSession(ctx, staffActor, "s1", dto.MarkSessionRequest{Presences: []dto.PresenceInput{{StudentID: "st1", Status: "sick"}}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.MarkSession(ctx, staffActor, "s1", dto.MarkSessionRequest{Presences: []dto.PresenceInput{
		{StudentID: "st1", Status: "present"}, {StudentID: "st1", Status: "absent"},
	}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.MarkSession(ctx, &models.JWTClaims{UserID: "p2", Role: models.RoleProf}, "s1", dto.MarkSessionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.MarkSession(ctx, staffActor, "missing", dto.MarkSessionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceSummary(t *testing.T) {
	svc, _ := newAttendanceFixture()
	ctx := context.Background()
	_, err := svc.MarkSession(ctx, &models.JWTClaims{UserID: "p1", Role: models.RoleProf}, "s1", dto.MarkSessionRequest{Presences: []dto.PresenceInput{
		{StudentID: "st1", Status: "present"},
		{StudentID: "st2", Status: "retard"},
		{StudentID: "st3", Status: "absent"},
		{StudentID: "st4", Status: "justifie"},
	}})
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Counts[models.PresenceAbsent])
	assert.InDelta(t, 0.5, summary.AttendanceRate, 1e-9)
}

func TestAttendanceServiceListByStudentSelfCheck(t *testing.T) {
	svc, _ := newAttendanceFixture()
	ctx := context.Background()

	_, err := svc.ListByStudent(ctx, &models.JWTClaims{UserID: "st1", Role: models.RoleEleve}, "st2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	rows, err := svc.ListByStudent(ctx, &models.JWTClaims{UserID: "st1", Role: models.RoleEleve}, "st1")
	require.NoError(t, err)
	assert.NotNil(t, rows)

	_, err = svc.ListByStudent(ctx, &models.JWTClaims{UserID: "p1", Role: models.RoleProf}, "st2")
	require.NoError(t, err)
}

func TestAttendanceServiceJustify(t *testing.T) {
	svc, repo := newAttendanceFixture()
	ctx := context.Background()
	_, err := svc.MarkSession(ctx, staffActor, "s1", dto.MarkSessionRequest{Presences: []dto.PresenceInput{{StudentID: "st1", Status: "absent"}}})
	require.NoError(t, err)

	presence, err := svc.Justify(ctx, "s1/st1", dto.JustifyPresenceRequest{Validated: true, Reason: strPtr("rendez-vous medical")})
	require.NoError(t, err)
	assert.Equal(t, models.PresenceJustifie, presence.Status)
	require.NotNil(t, repo.rows["s1/st1"].ValidatedByAdmin)
	assert.True(t, *repo.rows["s1/st1"].ValidatedByAdmin)
	assert.True(t, repo.rows["s1/st1"].Justified)
}

func TestAttendanceServiceSheet(t *testing.T) {
	svc, _ := newAttendanceFixture()
	ctx := context.Background()
	_, err := svc.MarkSession(ctx, staffActor, "s1", dto.MarkSessionRequest{Presences: []dto.PresenceInput{{StudentID: "st1", Status: "present"}}})
	require.NoError(t, err)

	csvOut, name, err := svc.AttendanceSheet(ctx, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "appel-20241104-0800.csv", name)
	assert.Contains(t, string(csvOut), "Nom st1;st1;present;non;")

	pdfOut, name, err := svc.AttendanceSheet(ctx, "s1", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "appel-20241104-0800.pdf", name)
	assert.True(t, bytes.HasPrefix(pdfOut, []byte("%PDF")))

	_, _, err = svc.AttendanceSheet(ctx, "s1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
