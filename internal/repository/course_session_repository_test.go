package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ecole-api/internal/models"
)

func TestFindOverlapsReportsDimensions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseSessionRepository(db)

	prof := "p1"
	room := "r1"
	start := time.Date(2025, 10, 6, 8, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("AND (professor_id = $1 OR salle_id = $2)")).
		WithArgs(&prof, &room, start, end, "").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "dimension"}).
			AddRow("s1", models.ConflictDimensionProfessor).
			AddRow("s2", models.ConflictDimensionRoom))

	conflicts, err := repo.FindOverlaps(context.Background(), &prof, &room, start, end, "")
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	assert.Equal(t, models.ConflictDimensionProfessor, conflicts[0].Dimension)
	assert.Equal(t, "s2", conflicts[1].SessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOverlapsWithoutResourcesSkipsQuery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseSessionRepository(db)

	conflicts, err := repo.FindOverlaps(context.Background(), nil, nil, time.Now(), time.Now().Add(time.Hour), "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessionsForProfessorIncludesCoTeaching(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("(cs.professor_id = $2 OR EXISTS (SELECT 1 FROM course_professors cp WHERE cp.course_id = cs.course_id AND cp.professor_id = $2))")).
		WithArgs("y1", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	sessions, err := repo.List(context.Background(), models.PlanningFilter{AcademicYearID: "y1", ProfessorID: "p1"})
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessionsAcrossCurrentYears(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("c.academic_year_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	sessions, err := repo.List(context.Background(), models.PlanningFilter{AcademicYearIDs: []string{"oct", "fev"}})
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteSessionCascadesToPresences(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseSessionRepository(db)

	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE presences SET deleted_at").WithArgs("s1", at).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("UPDATE course_sessions SET deleted_at").WithArgs("s1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SoftDelete(context.Background(), "s1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
