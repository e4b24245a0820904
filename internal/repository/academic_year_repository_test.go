package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ecole-api/internal/models"
)

var yearRowColumns = []string{"id", "name", "session", "start_date", "end_date", "is_current", "is_archived", "archived_at", "archived_by_id", "created_at", "updated_at", "deleted_at"}

func TestAcademicYearSetCurrentDemotesSameSessionOnly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_years SET is_current = FALSE, updated_at = $1 WHERE session = $2 AND id <> $3")).
		WithArgs(sqlmock.AnyArg(), models.SessionOctobre, "y2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_years SET is_current = TRUE")).
		WithArgs(sqlmock.AnyArg(), "y2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetCurrent(context.Background(), "y2", models.SessionOctobre))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearSetCurrentRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE academic_years SET is_current = FALSE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE academic_years SET is_current = TRUE").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	require.Error(t, repo.SetCurrent(context.Background(), "y2", models.SessionFevrier))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearCreateCurrentDemotesAndInserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	year := &models.AcademicYear{ID: "y3", Name: "2025-2026", Session: models.SessionOctobre, StartDate: time.Now(), EndDate: time.Now().AddDate(1, 0, 0)}
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_years SET is_current = FALSE, updated_at = $1 WHERE session = $2 AND id <> $3")).
		WithArgs(sqlmock.AnyArg(), models.SessionOctobre, "y3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO academic_years")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateCurrent(context.Background(), year))
	assert.True(t, year.IsCurrent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearCreateCurrentRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE academic_years SET is_current = FALSE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO academic_years").WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := repo.CreateCurrent(context.Background(), &models.AcademicYear{Name: "2025-2026", Session: models.SessionFevrier})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearFindCurrentBySession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_current = TRUE AND is_archived = FALSE AND deleted_at IS NULL AND session = $1 ORDER BY start_date DESC LIMIT 1")).
		WithArgs(models.SessionFevrier).
		WillReturnRows(sqlmock.NewRows(yearRowColumns).AddRow("y1", "2025 Fev", "fevrier", now, now.AddDate(1, 0, 0), true, false, nil, nil, now, now, nil))

	year, err := repo.FindCurrent(context.Background(), models.SessionFevrier)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFevrier, year.Session)
	assert.True(t, year.IsCurrent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearArchiveClearsCurrency(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	actor := "admin-1"
	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("SET is_archived = TRUE, is_current = FALSE, archived_at = $2, archived_by_id = $3")).
		WithArgs("y1", at, &actor).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Archive(context.Background(), "y1", &actor, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearDemoteExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("SET is_current = FALSE, updated_at = $1 WHERE is_current = TRUE AND is_archived = FALSE AND deleted_at IS NULL AND end_date < $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	demoted, err := repo.DemoteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, demoted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
