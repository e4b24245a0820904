package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ecole-api/internal/models"
)

func TestEnrollmentUpsertTargetsPartialKey(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (student_id, academic_year_id, role) WHERE deleted_at IS NULL")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	status := models.EnrollmentStatusEnCours
	err := repo.Upsert(context.Background(), &models.StudentEnrollment{StudentID: "u1", AcademicYearID: "y1", Role: models.RoleAdmin, Status: &status})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentExistsForYear(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM student_enrollments").WithArgs("u1", "y1").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT 1 FROM student_enrollments").WithArgs("u2", "y1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsForYear(context.Background(), "u1", "y1")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsForYear(context.Background(), "u2", "y1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentListDuplicated(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "academic_year_id", "role", "main_sub_group_id", "status", "created_at", "updated_at", "deleted_at"}).
		AddRow("e2", "u1", "y2", "eleve", nil, nil, now, now, nil).
		AddRow("e1", "u1", "y1", "eleve", nil, nil, now.Add(-time.Hour), now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY student_id HAVING COUNT(*) > 1")).WillReturnRows(rows)

	enrollments, err := repo.ListDuplicated(context.Background())
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	assert.Equal(t, "e2", enrollments[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
