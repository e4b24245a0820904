package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ecole-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userRowColumns = []string{"id", "email", "password_hash", "first_name", "last_name", "role", "student_number", "teacher_number", "date_of_birth", "phone", "active", "last_login", "created_at", "updated_at", "deleted_at"}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("u1", "awa@ecole.test", "hash", "Awa", "Diop", string(models.RoleEleve), nil, nil, nil, nil, true, nil, now, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users u WHERE lower(u.email) = lower($1) AND u.deleted_at IS NULL LIMIT 1")).
		WithArgs("Awa@Ecole.test").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "Awa@Ecole.test")
	require.NoError(t, err)
	assert.Equal(t, "awa@ecole.test", user.Email)
	assert.Equal(t, models.RoleEleve, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDReturnsNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("FROM users u WHERE u.id = \\$1").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithEnrollmentCommitsAllSteps(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	sg := "sg-1"
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO student_enrollments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO user_sub_groups").WithArgs(sqlmock.AnyArg(), sg).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	user := &models.User{Email: "awa@ecole.test", FirstName: "Awa", LastName: "Diop", Role: models.RoleEleve, Active: true}
	enrollment := &models.StudentEnrollment{AcademicYearID: "y1", Role: models.RoleEleve, MainSubGroupID: &sg}
	require.NoError(t, repo.CreateWithEnrollment(context.Background(), user, enrollment))
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, user.ID, enrollment.StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithEnrollmentRollsBackOnEnrollmentFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO student_enrollments").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.CreateWithEnrollment(context.Background(), &models.User{Email: "x@ecole.test", Role: models.RoleProf}, &models.StudentEnrollment{AcademicYearID: "y1", Role: models.RoleProf})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersAppliesFiltersAndPagination(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	role := models.RoleProf
	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM users u WHERE u.deleted_at IS NULL AND u.role = \\$1 AND .*LIKE \\$2.* ORDER BY u.last_name ASC LIMIT 10 OFFSET 10").
		WithArgs(role, "%diop%").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("p1", "p@ecole.test", "hash", "Moussa", "Diop", "prof", nil, nil, nil, nil, true, nil, now, now, nil))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users u").
		WithArgs(role, "%diop%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role, Search: "Diop", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateRefreshToken(context.Background(), &models.RefreshToken{UserID: "u1", Token: "token", ExpiresAt: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
