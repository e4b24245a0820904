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

func TestGroupListAttachesSubGroups(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM groups WHERE deleted_at IS NULL AND academic_year_id = $1 ORDER BY name")).
		WithArgs("y1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "label", "academic_year_id", "created_at", "updated_at", "deleted_at"}).
			AddRow("g1", "L1", nil, "y1", now, now, nil).
			AddRow("g2", "L2", nil, "y1", now, now, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM sub_groups WHERE deleted_at IS NULL AND group_id = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "label", "level", "session", "group_id", "created_at", "updated_at", "deleted_at"}).
			AddRow("sg1", "L1-A", nil, nil, nil, "g1", now, now, nil))

	groups, err := repo.List(context.Background(), models.GroupFilter{AcademicYearID: "y1"})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Len(t, groups[0].SubGroups, 1)
	assert.Equal(t, "L1-A", groups[0].SubGroups[0].Code)
	assert.NotNil(t, groups[1].SubGroups)
	assert.Empty(t, groups[1].SubGroups)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupSoftDeleteCascadesToSubGroups(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sub_groups SET deleted_at").WithArgs("g1", at).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE groups SET deleted_at").WithArgs("g1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SoftDelete(context.Background(), "g1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
