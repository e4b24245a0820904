package database

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

func TestConstraintErrorNamesUniqueField(t *testing.T) {
	err := fmt.Errorf("create academic year: %w", &pq.Error{Code: "23505", Constraint: "academic_years_name_key"})

	appErr, ok := ConstraintError(err)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "name", appErr.Field)
	assert.True(t, IsUniqueViolation(err))
}

func TestConstraintErrorForeignKey(t *testing.T) {
	appErr, ok := ConstraintError(&pq.Error{Code: "23503", Constraint: "course_sessions_salle_id_fkey"})
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestConstraintErrorOverlappingSession(t *testing.T) {
	err := fmt.Errorf("create course session: %w", &pq.Error{Code: "23P01", Constraint: "course_sessions_room_overlap"})

	appErr, ok := ConstraintError(err)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "room", appErr.Field)
	assert.True(t, IsExclusionViolation(err))
	assert.False(t, IsUniqueViolation(err))
}

func TestConstraintErrorIgnoresOtherErrors(t *testing.T) {
	_, ok := ConstraintError(errors.New("connection reset"))
	assert.False(t, ok)
	assert.False(t, IsUniqueViolation(errors.New("connection reset")))
	assert.False(t, IsExclusionViolation(errors.New("connection reset")))
}
