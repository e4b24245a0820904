package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeExclusionViolation  = "23P01"
)

// constraintFields maps unique index names from the migrations to the request field they guard.
var constraintFields = map[string]string{
	"users_email_key":                    "email",
	"academic_years_name_key":            "name",
	"academic_years_current_per_session": "is_current",
	"groups_year_name_key":               "name",
	"sub_groups_group_code_key":          "code",
	"filieres_code_year_key":             "code",
	"rooms_name_key":                     "name",
	"student_enrollments_key":            "student_id",
	"presences_session_student_key":      "student_id",
}

// overlapDimensions maps the course session exclusion constraints to the booked dimension.
var overlapDimensions = map[string]string{
	"course_sessions_professor_overlap": "professor",
	"course_sessions_room_overlap":      "room",
}

// ConstraintError translates Postgres integrity violations into typed errors.
// It returns false for anything else so callers fall back to an internal error.
func ConstraintError(err error) (*appErrors.Error, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil, false
	}
	switch string(pqErr.Code) {
	case codeUniqueViolation:
		field := constraintFields[pqErr.Constraint]
		msg := "duplicate value"
		if field != "" {
			msg = fmt.Sprintf("%s already exists", field)
		}
		return appErrors.Conflict(field, msg), true
	case codeForeignKeyViolation:
		return appErrors.Validation(err, "referenced entity does not exist"), true
	case codeCheckViolation:
		return appErrors.Validation(err, "value violates constraint "+pqErr.Constraint), true
	case codeExclusionViolation:
		dimension := overlapDimensions[pqErr.Constraint]
		if dimension == "" {
			return appErrors.Conflict("", "overlapping value"), true
		}
		return appErrors.Conflict(dimension, fmt.Sprintf("%s is already booked in this time range", dimension)), true
	}
	return nil, false
}

// IsExclusionViolation reports whether err is a Postgres exclusion constraint violation.
func IsExclusionViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == codeExclusionViolation
}

// IsUniqueViolation reports whether err is a Postgres unique violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == codeUniqueViolation
}
