package service

import (
	"database/sql"
	"errors"

	"github.com/noah-isme/ecole-api/pkg/database"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

// lookupError maps a repository read failure to NotFound or Internal.
func lookupError(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

// writeError maps a repository write failure to Conflict/Validation when Postgres reports a constraint, Internal otherwise.
func writeError(err error, internal string) error {
	var existing *appErrors.Error
	if errors.As(err, &existing) {
		return existing
	}
	if appErr, ok := database.ConstraintError(err); ok {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func invalid(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
