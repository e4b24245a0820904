package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/ecole-api/internal/models"
)

// NewValidator returns a validator with the school specific tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("academic_session", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseAcademicSession(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("presence_status", func(fl validator.FieldLevel) bool {
		_, ok := models.ParsePresenceStatus(fl.Field().String())
		return ok
	})
	return v
}

func defaultValidator(v *validator.Validate) *validator.Validate {
	if v == nil {
		return NewValidator()
	}
	return v
}
