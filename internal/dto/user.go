package dto

import "time"

// CreateUserRequest creates a user and enrolls it in a year.
// Without AcademicYearID the current year is used.
type CreateUserRequest struct {
	Email          string     `json:"email" validate:"required,email"`
	Password       string     `json:"password" validate:"required,min=6"`
	FirstName      string     `json:"firstName" validate:"required"`
	LastName       string     `json:"lastName" validate:"required"`
	Role           string     `json:"role" validate:"required,oneof=admin administratif prof eleve"`
	StudentNumber  *string    `json:"studentNumber"`
	TeacherNumber  *string    `json:"teacherNumber"`
	DateOfBirth    *time.Time `json:"dateOfBirth"`
	Phone          *string    `json:"phone"`
	AcademicYearID string     `json:"academicYearId"`
	MainSubGroupID *string    `json:"mainSubGroupId"`
}

// UpdateUserRequest patches a user profile.
type UpdateUserRequest struct {
	Email         *string    `json:"email" validate:"omitempty,email"`
	FirstName     *string    `json:"firstName" validate:"omitempty,min=1"`
	LastName      *string    `json:"lastName" validate:"omitempty,min=1"`
	Role          *string    `json:"role" validate:"omitempty,oneof=admin administratif prof eleve"`
	StudentNumber *string    `json:"studentNumber"`
	TeacherNumber *string    `json:"teacherNumber"`
	DateOfBirth   *time.Time `json:"dateOfBirth"`
	Phone         *string    `json:"phone"`
	Active        *bool      `json:"active"`
}
