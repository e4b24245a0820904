package dto

// CreateGroupRequest is the payload for creating a group.
type CreateGroupRequest struct {
	Name           string  `json:"name" validate:"required"`
	Label          *string `json:"label"`
	AcademicYearID string  `json:"academicYearId" validate:"required"`
}

// UpdateGroupRequest patches a group.
type UpdateGroupRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1"`
	Label *string `json:"label"`
}

// SubGroupRequest is the payload for creating or replacing a sub-group.
type SubGroupRequest struct {
	Code       string   `json:"code" validate:"required"`
	Label      *string  `json:"label"`
	Level      *string  `json:"level"`
	Session    *string  `json:"session" validate:"omitempty,academic_session"`
	GroupID    string   `json:"groupId" validate:"required"`
	FiliereIDs []string `json:"filiereIds" validate:"omitempty,dive,required"`
}

// SubGroupStudentsRequest attaches students to a sub-group.
type SubGroupStudentsRequest struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,dive,required"`
}

// FiliereRequest is the payload for creating or replacing a filiere.
type FiliereRequest struct {
	Code           string  `json:"code" validate:"required"`
	Label          *string `json:"label"`
	AcademicYearID string  `json:"academicYearId" validate:"required"`
	LevelID        *string `json:"levelId"`
}

// CourseRequest is the payload for creating or replacing a course.
type CourseRequest struct {
	Name           string   `json:"name" validate:"required"`
	Code           *string  `json:"code"`
	Type           *string  `json:"type"`
	Domain         *string  `json:"domain"`
	TotalHours     *int     `json:"totalHours" validate:"omitempty,min=0"`
	TotalSessions  *int     `json:"totalSessions" validate:"omitempty,min=0"`
	Coef           *float64 `json:"coef" validate:"omitempty,gt=0"`
	AcademicYearID string   `json:"academicYearId" validate:"required"`
	FiliereID      *string  `json:"filiereId"`
	ProfessorIDs   []string `json:"professorIds" validate:"omitempty,dive,required"`
	SubGroupIDs    []string `json:"subGroupIds" validate:"omitempty,dive,required"`
}

// RoomRequest is the payload for creating or replacing a room.
type RoomRequest struct {
	Name     string `json:"name" validate:"required"`
	Capacity *int   `json:"capacity" validate:"omitempty,min=0"`
}
