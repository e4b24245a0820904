package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
)

// ExportRepository reads every live row for the full dump.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository instantiates an export repository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Dump loads all entities with their links. There is no pagination.
func (r *ExportRepository) Dump(ctx context.Context) (*dto.ExportDump, error) {
	dump := &dto.ExportDump{ExportedAt: time.Now().UTC()}

	steps := []struct {
		name  string
		dest  interface{}
		query string
	}{
		{"academic years", &dump.AcademicYears, "SELECT " + academicYearColumns + " FROM academic_years WHERE deleted_at IS NULL ORDER BY start_date"},
		{"groups", &dump.Groups, "SELECT " + groupColumns + " FROM groups WHERE deleted_at IS NULL ORDER BY academic_year_id, name"},
		{"filieres", &dump.Filieres, "SELECT " + filiereColumns + " FROM filieres WHERE deleted_at IS NULL ORDER BY academic_year_id, code"},
		{"courses", &dump.Courses, "SELECT " + courseColumns + " FROM courses c WHERE c.deleted_at IS NULL ORDER BY c.academic_year_id, c.name"},
		{"rooms", &dump.Rooms, "SELECT id, name, capacity, created_at, updated_at FROM rooms ORDER BY name"},
		{"users", &dump.Users, "SELECT " + userColumns + " FROM users u WHERE u.deleted_at IS NULL ORDER BY u.last_name, u.first_name"},
		{"enrollments", &dump.Enrollments, "SELECT " + enrollmentColumns + " FROM student_enrollments e WHERE e.deleted_at IS NULL ORDER BY e.academic_year_id, e.student_id"},
		{"sessions", &dump.Sessions, "SELECT " + courseSessionColumns + " FROM course_sessions cs WHERE cs.deleted_at IS NULL ORDER BY cs.start_time"},
		{"presences", &dump.Presences, "SELECT id, session_id, student_id, status, justified, reason, validated_by_admin, created_at, updated_at, deleted_at FROM presences WHERE deleted_at IS NULL ORDER BY session_id, student_id"},
		{"notes", &dump.Notes, "SELECT id, student_id, course_id, session_id, valeur, commentaire, created_at, updated_at, deleted_at FROM notes WHERE deleted_at IS NULL ORDER BY created_at"},
	}
	for _, step := range steps {
		if err := r.db.SelectContext(ctx, step.dest, step.query); err != nil {
			return nil, fmt.Errorf("export %s: %w", step.name, err)
		}
	}

	var subGroups []models.SubGroup
	if err := r.db.SelectContext(ctx, &subGroups, "SELECT "+subGroupColumns+" FROM sub_groups WHERE deleted_at IS NULL ORDER BY code"); err != nil {
		return nil, fmt.Errorf("export sub groups: %w", err)
	}
	byGroup := make(map[string][]models.SubGroup)
	for _, sg := range subGroups {
		byGroup[sg.GroupID] = append(byGroup[sg.GroupID], sg)
	}
	for i := range dump.Groups {
		dump.Groups[i].SubGroups = nonNilSubGroups(byGroup[dump.Groups[i].ID])
	}

	courseRepo := &CourseRepository{db: r.db}
	if err := courseRepo.attachLinks(ctx, dump.Courses); err != nil {
		return nil, err
	}
	return dump, nil
}

func nonNilSubGroups(sgs []models.SubGroup) []models.SubGroup {
	if sgs == nil {
		return []models.SubGroup{}
	}
	return sgs
}
