package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/ecole-api/internal/models"
)

const courseColumns = "c.id, c.name, c.code, c.type, c.domain, c.total_hours, c.total_sessions, c.coef, c.academic_year_id, c.filiere_id, c.created_at, c.updated_at, c.deleted_at"

// CourseRepository persists courses and their professor and sub-group links.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository instantiates a course repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns non-deleted courses matching the filter with links attached.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	conditions := []string{"c.deleted_at IS NULL"}
	var args []interface{}
	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("c.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.ProfessorID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM course_professors cp WHERE cp.course_id = c.id AND cp.professor_id = $%d)", len(args)+1))
		args = append(args, filter.ProfessorID)
	}
	if filter.SubGroupID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM course_sub_groups cs WHERE cs.course_id = c.id AND cs.sub_group_id = $%d)", len(args)+1))
		args = append(args, filter.SubGroupID)
	}

	query := fmt.Sprintf("SELECT %s FROM courses c WHERE %s ORDER BY c.name", courseColumns, strings.Join(conditions, " AND "))
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	if err := r.attachLinks(ctx, courses); err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *CourseRepository) attachLinks(ctx context.Context, courses []models.Course) error {
	if len(courses) == 0 {
		return nil
	}
	ids := make([]string, len(courses))
	for i := range courses {
		ids[i] = courses[i].ID
	}

	var professors []models.CourseLink
	if err := r.db.SelectContext(ctx, &professors, `SELECT course_id, professor_id AS target_id FROM course_professors WHERE course_id = ANY($1) ORDER BY professor_id`, pq.Array(ids)); err != nil {
		return fmt.Errorf("list course professors: %w", err)
	}
	var subGroups []models.CourseLink
	if err := r.db.SelectContext(ctx, &subGroups, `SELECT course_id, sub_group_id AS target_id FROM course_sub_groups WHERE course_id = ANY($1) ORDER BY sub_group_id`, pq.Array(ids)); err != nil {
		return fmt.Errorf("list course sub groups: %w", err)
	}

	profByCourse := groupLinks(professors)
	sgByCourse := groupLinks(subGroups)
	for i := range courses {
		courses[i].ProfessorIDs = nonNil(profByCourse[courses[i].ID])
		courses[i].SubGroupIDs = nonNil(sgByCourse[courses[i].ID])
	}
	return nil
}

func groupLinks(links []models.CourseLink) map[string][]string {
	out := make(map[string][]string)
	for _, l := range links {
		out[l.CourseID] = append(out[l.CourseID], l.TargetID)
	}
	return out
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// FindByID loads a non-deleted course with its links.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, "SELECT "+courseColumns+" FROM courses c WHERE c.id = $1 AND c.deleted_at IS NULL", id); err != nil {
		return nil, err
	}
	courses := []models.Course{course}
	if err := r.attachLinks(ctx, courses); err != nil {
		return nil, err
	}
	return &courses[0], nil
}

// FindByName looks a course up by name within a year.
func (r *CourseRepository) FindByName(ctx context.Context, academicYearID, name string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, "SELECT "+courseColumns+" FROM courses c WHERE c.academic_year_id = $1 AND c.name = $2 AND c.deleted_at IS NULL ORDER BY c.created_at LIMIT 1", academicYearID, name); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create inserts a course and its links in one transaction.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) (err error) {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create course tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO courses (id, name, code, type, domain, total_hours, total_sessions, coef, academic_year_id, filiere_id, created_at, updated_at) VALUES (:id, :name, :code, :type, :domain, :total_hours, :total_sessions, :coef, :academic_year_id, :filiere_id, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	if err = replaceCourseLinks(ctx, tx, course); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create course tx: %w", err)
	}
	return nil
}

// Update modifies a course and replaces its links in one transaction.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) (err error) {
	course.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update course tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE courses SET name = :name, code = :code, type = :type, domain = :domain, total_hours = :total_hours, total_sessions = :total_sessions, coef = :coef, filiere_id = :filiere_id, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err = tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if err = replaceCourseLinks(ctx, tx, course); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update course tx: %w", err)
	}
	return nil
}

func replaceCourseLinks(ctx context.Context, tx *sqlx.Tx, course *models.Course) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM course_professors WHERE course_id = $1`, course.ID); err != nil {
		return fmt.Errorf("clear course professors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM course_sub_groups WHERE course_id = $1`, course.ID); err != nil {
		return fmt.Errorf("clear course sub groups: %w", err)
	}
	for _, professorID := range course.ProfessorIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO course_professors (course_id, professor_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, course.ID, professorID); err != nil {
			return fmt.Errorf("link course professor: %w", err)
		}
	}
	for _, subGroupID := range course.SubGroupIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO course_sub_groups (course_id, sub_group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, course.ID, subGroupID); err != nil {
			return fmt.Errorf("link course sub group: %w", err)
		}
	}
	return nil
}

// SoftDelete marks a course deleted.
func (r *CourseRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE courses SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// ListTeachingAssignments returns distinct (professor, year) pairs derived from course links.
func (r *CourseRepository) ListTeachingAssignments(ctx context.Context) ([]models.TeachingAssignment, error) {
	const query = `SELECT DISTINCT cp.professor_id, c.academic_year_id
FROM course_professors cp
JOIN courses c ON c.id = cp.course_id AND c.deleted_at IS NULL
JOIN users u ON u.id = cp.professor_id AND u.deleted_at IS NULL
ORDER BY c.academic_year_id, cp.professor_id`
	var assignments []models.TeachingAssignment
	if err := r.db.SelectContext(ctx, &assignments, query); err != nil {
		return nil, fmt.Errorf("list teaching assignments: %w", err)
	}
	return assignments, nil
}
