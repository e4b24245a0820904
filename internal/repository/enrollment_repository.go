package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ecole-api/internal/models"
)

const enrollmentColumns = "e.id, e.student_id, e.academic_year_id, e.role, e.main_sub_group_id, e.status, e.created_at, e.updated_at, e.deleted_at"

// EnrollmentRepository manages student_enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns live enrollments joined with user and year details.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM student_enrollments e
JOIN users u ON u.id = e.student_id
JOIN academic_years y ON y.id = e.academic_year_id
WHERE e.deleted_at IS NULL`
	var conditions []string
	var args []interface{}
	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("e.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("e.role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s, u.email, u.first_name, u.last_name, y.name AS year_name, y.is_current, y.is_archived %s ORDER BY u.last_name, u.first_name LIMIT %d OFFSET %d", enrollmentColumns, base, size, offset)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListAll returns every live enrollment with its year flags for audit reports.
func (r *EnrollmentRepository) ListAll(ctx context.Context) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s, u.email, u.first_name, u.last_name, y.name AS year_name, y.is_current, y.is_archived
FROM student_enrollments e
JOIN users u ON u.id = e.student_id
JOIN academic_years y ON y.id = e.academic_year_id
WHERE e.deleted_at IS NULL
ORDER BY u.last_name, u.first_name, y.start_date`, enrollmentColumns)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query); err != nil {
		return nil, fmt.Errorf("list all enrollments: %w", err)
	}
	return enrollments, nil
}

// ExistsForYear reports whether the user has any live enrollment in the year.
func (r *EnrollmentRepository) ExistsForYear(ctx context.Context, studentID, academicYearID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM student_enrollments WHERE student_id = $1 AND academic_year_id = $2 AND deleted_at IS NULL LIMIT 1`, studentID, academicYearID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create inserts an enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.StudentEnrollment) error {
	return insertEnrollment(ctx, r.db, enrollment)
}

func insertEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollment *models.StudentEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO student_enrollments (id, student_id, academic_year_id, role, main_sub_group_id, status, created_at, updated_at) VALUES (:id, :student_id, :academic_year_id, :role, :main_sub_group_id, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Upsert inserts or refreshes the live enrollment keyed by (student, year, role).
func (r *EnrollmentRepository) Upsert(ctx context.Context, enrollment *models.StudentEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO student_enrollments (id, student_id, academic_year_id, role, main_sub_group_id, status, created_at, updated_at)
VALUES (:id, :student_id, :academic_year_id, :role, :main_sub_group_id, :status, :created_at, :updated_at)
ON CONFLICT (student_id, academic_year_id, role) WHERE deleted_at IS NULL
DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}
	return nil
}

// ListDuplicated returns live enrollments of students holding more than one, newest first per student.
func (r *EnrollmentRepository) ListDuplicated(ctx context.Context) ([]models.StudentEnrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_enrollments e
WHERE e.deleted_at IS NULL AND e.student_id IN (
	SELECT student_id FROM student_enrollments WHERE deleted_at IS NULL GROUP BY student_id HAVING COUNT(*) > 1
)
ORDER BY e.student_id, e.created_at DESC`, enrollmentColumns)
	var enrollments []models.StudentEnrollment
	if err := r.db.SelectContext(ctx, &enrollments, query); err != nil {
		return nil, fmt.Errorf("list duplicated enrollments: %w", err)
	}
	return enrollments, nil
}

// SoftDelete marks an enrollment deleted.
func (r *EnrollmentRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE student_enrollments SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}
