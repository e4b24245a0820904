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

const courseSessionColumns = "cs.id, cs.course_id, cs.professor_id, cs.salle_id, cs.created_by_id, cs.date, cs.start_time, cs.end_time, cs.target_group_id, cs.target_sub_group_id, cs.created_at, cs.updated_at, cs.deleted_at"

// CourseSessionRepository persists planning entries.
type CourseSessionRepository struct {
	db *sqlx.DB
}

// NewCourseSessionRepository instantiates a course session repository.
func NewCourseSessionRepository(db *sqlx.DB) *CourseSessionRepository {
	return &CourseSessionRepository{db: db}
}

// List returns the sessions of a year visible under the filter, ordered by start time.
func (r *CourseSessionRepository) List(ctx context.Context, filter models.PlanningFilter) ([]models.CourseSessionDetail, error) {
	conditions := []string{"cs.deleted_at IS NULL"}
	var args []interface{}
	switch {
	case filter.AcademicYearID != "":
		conditions = append(conditions, fmt.Sprintf("c.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	case len(filter.AcademicYearIDs) > 0:
		conditions = append(conditions, fmt.Sprintf("c.academic_year_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.AcademicYearIDs))
	}
	if filter.ProfessorID != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(cs.professor_id = $%d OR EXISTS (SELECT 1 FROM course_professors cp WHERE cp.course_id = cs.course_id AND cp.professor_id = $%d))", idx, idx))
		args = append(args, filter.ProfessorID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.target_sub_group_id IN (SELECT sub_group_id FROM user_sub_groups WHERE user_id = $%d)", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("cs.start_time >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("cs.start_time < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	query := fmt.Sprintf(`SELECT %s, c.name AS course_name, c.academic_year_id,
NULLIF(TRIM(COALESCE(p.last_name, '') || ' ' || COALESCE(p.first_name, '')), '') AS professor_name,
rm.name AS room_name, sg.code AS sub_group_code
FROM course_sessions cs
JOIN courses c ON c.id = cs.course_id
LEFT JOIN users p ON p.id = cs.professor_id
LEFT JOIN rooms rm ON rm.id = cs.salle_id
LEFT JOIN sub_groups sg ON sg.id = cs.target_sub_group_id
WHERE %s ORDER BY cs.start_time`, courseSessionColumns, strings.Join(conditions, " AND "))

	var sessions []models.CourseSessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list course sessions: %w", err)
	}
	return sessions, nil
}

// FindByID loads a non-deleted session.
func (r *CourseSessionRepository) FindByID(ctx context.Context, id string) (*models.CourseSession, error) {
	var session models.CourseSession
	if err := r.db.GetContext(ctx, &session, "SELECT "+courseSessionColumns+" FROM course_sessions cs WHERE cs.id = $1 AND cs.deleted_at IS NULL", id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindOverlaps returns live sessions sharing the professor or the room within [start, end).
// excludeID skips the session being edited.
func (r *CourseSessionRepository) FindOverlaps(ctx context.Context, professorID, roomID *string, start, end time.Time, excludeID string) ([]models.BookingConflict, error) {
	if professorID == nil && roomID == nil {
		return nil, nil
	}
	const query = `SELECT id AS session_id,
CASE WHEN professor_id = $1 THEN 'professor' ELSE 'room' END AS dimension
FROM course_sessions
WHERE deleted_at IS NULL AND start_time < $4 AND end_time > $3
AND (professor_id = $1 OR salle_id = $2)
AND ($5 = '' OR id::text <> $5)
ORDER BY start_time`
	var conflicts []models.BookingConflict
	if err := r.db.SelectContext(ctx, &conflicts, query, professorID, roomID, start, end, excludeID); err != nil {
		return nil, fmt.Errorf("find overlapping sessions: %w", err)
	}
	return conflicts, nil
}

// Create inserts a session.
func (r *CourseSessionRepository) Create(ctx context.Context, session *models.CourseSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	const query = `INSERT INTO course_sessions (id, course_id, professor_id, salle_id, created_by_id, date, start_time, end_time, target_group_id, target_sub_group_id, created_at, updated_at) VALUES (:id, :course_id, :professor_id, :salle_id, :created_by_id, :date, :start_time, :end_time, :target_group_id, :target_sub_group_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create course session: %w", err)
	}
	return nil
}

// Update patches a session.
func (r *CourseSessionRepository) Update(ctx context.Context, session *models.CourseSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE course_sessions SET course_id = :course_id, professor_id = :professor_id, salle_id = :salle_id, date = :date, start_time = :start_time, end_time = :end_time, target_group_id = :target_group_id, target_sub_group_id = :target_sub_group_id, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update course session: %w", err)
	}
	return nil
}

// SoftDelete marks the session and its presences deleted.
func (r *CourseSessionRepository) SoftDelete(ctx context.Context, id string, at time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete session tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE presences SET deleted_at = $2, updated_at = $2 WHERE session_id = $1 AND deleted_at IS NULL`, id, at); err != nil {
		return fmt.Errorf("delete session presences: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE course_sessions SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at); err != nil {
		return fmt.Errorf("delete course session: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete session tx: %w", err)
	}
	return nil
}
