package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/ecole-api/internal/models"
)

const presenceDetailQuery = `SELECT p.id, p.session_id, p.student_id, p.status, p.justified, p.reason, p.validated_by_admin, p.created_at, p.updated_at, p.deleted_at,
u.first_name, u.last_name, c.id AS course_id, c.name AS course_name, cs.start_time AS session_start
FROM presences p
JOIN users u ON u.id = p.student_id
JOIN course_sessions cs ON cs.id = p.session_id
JOIN courses c ON c.id = cs.course_id
WHERE p.deleted_at IS NULL`

// PresenceRepository persists attendance marks.
type PresenceRepository struct {
	db *sqlx.DB
}

// NewPresenceRepository instantiates a presence repository.
func NewPresenceRepository(db *sqlx.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

// ReplaceForSession makes the live marks of a session equal to presences.
// Rows are upserted on (session_id, student_id) and students missing from the list are soft-deleted.
func (r *PresenceRepository) ReplaceForSession(ctx context.Context, sessionID string, presences []models.Presence) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark session tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	studentIDs := make([]string, 0, len(presences))
	for _, p := range presences {
		studentIDs = append(studentIDs, p.StudentID)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE presences SET deleted_at = $3, updated_at = $3 WHERE session_id = $1 AND deleted_at IS NULL AND NOT (student_id = ANY($2::uuid[]))`, sessionID, pq.Array(studentIDs), now); err != nil {
		return fmt.Errorf("clear stale presences: %w", err)
	}

	const upsert = `INSERT INTO presences (id, session_id, student_id, status, justified, reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (session_id, student_id)
DO UPDATE SET status = EXCLUDED.status, justified = EXCLUDED.justified, reason = EXCLUDED.reason, deleted_at = NULL, updated_at = EXCLUDED.updated_at`
	for i := range presences {
		p := &presences[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.SessionID = sessionID
		if _, err = tx.ExecContext(ctx, upsert, p.ID, sessionID, p.StudentID, p.Status, p.Justified, p.Reason, now); err != nil {
			return fmt.Errorf("upsert presence: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit mark session tx: %w", err)
	}
	return nil
}

// ListBySession returns the live marks of a session ordered by student name.
func (r *PresenceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.PresenceDetail, error) {
	var rows []models.PresenceDetail
	if err := r.db.SelectContext(ctx, &rows, presenceDetailQuery+" AND p.session_id = $1 ORDER BY u.last_name, u.first_name", sessionID); err != nil {
		return nil, fmt.Errorf("list session presences: %w", err)
	}
	return rows, nil
}

// ListByStudent returns the live marks of a student, most recent session first.
func (r *PresenceRepository) ListByStudent(ctx context.Context, studentID string) ([]models.PresenceDetail, error) {
	var rows []models.PresenceDetail
	if err := r.db.SelectContext(ctx, &rows, presenceDetailQuery+" AND p.student_id = $1 ORDER BY cs.start_time DESC", studentID); err != nil {
		return nil, fmt.Errorf("list student presences: %w", err)
	}
	return rows, nil
}

// CountByStatus aggregates the live marks of a session per status.
func (r *PresenceRepository) CountByStatus(ctx context.Context, sessionID string) ([]models.PresenceCount, error) {
	var counts []models.PresenceCount
	if err := r.db.SelectContext(ctx, &counts, `SELECT status, COUNT(*) AS total FROM presences WHERE session_id = $1 AND deleted_at IS NULL GROUP BY status`, sessionID); err != nil {
		return nil, fmt.Errorf("count session presences: %w", err)
	}
	return counts, nil
}

// FindByID loads a live mark.
func (r *PresenceRepository) FindByID(ctx context.Context, id string) (*models.Presence, error) {
	var p models.Presence
	if err := r.db.GetContext(ctx, &p, `SELECT id, session_id, student_id, status, justified, reason, validated_by_admin, created_at, updated_at, deleted_at FROM presences WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateJustification records the staff decision on an absence.
func (r *PresenceRepository) UpdateJustification(ctx context.Context, p *models.Presence) error {
	p.UpdatedAt = time.Now().UTC()
	const query = `UPDATE presences SET status = :status, justified = :justified, reason = :reason, validated_by_admin = :validated_by_admin, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("update presence justification: %w", err)
	}
	return nil
}
