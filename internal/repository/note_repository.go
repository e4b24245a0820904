package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ecole-api/internal/models"
)

// NoteRepository persists grades.
type NoteRepository struct {
	db *sqlx.DB
}

// NewNoteRepository instantiates a note repository.
func NewNoteRepository(db *sqlx.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

// List returns live notes with course details.
func (r *NoteRepository) List(ctx context.Context, filter models.NoteFilter) ([]models.NoteDetail, error) {
	conditions := []string{"n.deleted_at IS NULL"}
	var args []interface{}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("n.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("n.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	query := fmt.Sprintf(`SELECT n.id, n.student_id, n.course_id, n.session_id, n.valeur, n.commentaire, n.created_at, n.updated_at, n.deleted_at,
c.name AS course_name, c.coef, u.first_name, u.last_name
FROM notes n
JOIN courses c ON c.id = n.course_id
JOIN users u ON u.id = n.student_id
WHERE %s ORDER BY n.created_at DESC`, strings.Join(conditions, " AND "))
	var notes []models.NoteDetail
	if err := r.db.SelectContext(ctx, &notes, query, args...); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// FindByID loads a live note.
func (r *NoteRepository) FindByID(ctx context.Context, id string) (*models.Note, error) {
	var note models.Note
	if err := r.db.GetContext(ctx, &note, `SELECT id, student_id, course_id, session_id, valeur, commentaire, created_at, updated_at, deleted_at FROM notes WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		return nil, err
	}
	return &note, nil
}

// Create inserts a note.
func (r *NoteRepository) Create(ctx context.Context, note *models.Note) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	note.CreatedAt = now
	note.UpdatedAt = now
	const query = `INSERT INTO notes (id, student_id, course_id, session_id, valeur, commentaire, created_at, updated_at) VALUES (:id, :student_id, :course_id, :session_id, :valeur, :commentaire, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, note); err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

// Update modifies the value and comment of a note.
func (r *NoteRepository) Update(ctx context.Context, note *models.Note) error {
	note.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, `UPDATE notes SET valeur = :valeur, commentaire = :commentaire, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`, note); err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	return nil
}

// SoftDelete marks a note deleted.
func (r *NoteRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE notes SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}
