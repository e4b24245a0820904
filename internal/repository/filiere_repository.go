package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ecole-api/internal/models"
)

const filiereColumns = "id, code, label, academic_year_id, level_id, created_at, updated_at, deleted_at"

// FiliereRepository persists filieres.
type FiliereRepository struct {
	db *sqlx.DB
}

// NewFiliereRepository instantiates a filiere repository.
func NewFiliereRepository(db *sqlx.DB) *FiliereRepository {
	return &FiliereRepository{db: db}
}

// List returns non-deleted filieres, optionally for one year.
func (r *FiliereRepository) List(ctx context.Context, academicYearID string) ([]models.Filiere, error) {
	query := "SELECT " + filiereColumns + " FROM filieres WHERE deleted_at IS NULL"
	var args []interface{}
	if academicYearID != "" {
		query += " AND academic_year_id = $1"
		args = append(args, academicYearID)
	}
	query += " ORDER BY code"
	var filieres []models.Filiere
	if err := r.db.SelectContext(ctx, &filieres, query, args...); err != nil {
		return nil, fmt.Errorf("list filieres: %w", err)
	}
	return filieres, nil
}

// FindByID loads a non-deleted filiere.
func (r *FiliereRepository) FindByID(ctx context.Context, id string) (*models.Filiere, error) {
	var filiere models.Filiere
	if err := r.db.GetContext(ctx, &filiere, "SELECT "+filiereColumns+" FROM filieres WHERE id = $1 AND deleted_at IS NULL", id); err != nil {
		return nil, err
	}
	return &filiere, nil
}

// Create inserts a filiere.
func (r *FiliereRepository) Create(ctx context.Context, filiere *models.Filiere) error {
	if filiere.ID == "" {
		filiere.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	filiere.CreatedAt = now
	filiere.UpdatedAt = now
	const query = `INSERT INTO filieres (id, code, label, academic_year_id, level_id, created_at, updated_at) VALUES (:id, :code, :label, :academic_year_id, :level_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, filiere); err != nil {
		return fmt.Errorf("create filiere: %w", err)
	}
	return nil
}

// Update modifies a filiere.
func (r *FiliereRepository) Update(ctx context.Context, filiere *models.Filiere) error {
	filiere.UpdatedAt = time.Now().UTC()
	const query = `UPDATE filieres SET code = :code, label = :label, level_id = :level_id, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, filiere); err != nil {
		return fmt.Errorf("update filiere: %w", err)
	}
	return nil
}

// SoftDelete marks a filiere deleted.
func (r *FiliereRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE filieres SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at); err != nil {
		return fmt.Errorf("delete filiere: %w", err)
	}
	return nil
}
