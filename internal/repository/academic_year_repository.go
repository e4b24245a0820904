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

const academicYearColumns = "id, name, session, start_date, end_date, is_current, is_archived, archived_at, archived_by_id, created_at, updated_at, deleted_at"

// AcademicYearRepository handles persistence for academic years.
type AcademicYearRepository struct {
	db *sqlx.DB
}

// NewAcademicYearRepository instantiates an academic year repository.
func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

// List returns non-deleted years matching the filter, newest first.
func (r *AcademicYearRepository) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []interface{}
	if filter.Session != "" {
		conditions = append(conditions, fmt.Sprintf("session = $%d", len(args)+1))
		args = append(args, filter.Session)
	}
	if filter.IsCurrent != nil {
		conditions = append(conditions, fmt.Sprintf("is_current = $%d", len(args)+1))
		args = append(args, *filter.IsCurrent)
	}
	if filter.IsArchived != nil {
		conditions = append(conditions, fmt.Sprintf("is_archived = $%d", len(args)+1))
		args = append(args, *filter.IsArchived)
	}

	query := fmt.Sprintf("SELECT %s FROM academic_years WHERE %s ORDER BY start_date DESC", academicYearColumns, strings.Join(conditions, " AND "))
	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query, args...); err != nil {
		return nil, fmt.Errorf("list academic years: %w", err)
	}
	return years, nil
}

// FindByID loads a non-deleted year.
func (r *AcademicYearRepository) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	query := "SELECT " + academicYearColumns + " FROM academic_years WHERE id = $1 AND deleted_at IS NULL"
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindCurrent returns the current non-archived year, optionally for one session.
// Without a session the most recently started current year wins.
func (r *AcademicYearRepository) FindCurrent(ctx context.Context, session models.AcademicSession) (*models.AcademicYear, error) {
	query := "SELECT " + academicYearColumns + " FROM academic_years WHERE is_current = TRUE AND is_archived = FALSE AND deleted_at IS NULL"
	var args []interface{}
	if session != "" {
		query += " AND session = $1"
		args = append(args, session)
	}
	query += " ORDER BY start_date DESC LIMIT 1"
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, args...); err != nil {
		return nil, err
	}
	return &year, nil
}

// ListCurrent returns every current, non-archived year across sessions.
func (r *AcademicYearRepository) ListCurrent(ctx context.Context) ([]models.AcademicYear, error) {
	query := "SELECT " + academicYearColumns + " FROM academic_years WHERE is_current = TRUE AND is_archived = FALSE AND deleted_at IS NULL ORDER BY start_date DESC"
	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("list current academic years: %w", err)
	}
	return years, nil
}

// ListFinished returns non-archived years whose end date is before now.
func (r *AcademicYearRepository) ListFinished(ctx context.Context, now time.Time) ([]models.AcademicYear, error) {
	query := "SELECT " + academicYearColumns + " FROM academic_years WHERE is_archived = FALSE AND deleted_at IS NULL AND end_date < $1 ORDER BY end_date"
	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query, now); err != nil {
		return nil, fmt.Errorf("list finished academic years: %w", err)
	}
	return years, nil
}

// LatestArchived returns the most recently created archived year.
func (r *AcademicYearRepository) LatestArchived(ctx context.Context) (*models.AcademicYear, error) {
	query := "SELECT " + academicYearColumns + " FROM academic_years WHERE is_archived = TRUE AND deleted_at IS NULL ORDER BY created_at DESC LIMIT 1"
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query); err != nil {
		return nil, err
	}
	return &year, nil
}

const insertAcademicYearQuery = `INSERT INTO academic_years (id, name, session, start_date, end_date, is_current, is_archived, created_at, updated_at) VALUES (:id, :name, :session, :start_date, :end_date, :is_current, :is_archived, :created_at, :updated_at)`

func prepareAcademicYear(year *models.AcademicYear) time.Time {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if year.CreatedAt.IsZero() {
		year.CreatedAt = now
	}
	year.UpdatedAt = now
	return now
}

// Create inserts a new academic year.
func (r *AcademicYearRepository) Create(ctx context.Context, year *models.AcademicYear) error {
	prepareAcademicYear(year)
	if _, err := r.db.NamedExecContext(ctx, insertAcademicYearQuery, year); err != nil {
		return fmt.Errorf("create academic year: %w", err)
	}
	return nil
}

// CreateCurrent inserts a year as the current one of its session, demoting the previous current
// year in the same transaction.
func (r *AcademicYearRepository) CreateCurrent(ctx context.Context, year *models.AcademicYear) (err error) {
	now := prepareAcademicYear(year)
	year.IsCurrent = true

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create current tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE academic_years SET is_current = FALSE, updated_at = $1 WHERE session = $2 AND id <> $3 AND is_current = TRUE AND deleted_at IS NULL`, now, year.Session, year.ID); err != nil {
		return fmt.Errorf("demote current academic years: %w", err)
	}
	if _, err = tx.NamedExecContext(ctx, insertAcademicYearQuery, year); err != nil {
		return fmt.Errorf("create academic year: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create current tx: %w", err)
	}
	return nil
}

// Update modifies the descriptive fields of a year. Lifecycle flags have dedicated methods.
func (r *AcademicYearRepository) Update(ctx context.Context, year *models.AcademicYear) error {
	year.UpdatedAt = time.Now().UTC()
	const query = `UPDATE academic_years SET name = :name, session = :session, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("update academic year: %w", err)
	}
	return nil
}

// SetCurrent demotes every other year of the session and promotes the target in one transaction.
func (r *AcademicYearRepository) SetCurrent(ctx context.Context, id string, session models.AcademicSession) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set current tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE academic_years SET is_current = FALSE, updated_at = $1 WHERE session = $2 AND id <> $3 AND is_current = TRUE AND deleted_at IS NULL`, now, session, id); err != nil {
		return fmt.Errorf("demote current academic years: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE academic_years SET is_current = TRUE, updated_at = $1 WHERE id = $2`, now, id); err != nil {
		return fmt.Errorf("promote academic year: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set current tx: %w", err)
	}
	return nil
}

// Archive flags the year archived and clears its currency.
func (r *AcademicYearRepository) Archive(ctx context.Context, id string, actorID *string, at time.Time) error {
	const query = `UPDATE academic_years SET is_archived = TRUE, is_current = FALSE, archived_at = $2, archived_by_id = $3, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, at, actorID); err != nil {
		return fmt.Errorf("archive academic year: %w", err)
	}
	return nil
}

// Unarchive clears the archival fields. Currency is left untouched.
func (r *AcademicYearRepository) Unarchive(ctx context.Context, id string) error {
	const query = `UPDATE academic_years SET is_archived = FALSE, archived_at = NULL, archived_by_id = NULL, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("unarchive academic year: %w", err)
	}
	return nil
}

// SoftDelete marks the year deleted.
func (r *AcademicYearRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE academic_years SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at); err != nil {
		return fmt.Errorf("delete academic year: %w", err)
	}
	return nil
}

// DemoteExpired clears is_current on non-archived years that ended before now.
func (r *AcademicYearRepository) DemoteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE academic_years SET is_current = FALSE, updated_at = $1 WHERE is_current = TRUE AND is_archived = FALSE AND deleted_at IS NULL AND end_date < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("demote expired academic years: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("demote expired rows affected: %w", err)
	}
	return affected, nil
}
