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

const (
	groupColumns    = "id, name, label, academic_year_id, created_at, updated_at, deleted_at"
	subGroupColumns = "id, code, label, level, session, group_id, created_at, updated_at, deleted_at"
)

// GroupRepository persists groups, their sub-groups and sub-group memberships.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository instantiates a group repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// List returns non-deleted groups with their sub-groups attached.
func (r *GroupRepository) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, error) {
	query := "SELECT " + groupColumns + " FROM groups WHERE deleted_at IS NULL"
	var args []interface{}
	if filter.AcademicYearID != "" {
		query += " AND academic_year_id = $1"
		args = append(args, filter.AcademicYearID)
	}
	query += " ORDER BY name"

	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	ids := make([]string, len(groups))
	for i := range groups {
		ids[i] = groups[i].ID
	}
	subGroups, err := r.listSubGroupsByGroups(ctx, ids)
	if err != nil {
		return nil, err
	}
	byGroup := make(map[string][]models.SubGroup, len(groups))
	for _, sg := range subGroups {
		byGroup[sg.GroupID] = append(byGroup[sg.GroupID], sg)
	}
	for i := range groups {
		groups[i].SubGroups = byGroup[groups[i].ID]
		if groups[i].SubGroups == nil {
			groups[i].SubGroups = []models.SubGroup{}
		}
	}
	return groups, nil
}

func (r *GroupRepository) listSubGroupsByGroups(ctx context.Context, groupIDs []string) ([]models.SubGroup, error) {
	query := "SELECT " + subGroupColumns + " FROM sub_groups WHERE deleted_at IS NULL AND group_id = ANY($1) ORDER BY code"
	var subGroups []models.SubGroup
	if err := r.db.SelectContext(ctx, &subGroups, query, pq.Array(groupIDs)); err != nil {
		return nil, fmt.Errorf("list sub groups: %w", err)
	}
	return subGroups, nil
}

// FindByID loads a non-deleted group with its sub-groups.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.Group, error) {
	var group models.Group
	if err := r.db.GetContext(ctx, &group, "SELECT "+groupColumns+" FROM groups WHERE id = $1 AND deleted_at IS NULL", id); err != nil {
		return nil, err
	}
	subGroups, err := r.listSubGroupsByGroups(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	group.SubGroups = subGroups
	return &group, nil
}

// FindByName looks a group up by its natural key.
func (r *GroupRepository) FindByName(ctx context.Context, academicYearID, name string) (*models.Group, error) {
	var group models.Group
	if err := r.db.GetContext(ctx, &group, "SELECT "+groupColumns+" FROM groups WHERE academic_year_id = $1 AND name = $2 AND deleted_at IS NULL", academicYearID, name); err != nil {
		return nil, err
	}
	return &group, nil
}

// Create inserts a group.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now
	const query = `INSERT INTO groups (id, name, label, academic_year_id, created_at, updated_at) VALUES (:id, :name, :label, :academic_year_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// Update modifies a group's name and label.
func (r *GroupRepository) Update(ctx context.Context, group *models.Group) error {
	group.UpdatedAt = time.Now().UTC()
	const query = `UPDATE groups SET name = :name, label = :label, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return nil
}

// SoftDelete marks the group and its sub-groups deleted.
func (r *GroupRepository) SoftDelete(ctx context.Context, id string, at time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete group tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE sub_groups SET deleted_at = $2, updated_at = $2 WHERE group_id = $1 AND deleted_at IS NULL`, id, at); err != nil {
		return fmt.Errorf("delete group sub groups: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE groups SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete group tx: %w", err)
	}
	return nil
}

// FindSubGroup loads a sub-group together with the academic year of its group.
func (r *GroupRepository) FindSubGroup(ctx context.Context, id string) (*models.SubGroupWithYear, error) {
	const query = `SELECT sg.id, sg.code, sg.label, sg.level, sg.session, sg.group_id, sg.created_at, sg.updated_at, sg.deleted_at, g.academic_year_id
FROM sub_groups sg JOIN groups g ON g.id = sg.group_id
WHERE sg.id = $1 AND sg.deleted_at IS NULL`
	var sg models.SubGroupWithYear
	if err := r.db.GetContext(ctx, &sg, query, id); err != nil {
		return nil, err
	}
	var filiereIDs []string
	if err := r.db.SelectContext(ctx, &filiereIDs, `SELECT filiere_id FROM sub_group_filieres WHERE sub_group_id = $1 ORDER BY filiere_id`, id); err != nil {
		return nil, fmt.Errorf("list sub group filieres: %w", err)
	}
	sg.FiliereIDs = filiereIDs
	return &sg, nil
}

// FindSubGroupByCode looks a sub-group up by its natural key within a group.
func (r *GroupRepository) FindSubGroupByCode(ctx context.Context, groupID, code string) (*models.SubGroup, error) {
	var sg models.SubGroup
	if err := r.db.GetContext(ctx, &sg, "SELECT "+subGroupColumns+" FROM sub_groups WHERE group_id = $1 AND code = $2 AND deleted_at IS NULL", groupID, code); err != nil {
		return nil, err
	}
	return &sg, nil
}

// CreateSubGroup inserts a sub-group.
func (r *GroupRepository) CreateSubGroup(ctx context.Context, sg *models.SubGroup) error {
	if sg.ID == "" {
		sg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sg.CreatedAt = now
	sg.UpdatedAt = now
	const query = `INSERT INTO sub_groups (id, code, label, level, session, group_id, created_at, updated_at) VALUES (:id, :code, :label, :level, :session, :group_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sg); err != nil {
		return fmt.Errorf("create sub group: %w", err)
	}
	return nil
}

// UpdateSubGroup modifies a sub-group's descriptive fields.
func (r *GroupRepository) UpdateSubGroup(ctx context.Context, sg *models.SubGroup) error {
	sg.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sub_groups SET code = :code, label = :label, level = :level, session = :session, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, sg); err != nil {
		return fmt.Errorf("update sub group: %w", err)
	}
	return nil
}

// SoftDeleteSubGroup marks a sub-group deleted.
func (r *GroupRepository) SoftDeleteSubGroup(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE sub_groups SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at); err != nil {
		return fmt.Errorf("delete sub group: %w", err)
	}
	return nil
}

// SetSubGroupFilieres replaces the filiere links of a sub-group.
func (r *GroupRepository) SetSubGroupFilieres(ctx context.Context, subGroupID string, filiereIDs []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sub group filieres tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM sub_group_filieres WHERE sub_group_id = $1`, subGroupID); err != nil {
		return fmt.Errorf("clear sub group filieres: %w", err)
	}
	for _, filiereID := range filiereIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO sub_group_filieres (sub_group_id, filiere_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, subGroupID, filiereID); err != nil {
			return fmt.Errorf("link sub group filiere: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit sub group filieres tx: %w", err)
	}
	return nil
}

// AddStudents attaches users to a sub-group, ignoring existing memberships.
func (r *GroupRepository) AddStudents(ctx context.Context, subGroupID string, userIDs []string) error {
	const query = `INSERT INTO user_sub_groups (user_id, sub_group_id) SELECT unnest($2::uuid[]), $1 ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, subGroupID, pq.Array(userIDs)); err != nil {
		return fmt.Errorf("add sub group students: %w", err)
	}
	return nil
}

// RemoveStudent detaches a user from a sub-group.
func (r *GroupRepository) RemoveStudent(ctx context.Context, subGroupID, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_sub_groups WHERE sub_group_id = $1 AND user_id = $2`, subGroupID, userID); err != nil {
		return fmt.Errorf("remove sub group student: %w", err)
	}
	return nil
}

// ListSubGroupStudents returns the non-deleted members of a sub-group ordered for rosters.
func (r *GroupRepository) ListSubGroupStudents(ctx context.Context, subGroupID string) ([]models.User, error) {
	const query = `SELECT u.id, u.email, u.password_hash, u.first_name, u.last_name, u.role, u.student_number, u.teacher_number, u.date_of_birth, u.phone, u.active, u.last_login, u.created_at, u.updated_at, u.deleted_at
FROM users u JOIN user_sub_groups usg ON usg.user_id = u.id
WHERE usg.sub_group_id = $1 AND u.deleted_at IS NULL
ORDER BY u.last_name, u.first_name`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, subGroupID); err != nil {
		return nil, fmt.Errorf("list sub group students: %w", err)
	}
	return users, nil
}

// ListUserSubGroups returns the user's memberships whose parent group belongs to the year.
func (r *GroupRepository) ListUserSubGroups(ctx context.Context, userID, academicYearID string) ([]models.UserSubGroup, error) {
	const query = `SELECT usg.user_id, usg.sub_group_id, g.id AS group_id, g.academic_year_id
FROM user_sub_groups usg
JOIN sub_groups sg ON sg.id = usg.sub_group_id AND sg.deleted_at IS NULL
JOIN groups g ON g.id = sg.group_id AND g.deleted_at IS NULL
WHERE usg.user_id = $1 AND g.academic_year_id = $2
ORDER BY sg.code`
	var memberships []models.UserSubGroup
	if err := r.db.SelectContext(ctx, &memberships, query, userID, academicYearID); err != nil {
		return nil, fmt.Errorf("list user sub groups: %w", err)
	}
	return memberships, nil
}
