package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	"github.com/noah-isme/ecole-api/pkg/cache"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

type fakeGroupRepo struct {
	groups    map[string]*models.Group
	subGroups map[string]*models.SubGroup
	members   map[string][]string
	listCalls int
	seq       int
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{groups: map[string]*models.Group{}, subGroups: map[string]*models.SubGroup{}, members: map[string][]string{}}
}

func (f *fakeGroupRepo) id(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeGroupRepo) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, error) {
	f.listCalls++
	out := []models.Group{}
	for _, g := range f.groups {
		if g.DeletedAt != nil || (filter.AcademicYearID != "" && g.AcademicYearID != filter.AcademicYearID) {
			continue
		}
		cp := *g
		cp.SubGroups = []models.SubGroup{}
		for _, sg := range f.subGroups {
			if sg.GroupID == g.ID && sg.DeletedAt == nil {
				cp.SubGroups = append(cp.SubGroups, *sg)
			}
		}
		out = append(out, cp)
	}
	return out, nil
}

func (f *fakeGroupRepo) FindByID(ctx context.Context, id string) (*models.Group, error) {
	g, ok := f.groups[id]
	if !ok || g.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	cp := *g
	return &cp, nil
}

func (f *fakeGroupRepo) Create(ctx context.Context, group *models.Group) error {
	for _, g := range f.groups {
		if g.DeletedAt == nil && g.AcademicYearID == group.AcademicYearID && g.Name == group.Name {
			return appErrors.Conflict("name", "name already exists")
		}
	}
	group.ID = f.id("group")
	cp := *group
	f.groups[group.ID] = &cp
	return nil
}

func (f *fakeGroupRepo) Update(ctx context.Context, group *models.Group) error {
	cp := *group
	f.groups[group.ID] = &cp
	return nil
}

func (f *fakeGroupRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	f.groups[id].DeletedAt = &at
	for _, sg := range f.subGroups {
		if sg.GroupID == id {
			sg.DeletedAt = &at
		}
	}
	return nil
}

func (f *fakeGroupRepo) FindSubGroup(ctx context.Context, id string) (*models.SubGroupWithYear, error) {
	sg, ok := f.subGroups[id]
	if !ok || sg.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	return &models.SubGroupWithYear{SubGroup: *sg, AcademicYearID: f.groups[sg.GroupID].AcademicYearID}, nil
}

func (f *fakeGroupRepo) CreateSubGroup(ctx context.Context, sg *models.SubGroup) error {
	sg.ID = f.id("sg")
	cp := *sg
	f.subGroups[sg.ID] = &cp
	return nil
}

func (f *fakeGroupRepo) UpdateSubGroup(ctx context.Context, sg *models.SubGroup) error {
	cp := *sg
	f.subGroups[sg.ID] = &cp
	return nil
}

func (f *fakeGroupRepo) SoftDeleteSubGroup(ctx context.Context, id string, at time.Time) error {
	f.subGroups[id].DeletedAt = &at
	return nil
}

func (f *fakeGroupRepo) SetSubGroupFilieres(ctx context.Context, subGroupID string, filiereIDs []string) error {
	f.subGroups[subGroupID].FiliereIDs = filiereIDs
	return nil
}

func (f *fakeGroupRepo) AddStudents(ctx context.Context, subGroupID string, userIDs []string) error {
	f.members[subGroupID] = append(f.members[subGroupID], userIDs...)
	return nil
}

func (f *fakeGroupRepo) RemoveStudent(ctx context.Context, subGroupID, userID string) error {
	kept := f.members[subGroupID][:0]
	for _, id := range f.members[subGroupID] {
		if id != userID {
			kept = append(kept, id)
		}
	}
	f.members[subGroupID] = kept
	return nil
}

func (f *fakeGroupRepo) ListSubGroupStudents(ctx context.Context, subGroupID string) ([]models.User, error) {
	var out []models.User
	for _, id := range f.members[subGroupID] {
		out = append(out, models.User{ID: id, Role: models.RoleEleve})
	}
	return out, nil
}

func newGroupFixture(t *testing.T) (*GroupService, *fakeGroupRepo, *cache.MemoryStore) {
	t.Helper()
	repo := newFakeGroupRepo()
	years := newFakeYearRepo(
		models.AcademicYear{ID: "y1", Name: "2024-2025", Session: models.SessionOctobre, StartDate: date(2024, 10, 1), EndDate: date(2025, 7, 1), IsCurrent: true},
		models.AcademicYear{ID: "old", Name: "2020-2021", Session: models.SessionOctobre, StartDate: date(2020, 10, 1), EndDate: date(2021, 7, 1), IsArchived: true},
	)
	store := cache.NewMemoryStore()
	cacheSvc := NewCacheService(store, NewMetricsService(), time.Minute, zap.NewNop())
	return NewGroupService(repo, years, cacheSvc, time.Minute, nil, zap.NewNop()), repo, store
}

func TestGroupServiceListUsesCacheUntilWrite(t *testing.T) {
	svc, repo, store := newGroupFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.CreateGroupRequest{Name: "L1", AcademicYearID: "y1"})
	require.NoError(t, err)

	groups, hit, err := svc.List(ctx, models.GroupFilter{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, groups, 1)

	groups, hit, err = svc.List(ctx, models.GroupFilter{})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, groups, 1)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.Create(ctx, dto.CreateGroupRequest{Name: "L2", AcademicYearID: "y1"})
	require.NoError(t, err)
	assert.Zero(t, store.Len())

	groups, hit, err = svc.List(ctx, models.GroupFilter{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, groups, 2)
}

func TestGroupServiceFilteredListBypassesCache(t *testing.T) {
	svc, repo, store := newGroupFixture(t)

	_, _, err := svc.List(context.Background(), models.GroupFilter{AcademicYearID: "y1"})
	require.NoError(t, err)
	_, _, err = svc.List(context.Background(), models.GroupFilter{AcademicYearID: "y1"})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
	assert.Zero(t, store.Len())
}

func TestGroupServiceSubGroupWriteInvalidatesCache(t *testing.T) {
	svc, _, store := newGroupFixture(t)
	ctx := context.Background()
	group, err := svc.Create(ctx, dto.CreateGroupRequest{Name: "L1", AcademicYearID: "y1"})
	require.NoError(t, err)
	_, _, err = svc.List(ctx, models.GroupFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	session := "Octobre"
	sg, err := svc.CreateSubGroup(ctx, dto.SubGroupRequest{Code: "L1-A", GroupID: group.ID, Session: &session, FiliereIDs: []string{"f1"}})
	require.NoError(t, err)
	assert.Zero(t, store.Len())
	require.NotNil(t, sg.Session)
	assert.Equal(t, "octobre", *sg.Session)
	assert.Equal(t, []string{"f1"}, sg.FiliereIDs)
}

func TestGroupServiceCreateRejectsArchivedYear(t *testing.T) {
	svc, _, _ := newGroupFixture(t)

	_, err := svc.Create(context.Background(), dto.CreateGroupRequest{Name: "L1", AcademicYearID: "old"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), dto.CreateGroupRequest{Name: "L1", AcademicYearID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGroupServiceDuplicateNameConflict(t *testing.T) {
	svc, _, _ := newGroupFixture(t)
	_, err := svc.Create(context.Background(), dto.CreateGroupRequest{Name: "L1", AcademicYearID: "y1"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), dto.CreateGroupRequest{Name: "L1", AcademicYearID: "y1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "name", appErr.Field)
}

func TestGroupServiceDeleteCascadesToSubGroups(t *testing.T) {
	svc, repo, _ := newGroupFixture(t)
	ctx := context.Background()
	group, err := svc.Create(ctx, dto.CreateGroupRequest{Name: "L1", AcademicYearID: "y1"})
	require.NoError(t, err)
	sg, err := svc.CreateSubGroup(ctx, dto.SubGroupRequest{Code: "L1-A", GroupID: group.ID})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, group.ID))
	assert.NotNil(t, repo.subGroups[sg.ID].DeletedAt)

	_, err = svc.GetSubGroup(ctx, sg.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGroupServiceMembership(t *testing.T) {
	svc, _, _ := newGroupFixture(t)
	ctx := context.Background()
	group, err := svc.Create(ctx, dto.CreateGroupRequest{Name: "L1", AcademicYearID: "y1"})
	require.NoError(t, err)
	sg, err := svc.CreateSubGroup(ctx, dto.SubGroupRequest{Code: "L1-A", GroupID: group.ID})
	require.NoError(t, err)

	require.NoError(t, svc.AddStudents(ctx, sg.ID, dto.SubGroupStudentsRequest{UserIDs: []string{"s1", "s2"}}))
	require.NoError(t, svc.RemoveStudent(ctx, sg.ID, "s1"))

	students, err := svc.ListStudents(ctx, sg.ID)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "s2", students[0].ID)

	err = svc.AddStudents(ctx, sg.ID, dto.SubGroupStudentsRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
