package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/middleware"
	"github.com/noah-isme/ecole-api/internal/models"
	"github.com/noah-isme/ecole-api/internal/service"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
	"github.com/noah-isme/ecole-api/pkg/jobs"
)

func newTestContext(method, target, body string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

var adminClaims = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

type yearServiceMock struct {
	academicYearService
	archivedID string
	force      bool
	session    string
	err        error
}

func (m *yearServiceMock) Archive(ctx context.Context, id string, force bool, actor *models.JWTClaims) (*models.AcademicYear, error) {
	m.archivedID, m.force = id, force
	if m.err != nil {
		return nil, m.err
	}
	return &models.AcademicYear{ID: id, IsArchived: true}, nil
}

func (m *yearServiceMock) GetCurrent(ctx context.Context, rawSession string) (*models.AcademicYear, error) {
	m.session = rawSession
	if m.err != nil {
		return nil, m.err
	}
	return &models.AcademicYear{ID: "cur", IsCurrent: true}, nil
}

func TestAcademicYearHandlerArchiveForce(t *testing.T) {
	mock := &yearServiceMock{}
	h := NewAcademicYearHandler(mock)

	c, w := newTestContext(http.MethodPost, "/academic-years/y1/archive", `{"force":true}`, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "y1"}}
	h.Archive(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "y1", mock.archivedID)
	assert.True(t, mock.force)
}

func TestAcademicYearHandlerArchiveActiveYear(t *testing.T) {
	mock := &yearServiceMock{err: appErrors.Clone(appErrors.ErrInvalidState, "cannot archive the active year")}
	h := NewAcademicYearHandler(mock)

	c, w := newTestContext(http.MethodPost, "/academic-years/y1/archive", "", adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "y1"}}
	h.Archive(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, mock.force)
	assert.Equal(t, appErrors.ErrInvalidState.Code, decode(t, w).Error.Code)
}

func TestAcademicYearHandlerCurrentPassesSession(t *testing.T) {
	mock := &yearServiceMock{}
	h := NewAcademicYearHandler(mock)

	c, w := newTestContext(http.MethodGet, "/academic-years/current?session=fevrier", "", adminClaims)
	h.Current(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fevrier", mock.session)
}

type groupServiceMock struct {
	groupService
	hit    bool
	filter models.GroupFilter
}

func (m *groupServiceMock) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, bool, error) {
	m.filter = filter
	return []models.Group{{ID: "g1", Name: "6e"}}, m.hit, nil
}

func TestGroupHandlerListReportsCacheHit(t *testing.T) {
	h := NewGroupHandler(&groupServiceMock{hit: true})

	c, w := newTestContext(http.MethodGet, "/groups", "", adminClaims)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, true, decode(t, w).Meta["cache_hit"])
}

type planningServiceMock struct {
	planningService
	report    *dto.BulkCreateSessionsReport
	updateErr error
	filter    models.PlanningFilter
}

func (m *planningServiceMock) BulkCreate(ctx context.Context, actor *models.JWTClaims, req dto.BulkCreateSessionsRequest) (*dto.BulkCreateSessionsReport, error) {
	return m.report, nil
}

func (m *planningServiceMock) Update(ctx context.Context, id string, req dto.UpdateSessionRequest) (*models.CourseSession, error) {
	return nil, m.updateErr
}

func (m *planningServiceMock) List(ctx context.Context, actor *models.JWTClaims, filter models.PlanningFilter) ([]models.CourseSessionDetail, error) {
	m.filter = filter
	return []models.CourseSessionDetail{}, nil
}

func TestPlanningHandlerBulkCreatePartialFailure(t *testing.T) {
	h := NewPlanningHandler(&planningServiceMock{report: &dto.BulkCreateSessionsReport{Created: 1, Failed: 1}})

	c, w := newTestContext(http.MethodPost, "/planning", `{"sessions":[]}`, adminClaims)
	h.BulkCreate(c)

	assert.Equal(t, http.StatusMultiStatus, w.Code)
}

func TestPlanningHandlerUpdateExposesConflicts(t *testing.T) {
	conflicts := []models.BookingConflict{{Dimension: "room", SessionID: "s9"}}
	h := NewPlanningHandler(&planningServiceMock{updateErr: service.NewBookingConflictError(conflicts)})

	c, w := newTestContext(http.MethodPut, "/planning/s1", `{}`, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	h.Update(c)

	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	assert.Equal(t, "room", env.Error.Field)
	require.Contains(t, env.Meta, "conflicts")
	assert.Len(t, env.Meta["conflicts"], 1)
}

func TestPlanningHandlerListParsesDates(t *testing.T) {
	mock := &planningServiceMock{}
	h := NewPlanningHandler(mock)

	c, w := newTestContext(http.MethodGet, "/planning?from=2024-11-04&to=2024-11-10T18:00:00Z", "", adminClaims)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.filter.From)
	assert.Equal(t, time.Date(2024, 11, 4, 0, 0, 0, 0, time.UTC), *mock.filter.From)
	assert.Equal(t, 18, mock.filter.To.Hour())

	c, w = newTestContext(http.MethodGet, "/planning?from=yesterday", "", adminClaims)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlanningHandlerListParsesSession(t *testing.T) {
	mock := &planningServiceMock{}
	h := NewPlanningHandler(mock)

	c, w := newTestContext(http.MethodGet, "/planning?session=Fevrier", "", adminClaims)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SessionFevrier, mock.filter.Session)

	c, w = newTestContext(http.MethodGet, "/planning?session=mars", "", adminClaims)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type attendanceServiceMock struct {
	attendanceService
	format string
}

func (m *attendanceServiceMock) AttendanceSheet(ctx context.Context, sessionID, format string) ([]byte, string, error) {
	m.format = format
	return []byte("Nom;Prénom\n"), "appel-20241104-0800." + format, nil
}

func TestAttendanceHandlerSheetDefaultsToCSV(t *testing.T) {
	mock := &attendanceServiceMock{}
	h := NewAttendanceHandler(mock)

	c, w := newTestContext(http.MethodGet, "/absences/sessions/s1/sheet", "", adminClaims)
	c.Params = gin.Params{{Key: "sessionId", Value: "s1"}}
	h.Sheet(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.SheetFormatCSV, mock.format)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "appel-20241104-0800.csv")
}

type userServiceMock struct {
	userService
	filter models.UserFilter
}

func (m *userServiceMock) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	m.filter = filter
	return []models.User{{ID: "u1"}}, models.NewPagination(filter.Page, filter.PageSize, 1), nil
}

func TestUserHandlerList(t *testing.T) {
	mock := &userServiceMock{}
	h := NewUserHandler(mock)

	c, w := newTestContext(http.MethodGet, "/users?role=Prof&page=2&page_size=5", "", adminClaims)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.filter.Role)
	assert.Equal(t, models.RoleProf, *mock.filter.Role)
	env := decode(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 2, env.Pagination.Page)
	assert.Equal(t, 5, env.Pagination.PageSize)

	c, w = newTestContext(http.MethodGet, "/users?role=parent", "", adminClaims)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHandlerCreateInvalidBody(t *testing.T) {
	h := NewUserHandler(&userServiceMock{})

	c, w := newTestContext(http.MethodPost, "/users", `{"email":`, adminClaims)
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type authServiceMock struct {
	authService
}

func TestAuthHandlerMeRequiresClaims(t *testing.T) {
	h := NewAuthHandler(authServiceMock{})

	c, w := newTestContext(http.MethodGet, "/auth/me", "", nil)
	h.Me(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type maintenanceServiceMock struct {
	task string
}

func (m *maintenanceServiceMock) Enqueue(ctx context.Context, task string) (*dto.MaintenanceJob, error) {
	m.task = task
	return &dto.MaintenanceJob{JobID: "job-1", Task: task}, nil
}

func (m *maintenanceServiceMock) Status(ctx context.Context, jobID string) (*jobs.Status, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "maintenance job not found")
}

func TestMaintenanceHandler(t *testing.T) {
	mock := &maintenanceServiceMock{}
	h := NewMaintenanceHandler(mock)

	c, w := newTestContext(http.MethodPost, "/maintenance/enrollments/backfill", "", adminClaims)
	c.Params = gin.Params{{Key: "task", Value: "backfill"}}
	h.Enqueue(c)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "backfill", mock.task)

	c, w = newTestContext(http.MethodGet, "/maintenance/jobs/nope", "", adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	h.Status(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
