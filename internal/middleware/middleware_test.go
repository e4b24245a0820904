package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ecole-api/internal/models"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, s.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/users/:id", handlers...)
	return r
}

func perform(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleProf}
	r := newRouter(JWT(stubValidator{claims: claims}))

	assert.Equal(t, http.StatusUnauthorized, perform(r, "/users/u1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, "/users/u1", "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, "/users/u1", "Bearer bad").Code)
	assert.Equal(t, http.StatusOK, perform(r, "/users/u1", "bearer good").Code)
}

func TestRBAC(t *testing.T) {
	prof := &models.JWTClaims{UserID: "u1", Role: models.RoleProf}
	cases := []struct {
		name    string
		allowed []string
		path    string
		want    int
	}{
		{"role allowed", []string{string(models.RoleProf)}, "/users/u2", http.StatusOK},
		{"role denied", []string{string(models.RoleAdmin)}, "/users/u2", http.StatusForbidden},
		{"self allowed", []string{string(models.RoleAdmin), AllowSelf}, "/users/u1", http.StatusOK},
		{"self mismatch", []string{string(models.RoleAdmin), AllowSelf}, "/users/u2", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(JWT(stubValidator{claims: prof}), RBAC(tc.allowed...))
			assert.Equal(t, tc.want, perform(r, tc.path, "Bearer good").Code)
		})
	}
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	r := newRouter(RequireRoles(models.RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, perform(r, "/users/u1", "").Code)
}

type observed struct {
	method, path string
	status       int
}

type recordingObserver struct{ calls []observed }

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	r.calls = append(r.calls, observed{method, path, status})
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	obs := &recordingObserver{}
	r := newRouter()
	r.Use(Metrics(obs))
	r.GET("/groups/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	perform(r, "/groups/abc", "")
	perform(r, "/nowhere", "")

	require.Len(t, obs.calls, 2)
	assert.Equal(t, observed{http.MethodGet, "/groups/:id", http.StatusNoContent}, obs.calls[0])
	assert.Equal(t, "unmatched", obs.calls[1].path)
}

func TestSetCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/groups", nil)

	SetCacheHit(c, true)
	assert.Equal(t, true, ExtractMeta(c)["cache_hit"])
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
}

type auditStub struct{ logs []models.AuditLog }

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, *log)
	return nil
}

func TestAuditRecordsSuccessfulRequestsOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := &auditStub{}
	r := gin.New()
	r.POST("/import", func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "admin-1"})
	}, Audit(recorder, nil, models.AuditActionImport, "import"), func(c *gin.Context) {
		if c.Query("fail") != "" {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	for _, path := range []string{"/import", "/import?fail=1"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	}

	require.Len(t, recorder.logs, 1)
	assert.Equal(t, models.AuditActionImport, recorder.logs[0].Action)
	assert.Equal(t, "admin-1", *recorder.logs[0].UserID)
}
