package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/middleware"
	"github.com/noah-isme/ecole-api/internal/models"
	"github.com/noah-isme/ecole-api/pkg/config"
	"github.com/noah-isme/ecole-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/ecole-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ecole-api/pkg/middleware/requestid"
)

func newRouter(c *container) *gin.Engine {
	if c.cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(c.logger))
	r.Use(corsmiddleware.New(c.cfg.CORS))
	r.Use(middleware.Metrics(c.metrics))
	r.Use(middleware.WithResponseMeta())

	h := c.handlers
	r.GET("/health", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)
	if c.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(c.cfg.APIPrefix)
	registerRoutes(api, c)
	return r
}

func registerRoutes(api *gin.RouterGroup, c *container) {
	h := c.handlers
	staff := middleware.RequireRoles(models.StaffRoles...)
	teaching := middleware.RequireRoles(models.RoleAdmin, models.RoleAdministratif, models.RoleProf)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(c.repos.users, c.logger.With(zap.String("component", "audit")), action, resource)
	}

	auth := api.Group("/auth")
	auth.POST("/login", h.auth.Login)
	auth.POST("/refresh", h.auth.Refresh)

	secured := api.Group("")
	secured.Use(middleware.JWT(c.auth))

	secured.POST("/auth/logout", h.auth.Logout)
	secured.POST("/auth/change-password", h.auth.ChangePassword)
	secured.GET("/auth/me", h.auth.Me)

	years := secured.Group("/academic-years")
	years.GET("", h.years.List)
	years.GET("/current", h.years.Current)
	years.GET("/finished", h.years.Finished)
	years.GET("/:id", h.years.Get)
	years.POST("", staff, h.years.Create)
	years.POST("/recompute", staff, h.years.Recompute)
	years.PUT("/:id", staff, h.years.Update)
	years.POST("/:id/set-current", staff, h.years.SetCurrent)
	years.POST("/:id/archive", staff, h.years.Archive)
	years.POST("/:id/unarchive", staff, h.years.Unarchive)
	years.POST("/:id/clone", staff, h.years.Clone)
	years.DELETE("/:id", staff, h.years.Delete)

	groups := secured.Group("/groups")
	groups.GET("", h.groups.List)
	groups.GET("/:id", h.groups.Get)
	groups.POST("", staff, h.groups.Create)
	groups.PUT("/:id", staff, h.groups.Update)
	groups.DELETE("/:id", staff, h.groups.Delete)

	subGroups := secured.Group("/subgroups")
	subGroups.GET("/:id", h.groups.GetSubGroup)
	subGroups.GET("/:id/students", teaching, h.groups.ListStudents)
	subGroups.POST("", staff, h.groups.CreateSubGroup)
	subGroups.PUT("/:id", staff, h.groups.UpdateSubGroup)
	subGroups.DELETE("/:id", staff, h.groups.DeleteSubGroup)
	subGroups.POST("/:id/students", staff, h.groups.AddStudents)
	subGroups.DELETE("/:id/students/:userId", staff, h.groups.RemoveStudent)

	filieres := secured.Group("/filieres")
	filieres.GET("", h.filieres.List)
	filieres.GET("/:id", h.filieres.Get)
	filieres.POST("", staff, h.filieres.Create)
	filieres.PUT("/:id", staff, h.filieres.Update)
	filieres.DELETE("/:id", staff, h.filieres.Delete)

	rooms := secured.Group("/rooms")
	rooms.GET("", h.rooms.List)
	rooms.GET("/:id", h.rooms.Get)
	rooms.POST("", staff, h.rooms.Create)
	rooms.PUT("/:id", staff, h.rooms.Update)
	rooms.DELETE("/:id", staff, h.rooms.Delete)

	courses := secured.Group("/courses")
	courses.GET("", h.courses.List)
	courses.GET("/:id", h.courses.Get)
	courses.POST("", staff, h.courses.Create)
	courses.PUT("/:id", staff, h.courses.Update)
	courses.DELETE("/:id", staff, h.courses.Delete)

	planning := secured.Group("/planning")
	planning.GET("", h.planning.List)
	planning.GET("/:id", h.planning.Get)
	planning.POST("", staff, h.planning.BulkCreate)
	planning.PUT("/:id", staff, h.planning.Update)
	planning.DELETE("/:id", staff, h.planning.Delete)

	absences := secured.Group("/absences")
	absences.PUT("/sessions/:sessionId", teaching, h.attendance.MarkSession)
	absences.GET("/sessions/:sessionId", teaching, h.attendance.ListBySession)
	absences.GET("/sessions/:sessionId/summary", teaching, h.attendance.Summary)
	absences.GET("/sessions/:sessionId/sheet", teaching, h.attendance.Sheet)
	absences.GET("/students/:studentId", h.attendance.ListByStudent)
	absences.POST("/:id/justify", staff, h.attendance.Justify)

	notes := secured.Group("/notes")
	notes.POST("", teaching, h.notes.Create)
	notes.PUT("/:id", teaching, h.notes.Update)
	notes.DELETE("/:id", teaching, h.notes.Delete)
	notes.GET("/students/:studentId", h.notes.ListByStudent)
	notes.GET("/courses/:courseId", teaching, h.notes.ListByCourse)

	users := secured.Group("/users")
	users.GET("", staff, h.users.List)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleAdministratif), middleware.AllowSelf), h.users.Get)
	users.POST("", staff, h.users.Create)
	users.PUT("/:id", staff, h.users.Update)
	users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), h.users.Delete)

	secured.GET("/enrollments", staff, h.enrollments.List)

	secured.POST("/import", staff, audit(models.AuditActionImport, "structure"), h.transfer.Import)
	secured.GET("/export", staff, audit(models.AuditActionExport, "structure"), h.transfer.Export)

	maintenance := secured.Group("/maintenance", middleware.RequireRoles(models.RoleAdmin))
	maintenance.POST("/enrollments/:task", audit(models.AuditActionMaintenance, "enrollments"), h.maintenance.Enqueue)
	maintenance.GET("/jobs/:id", h.maintenance.Status)
}
