package main

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/handler"
	"github.com/noah-isme/ecole-api/internal/repository"
	"github.com/noah-isme/ecole-api/internal/service"
	"github.com/noah-isme/ecole-api/pkg/cache"
	"github.com/noah-isme/ecole-api/pkg/config"
	"github.com/noah-isme/ecole-api/pkg/jobs"
)

type repositories struct {
	years       *repository.AcademicYearRepository
	groups      *repository.GroupRepository
	filieres    *repository.FiliereRepository
	rooms       *repository.RoomRepository
	courses     *repository.CourseRepository
	sessions    *repository.CourseSessionRepository
	presences   *repository.PresenceRepository
	notes       *repository.NoteRepository
	users       *repository.UserRepository
	enrollments *repository.EnrollmentRepository
	exports     *repository.ExportRepository
}

type handlers struct {
	auth        *handler.AuthHandler
	years       *handler.AcademicYearHandler
	groups      *handler.GroupHandler
	filieres    *handler.FiliereHandler
	rooms       *handler.RoomHandler
	courses     *handler.CourseHandler
	planning    *handler.PlanningHandler
	attendance  *handler.AttendanceHandler
	notes       *handler.NoteHandler
	users       *handler.UserHandler
	enrollments *handler.EnrollmentHandler
	transfer    *handler.ImportExportHandler
	maintenance *handler.MaintenanceHandler
	metrics     *handler.MetricsHandler
}

// container holds every long-lived dependency of the API process.
type container struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *sqlx.DB
	redis   *redis.Client
	metrics *service.MetricsService
	auth    *service.AuthService
	repos   repositories
	queue   *jobs.Queue

	handlers handlers
}

func newRepositories(db *sqlx.DB) repositories {
	return repositories{
		years:       repository.NewAcademicYearRepository(db),
		groups:      repository.NewGroupRepository(db),
		filieres:    repository.NewFiliereRepository(db),
		rooms:       repository.NewRoomRepository(db),
		courses:     repository.NewCourseRepository(db),
		sessions:    repository.NewCourseSessionRepository(db),
		presences:   repository.NewPresenceRepository(db),
		notes:       repository.NewNoteRepository(db),
		users:       repository.NewUserRepository(db),
		enrollments: repository.NewEnrollmentRepository(db),
		exports:     repository.NewExportRepository(db),
	}
}

func newReconciler(repos repositories, metrics *service.MetricsService, logger *zap.Logger) *service.EnrollmentReconciler {
	return service.NewEnrollmentReconciler(repos.years, repos.users, repos.enrollments, repos.groups, repos.courses, metrics, logger)
}

func newContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger, db *sqlx.DB) (*container, error) {
	c := &container{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		metrics: service.NewMetricsService(),
		repos:   newRepositories(db),
	}

	var store service.CacheRepository = cache.NewMemoryStore()
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		c.redis = client
		store = repository.NewCacheRepository(client, "ecole")
	}
	cacheSvc := service.NewCacheService(store, c.metrics, cfg.Cache.GroupsTTL, logger)

	validate := service.NewValidator()
	c.auth = service.NewAuthService(c.repos.users, validate, logger, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "ecole-api",
	})

	c.handlers = c.buildHandlers(cacheSvc, validate)
	return c, nil
}

func (c *container) buildHandlers(cacheSvc *service.CacheService, validate *validator.Validate) handlers {
	repos := c.repos
	logger := c.logger

	years := service.NewAcademicYearService(repos.years, repos.groups, repos.courses, repos.users, cacheSvc, validate, logger)
	groups := service.NewGroupService(repos.groups, repos.years, cacheSvc, c.cfg.Cache.GroupsTTL, validate, logger)
	filieres := service.NewFiliereService(repos.filieres, validate, logger)
	rooms := service.NewRoomService(repos.rooms, validate, logger)
	courses := service.NewCourseService(repos.courses, repos.years, repos.users, validate, logger)
	planning := service.NewPlanningService(repos.sessions, repos.courses, repos.groups, repos.years, validate, logger)
	attendance := service.NewAttendanceService(repos.presences, repos.sessions, validate, logger)
	notes := service.NewNoteService(repos.notes, repos.courses, repos.users, service.GradeScale{Min: c.cfg.Grades.Min, Max: c.cfg.Grades.Max}, validate, logger)
	users := service.NewUserService(repos.users, repos.years, repos.groups, validate, logger)
	enrollments := service.NewEnrollmentService(repos.enrollments, logger)
	importer := service.NewImportService(repos.years, repos.groups, repos.courses, repos.users, cacheSvc, c.cfg.Import.DefaultPassword, validate, logger)
	exporter := service.NewExportService(repos.exports, logger)

	maintenance := service.NewMaintenanceService(newReconciler(repos, c.metrics, logger), c.metrics, logger)
	c.queue = jobs.NewQueue("maintenance", maintenance.Handle, jobs.QueueConfig{
		Workers:    c.cfg.Maintenance.Workers,
		MaxRetries: c.cfg.Maintenance.Retries,
		RetryDelay: c.cfg.Maintenance.RetryDelay,
		Logger:     logger.Named("maintenance"),
	})
	maintenance.AttachQueue(c.queue)

	return handlers{
		auth:        handler.NewAuthHandler(c.auth),
		years:       handler.NewAcademicYearHandler(years),
		groups:      handler.NewGroupHandler(groups),
		filieres:    handler.NewFiliereHandler(filieres),
		rooms:       handler.NewRoomHandler(rooms),
		courses:     handler.NewCourseHandler(courses),
		planning:    handler.NewPlanningHandler(planning),
		attendance:  handler.NewAttendanceHandler(attendance),
		notes:       handler.NewNoteHandler(notes),
		users:       handler.NewUserHandler(users),
		enrollments: handler.NewEnrollmentHandler(enrollments),
		transfer:    handler.NewImportExportHandler(importer, exporter),
		maintenance: handler.NewMaintenanceHandler(maintenance),
		metrics:     handler.NewMetricsHandler(c.metrics.Handler()),
	}
}

func (c *container) Close() {
	if c.queue != nil {
		c.queue.Stop()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close database", zap.Error(err))
	}
}
