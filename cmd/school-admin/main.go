package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/repository"
	"github.com/noah-isme/ecole-api/internal/service"
	"github.com/noah-isme/ecole-api/pkg/config"
	"github.com/noah-isme/ecole-api/pkg/database"
	"github.com/noah-isme/ecole-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	logr = logr.Named("school-admin")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, logr)
	stop()
	_ = logr.Sync()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) int {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Error("connect database", zap.Error(err))
		return 1
	}
	defer db.Close()

	years := repository.NewAcademicYearRepository(db)
	users := repository.NewUserRepository(db)
	groups := repository.NewGroupRepository(db)
	courses := repository.NewCourseRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	validate := service.NewValidator()

	cli := commandLine{
		db:    db.DB,
		users: service.NewUserService(users, years, groups, validate, logr),
		tasks: service.NewEnrollmentReconciler(years, users, enrollments, groups, courses, nil, logr),
		years: service.NewAcademicYearService(years, groups, courses, users, nil, validate, logr),
		out:   os.Stdout,
		stdin: int(syscall.Stdin),
	}
	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			logr.Error("command failed", zap.Strings("args", os.Args[1:]), zap.Error(err))
		}
		return 1
	}
	return 0
}
