package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

type exportRepository interface {
	Dump(ctx context.Context) (*dto.ExportDump, error)
}

// ExportService produces the full database dump.
type ExportService struct {
	repo   exportRepository
	logger *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(repo exportRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{repo: repo, logger: logger}
}

// Dump returns every live entity with its links.
func (s *ExportService) Dump(ctx context.Context) (*dto.ExportDump, error) {
	dump, err := s.repo.Dump(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export data")
	}
	s.logger.Info("export generated",
		zap.Int("users", len(dump.Users)),
		zap.Int("courses", len(dump.Courses)),
		zap.Int("sessions", len(dump.Sessions)),
	)
	return dump, nil
}
