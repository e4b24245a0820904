package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

type filiereRepository interface {
	List(ctx context.Context, academicYearID string) ([]models.Filiere, error)
	FindByID(ctx context.Context, id string) (*models.Filiere, error)
	Create(ctx context.Context, filiere *models.Filiere) error
	Update(ctx context.Context, filiere *models.Filiere) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// FiliereService manages tracks.
type FiliereService struct {
	repo      filiereRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFiliereService constructs a FiliereService.
func NewFiliereService(repo filiereRepository, validate *validator.Validate, logger *zap.Logger) *FiliereService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FiliereService{repo: repo, validator: defaultValidator(validate), logger: logger}
}

// List returns the filieres of a year, or all of them.
func (s *FiliereService) List(ctx context.Context, academicYearID string) ([]models.Filiere, error) {
	filieres, err := s.repo.List(ctx, academicYearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list filieres")
	}
	return filieres, nil
}

// Get returns a filiere by ID.
func (s *FiliereService) Get(ctx context.Context, id string) (*models.Filiere, error) {
	filiere, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "filiere not found", "failed to load filiere")
	}
	return filiere, nil
}

// Create adds a filiere.
func (s *FiliereService) Create(ctx context.Context, req dto.FiliereRequest) (*models.Filiere, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid filiere payload")
	}
	filiere := &models.Filiere{Code: req.Code, Label: req.Label, AcademicYearID: req.AcademicYearID, LevelID: req.LevelID}
	if err := s.repo.Create(ctx, filiere); err != nil {
		return nil, writeError(err, "failed to create filiere")
	}
	return filiere, nil
}

// Update replaces a filiere's fields.
func (s *FiliereService) Update(ctx context.Context, id string, req dto.FiliereRequest) (*models.Filiere, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid filiere payload")
	}
	filiere, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	filiere.Code = req.Code
	filiere.Label = req.Label
	filiere.AcademicYearID = req.AcademicYearID
	filiere.LevelID = req.LevelID
	if err := s.repo.Update(ctx, filiere); err != nil {
		return nil, writeError(err, "failed to update filiere")
	}
	return filiere, nil
}

// Delete soft deletes a filiere.
func (s *FiliereService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete filiere")
	}
	return nil
}
