package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type practiceRepository interface {
	List(ctx context.Context, filter models.PracticeFilter) ([]models.Practice, int, error)
	ListByClass(ctx context.Context, classID string) ([]models.Practice, error)
	FindByID(ctx context.Context, id string) (*models.Practice, error)
	Create(ctx context.Context, practice *models.Practice) error
	Update(ctx context.Context, practice *models.Practice) error
	Delete(ctx context.Context, id string) error
}

type practiceClassReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassModel, error)
}

type practiceSimulationReader interface {
	ListByPractice(ctx context.Context, practiceID string) ([]models.Simulation, error)
}

// PracticeRequest creates or updates a practice.
type PracticeRequest struct {
	Name               string  `json:"name" validate:"required"`
	Description        string  `json:"description"`
	Type               string  `json:"type" validate:"required,oneof=GRUPAL INDIVIDUAL"`
	Gradeable          bool    `json:"gradeable"`
	MaxStudentsGroup   int     `json:"max_students_group" validate:"gte=0"`
	NumberOfGroups     int     `json:"number_of_groups" validate:"gte=1"`
	SimulationDuration int     `json:"simulation_duration" validate:"gt=0"`
	GradePercentage    float64 `json:"grade_percentage" validate:"gte=0,lte=100"`
	ClassID            string  `json:"class_id" validate:"required"`
}

// PracticeService manages the practice catalog of classes.
type PracticeService struct {
	repo        practiceRepository
	classes     practiceClassReader
	simulations practiceSimulationReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPracticeService constructs PracticeService.
func NewPracticeService(repo practiceRepository, classes practiceClassReader, simulations practiceSimulationReader, validate *validator.Validate, logger *zap.Logger) *PracticeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PracticeService{repo: repo, classes: classes, simulations: simulations, validator: validate, logger: logger}
}

// List returns practices matching the filter.
func (s *PracticeService) List(ctx context.Context, filter models.PracticeFilter) ([]models.Practice, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	practices, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list practices")
	}
	return practices, &models.Pagination{Page: filter.Page, Size: filter.PageSize, Total: total}, nil
}

// ListByClass returns all practices of a class.
func (s *PracticeService) ListByClass(ctx context.Context, classID string) ([]models.Practice, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	practices, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class practices")
	}
	return practices, nil
}

// Get loads one practice.
func (s *PracticeService) Get(ctx context.Context, id string) (*models.Practice, error) {
	practice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "practice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load practice")
	}
	return practice, nil
}

// Create registers a practice under an existing class.
func (s *PracticeService) Create(ctx context.Context, req PracticeRequest) (*models.Practice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid practice payload")
	}

	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	practice := &models.Practice{
		Name:               req.Name,
		Description:        req.Description,
		Type:               models.PracticeType(req.Type),
		Gradeable:          req.Gradeable,
		MaxStudentsGroup:   req.MaxStudentsGroup,
		NumberOfGroups:     req.NumberOfGroups,
		SimulationDuration: req.SimulationDuration,
		GradePercentage:    req.GradePercentage,
		ClassID:            req.ClassID,
	}
	if err := s.repo.Create(ctx, practice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create practice")
	}
	s.logger.Info("practice created", zap.String("practice_id", practice.ID), zap.String("class_id", practice.ClassID))
	return practice, nil
}

// Update changes a practice.
func (s *PracticeService) Update(ctx context.Context, id string, req PracticeRequest) (*models.Practice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid practice payload")
	}

	practice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	practice.Name = req.Name
	practice.Description = req.Description
	practice.Type = models.PracticeType(req.Type)
	practice.Gradeable = req.Gradeable
	practice.MaxStudentsGroup = req.MaxStudentsGroup
	practice.NumberOfGroups = req.NumberOfGroups
	practice.SimulationDuration = req.SimulationDuration
	practice.GradePercentage = req.GradePercentage

	if err := s.repo.Update(ctx, practice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update practice")
	}
	return practice, nil
}

// Delete removes a practice. A practice with scheduled simulations cannot
// be deleted; the simulations must go first.
func (s *PracticeService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	sims, err := s.simulations.ListByPractice(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list practice simulations")
	}
	if len(sims) > 0 {
		return appErrors.Clone(appErrors.ErrIllegalState, "practice has scheduled simulations")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete practice")
	}
	return nil
}
