package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

// templateRetentionYears is how long a template that already produced
// rubric instances must be kept before it can be deleted.
const templateRetentionYears = 3

type rubricRepo interface {
	ListTemplates(ctx context.Context, filter models.RubricTemplateFilter) ([]models.RubricTemplate, int, error)
	FindTemplateByID(ctx context.Context, id string) (*models.RubricTemplate, error)
	CreateTemplate(ctx context.Context, template *models.RubricTemplate) error
	SetTemplateArchived(ctx context.Context, id string, archived bool) error
	CountRubricsByTemplate(ctx context.Context, templateID string) (int, error)
	OrphanRubricsAndDeleteTemplate(ctx context.Context, templateID string) error
	FindRubricBySimulation(ctx context.Context, simulationID string) (*models.Rubric, error)
	CreateRubric(ctx context.Context, rubric *models.Rubric) error
	BulkCreateRubrics(ctx context.Context, rubrics []models.Rubric) error
	UpdateRubric(ctx context.Context, rubric *models.Rubric) error
}

type rubricPracticeRepo interface {
	FindByID(ctx context.Context, id string) (*models.Practice, error)
	AttachTemplate(ctx context.Context, practiceID, templateID string) error
}

type rubricSimulationRepo interface {
	FindByID(ctx context.Context, id string) (*models.Simulation, error)
	ListByPractice(ctx context.Context, practiceID string) ([]models.Simulation, error)
}

// CriterionInput is one criterion row of a template being created.
type CriterionInput struct {
	Name         string  `json:"name" validate:"required"`
	Weight       float64 `json:"weight" validate:"gte=0,lte=100"`
	Descriptions string  `json:"descriptions"`
}

// ScoringColumnInput is one scale column of a template being created.
type ScoringColumnInput struct {
	Title      string  `json:"title" validate:"required"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// CreateTemplateRequest is the payload for creating a rubric template.
type CreateTemplateRequest struct {
	Title          string               `json:"title" validate:"required"`
	CreatorID      string               `json:"creator_id" validate:"required"`
	CourseID       *string              `json:"course_id"`
	Criteria       []CriterionInput     `json:"criteria" validate:"required,min=1,dive"`
	ScoringColumns []ScoringColumnInput `json:"scoring_columns" validate:"required,min=1,dive"`
}

// EvaluatedCriterionInput carries the score given to one criterion.
type EvaluatedCriterionInput struct {
	CriterionName string  `json:"criterion_name" validate:"required"`
	Weight        float64 `json:"weight" validate:"gte=0,lte=100"`
	Score         float64 `json:"score" validate:"gte=0"`
	Comment       string  `json:"comment"`
}

// ScoreRubricRequest overwrites the evaluation of a simulation's rubric.
type ScoreRubricRequest struct {
	Criteria []EvaluatedCriterionInput `json:"criteria" validate:"required,min=1,dive"`
}

// RubricService manages rubric templates and their per-simulation
// instances.
type RubricService struct {
	rubrics     rubricRepo
	practices   rubricPracticeRepo
	simulations rubricSimulationRepo
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewRubricService constructs RubricService.
func NewRubricService(rubrics rubricRepo, practices rubricPracticeRepo, simulations rubricSimulationRepo, validate *validator.Validate, logger *zap.Logger) *RubricService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RubricService{
		rubrics:     rubrics,
		practices:   practices,
		simulations: simulations,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ListTemplates returns templates matching the filter.
func (s *RubricService) ListTemplates(ctx context.Context, filter models.RubricTemplateFilter) ([]models.RubricTemplate, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	templates, total, err := s.rubrics.ListTemplates(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rubric templates")
	}
	return templates, &models.Pagination{Page: filter.Page, Size: filter.PageSize, Total: total}, nil
}

// GetTemplate loads one template with criteria and scoring columns.
func (s *RubricService) GetTemplate(ctx context.Context, id string) (*models.RubricTemplate, error) {
	template, err := s.rubrics.FindTemplateByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "rubric template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rubric template")
	}
	return template, nil
}

// CreateTemplate validates and persists a template. Criterion weights must
// sum to 100.
func (s *RubricService) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*models.RubricTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rubric template payload")
	}

	var sum float64
	for _, c := range req.Criteria {
		sum += c.Weight
	}
	if math.Abs(sum-100) > 0.001 {
		return nil, appErrors.Clone(appErrors.ErrInvalidPercentages, "criterion weights must sum to 100")
	}

	template := &models.RubricTemplate{
		Title:     req.Title,
		CreatorID: req.CreatorID,
		CourseID:  req.CourseID,
	}
	for _, c := range req.Criteria {
		template.Criteria = append(template.Criteria, models.RubricCriterion{
			Name:         c.Name,
			Weight:       c.Weight,
			Descriptions: c.Descriptions,
		})
	}
	for _, col := range req.ScoringColumns {
		if col.UpperBound < col.LowerBound {
			return nil, appErrors.Clone(appErrors.ErrValidation, "scoring column upper bound must not be below lower bound")
		}
		template.ScoringColumns = append(template.ScoringColumns, models.ScoringColumn{
			Title:      col.Title,
			LowerBound: col.LowerBound,
			UpperBound: col.UpperBound,
		})
	}

	if err := s.rubrics.CreateTemplate(ctx, template); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create rubric template")
	}
	s.logger.Info("rubric template created", zap.String("template_id", template.ID))
	return template, nil
}

// ArchiveTemplate hides a template from new attachments without touching
// existing rubrics.
func (s *RubricService) ArchiveTemplate(ctx context.Context, id string, archived bool) error {
	if _, err := s.GetTemplate(ctx, id); err != nil {
		return err
	}
	if err := s.rubrics.SetTemplateArchived(ctx, id, archived); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive rubric template")
	}
	return nil
}

// DeleteTemplate removes a template. A template that already produced
// rubrics is kept for three calendar years from creation: inside that
// window deletion is rejected. Past the window (or with no instances) the
// template is removed and surviving rubrics keep their scores with a null
// template reference.
func (s *RubricService) DeleteTemplate(ctx context.Context, id string) error {
	template, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.rubrics.CountRubricsByTemplate(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count rubric instances")
	}

	retainedUntil := template.CreationDate.AddDate(templateRetentionYears, 0, 0)
	if count > 0 && s.now().Before(retainedUntil) {
		return appErrors.Clone(appErrors.ErrIllegalState, "template has rubric instances inside the retention window")
	}

	if err := s.rubrics.OrphanRubricsAndDeleteTemplate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete rubric template")
	}
	if count > 0 {
		s.logger.Info("rubric template deleted, instances orphaned",
			zap.String("template_id", id), zap.Int("instances", count))
	}
	return nil
}

// AttachTemplateToPractice binds the template to the practice and fans out
// one blank rubric per already scheduled simulation that lacks one.
func (s *RubricService) AttachTemplateToPractice(ctx context.Context, practiceID, templateID string) error {
	template, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	if template.Archived {
		return appErrors.Clone(appErrors.ErrIllegalState, "archived templates cannot be attached")
	}
	if _, err := s.practices.FindByID(ctx, practiceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "practice not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load practice")
	}

	if err := s.practices.AttachTemplate(ctx, practiceID, templateID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach template to practice")
	}

	sims, err := s.simulations.ListByPractice(ctx, practiceID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list practice simulations")
	}

	var rubrics []models.Rubric
	for _, sim := range sims {
		if _, err := s.rubrics.FindRubricBySimulation(ctx, sim.ID); err == nil {
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing rubric")
		}
		rubrics = append(rubrics, blankRubric(template, sim.ID))
	}
	if len(rubrics) == 0 {
		return nil
	}

	if err := s.rubrics.BulkCreateRubrics(ctx, rubrics); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create rubrics for simulations")
	}
	s.logger.Info("rubrics fanned out from template",
		zap.String("template_id", templateID),
		zap.String("practice_id", practiceID),
		zap.Int("count", len(rubrics)))
	return nil
}

// GetSimulationRubric loads the rubric of a simulation.
func (s *RubricService) GetSimulationRubric(ctx context.Context, simulationID string) (*models.Rubric, error) {
	rubric, err := s.rubrics.FindRubricBySimulation(ctx, simulationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "simulation has no rubric")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rubric")
	}
	return rubric, nil
}

// ScoreSimulationRubric overwrites the evaluation of a simulation's rubric
// and recomputes its total. If no rubric exists yet for the simulation, one
// is instantiated on the spot from the practice's template, or bare when
// the practice has none. Rubrics of simulations with a published grade are
// immutable.
func (s *RubricService) ScoreSimulationRubric(ctx context.Context, simulationID string, req ScoreRubricRequest) (*models.Rubric, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rubric score payload")
	}

	sim, err := s.simulations.FindByID(ctx, simulationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "simulation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load simulation")
	}
	if sim.GradeStatus == models.GradeRegistered {
		return nil, appErrors.Clone(appErrors.ErrIllegalState, "rubric is locked once the grade is published")
	}

	criteria := make([]models.EvaluatedCriterion, 0, len(req.Criteria))
	var total float64
	for _, c := range req.Criteria {
		total += c.Score * c.Weight / 100
		criteria = append(criteria, models.EvaluatedCriterion{
			CriterionName: c.CriterionName,
			Weight:        c.Weight,
			Score:         c.Score,
			Comment:       c.Comment,
		})
	}

	rubric, err := s.rubrics.FindRubricBySimulation(ctx, simulationID)
	switch {
	case err == nil:
		rubric.Total = total
		rubric.EvaluatedCriteria = criteria
		if err := s.rubrics.UpdateRubric(ctx, rubric); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update rubric")
		}
	case errors.Is(err, sql.ErrNoRows):
		rubric, err = s.instantiateRubric(ctx, sim, total, criteria)
		if err != nil {
			return nil, err
		}
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rubric")
	}

	return rubric, nil
}

func (s *RubricService) instantiateRubric(ctx context.Context, sim *models.Simulation, total float64, criteria []models.EvaluatedCriterion) (*models.Rubric, error) {
	practice, err := s.practices.FindByID(ctx, sim.PracticeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load practice")
	}

	// Without a template on the practice the rubric is created bare: no
	// template reference, criteria taken from the request as-is.
	rubric := &models.Rubric{
		TemplateID:        practice.RubricTemplateID,
		SimulationID:      sim.ID,
		Total:             total,
		EvaluatedCriteria: criteria,
	}
	if err := s.rubrics.CreateRubric(ctx, rubric); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create rubric")
	}
	return rubric, nil
}

func blankRubric(template *models.RubricTemplate, simulationID string) models.Rubric {
	rubric := models.Rubric{
		TemplateID:   &template.ID,
		SimulationID: simulationID,
		Total:        0,
	}
	for _, criterion := range template.Criteria {
		rubric.EvaluatedCriteria = append(rubric.EvaluatedCriteria, models.EvaluatedCriterion{
			CriterionName: criterion.Name,
			Weight:        criterion.Weight,
			Score:         0,
		})
	}
	return rubric
}
