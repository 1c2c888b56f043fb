package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinsim/simlab-api/internal/models"
)

const templateColumns = "id, title, creator_id, course_id, archived, creation_date, updated_at"

// RubricRepository provides persistence for rubric templates and their
// per-simulation instances.
type RubricRepository struct {
	db *sqlx.DB
}

// NewRubricRepository creates a new rubric repository.
func NewRubricRepository(db *sqlx.DB) *RubricRepository {
	return &RubricRepository{db: db}
}

// ListTemplates returns templates with optional filtering and pagination.
func (r *RubricRepository) ListTemplates(ctx context.Context, filter models.RubricTemplateFilter) ([]models.RubricTemplate, int, error) {
	base := "FROM rubric_templates WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.CreatorID != "" {
		conditions = append(conditions, fmt.Sprintf("creator_id = $%d", len(args)+1))
		args = append(args, filter.CreatorID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Archived != nil {
		conditions = append(conditions, fmt.Sprintf("archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY creation_date DESC LIMIT %d OFFSET %d", templateColumns, base, size, offset)
	var templates []models.RubricTemplate
	if err := r.db.SelectContext(ctx, &templates, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list rubric templates: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count rubric templates: %w", err)
	}

	return templates, total, nil
}

// FindTemplateByID loads a template with its criteria and scoring columns.
func (r *RubricRepository) FindTemplateByID(ctx context.Context, id string) (*models.RubricTemplate, error) {
	query := fmt.Sprintf("SELECT %s FROM rubric_templates WHERE id = $1 LIMIT 1", templateColumns)
	var template models.RubricTemplate
	if err := r.db.GetContext(ctx, &template, query, id); err != nil {
		return nil, err
	}

	if err := r.db.SelectContext(ctx, &template.Criteria, `SELECT id, template_id, position, name, weight, descriptions FROM rubric_template_criteria WHERE template_id = $1 ORDER BY position ASC`, id); err != nil {
		return nil, fmt.Errorf("load template criteria: %w", err)
	}
	if err := r.db.SelectContext(ctx, &template.ScoringColumns, `SELECT id, template_id, position, title, lower_bound, upper_bound FROM rubric_scoring_columns WHERE template_id = $1 ORDER BY position ASC`, id); err != nil {
		return nil, fmt.Errorf("load scoring columns: %w", err)
	}
	return &template, nil
}

// CreateTemplate persists a template with its criteria and columns
// atomically.
func (r *RubricRepository) CreateTemplate(ctx context.Context, template *models.RubricTemplate) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create template: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if template.CreationDate.IsZero() {
		template.CreationDate = now
	}
	template.UpdatedAt = now

	if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO rubric_templates (id, title, creator_id, course_id, archived, creation_date, updated_at) VALUES (:id, :title, :creator_id, :course_id, :archived, :creation_date, :updated_at)`, template); err != nil {
		return fmt.Errorf("insert rubric template: %w", err)
	}

	for i := range template.Criteria {
		criterion := &template.Criteria[i]
		if criterion.ID == "" {
			criterion.ID = uuid.NewString()
		}
		criterion.TemplateID = template.ID
		criterion.Position = i
		if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO rubric_template_criteria (id, template_id, position, name, weight, descriptions) VALUES (:id, :template_id, :position, :name, :weight, :descriptions)`, criterion); err != nil {
			return fmt.Errorf("insert template criterion: %w", err)
		}
	}
	for i := range template.ScoringColumns {
		column := &template.ScoringColumns[i]
		if column.ID == "" {
			column.ID = uuid.NewString()
		}
		column.TemplateID = template.ID
		column.Position = i
		if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO rubric_scoring_columns (id, template_id, position, title, lower_bound, upper_bound) VALUES (:id, :template_id, :position, :title, :lower_bound, :upper_bound)`, column); err != nil {
			return fmt.Errorf("insert scoring column: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create template: %w", err)
	}
	return nil
}

// SetTemplateArchived flips the archived flag.
func (r *RubricRepository) SetTemplateArchived(ctx context.Context, id string, archived bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE rubric_templates SET archived = $1, updated_at = $2 WHERE id = $3`, archived, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("archive rubric template: %w", err)
	}
	return nil
}

// CountRubricsByTemplate counts the instances of a template.
func (r *RubricRepository) CountRubricsByTemplate(ctx context.Context, templateID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM rubrics WHERE template_id = $1`, templateID); err != nil {
		return 0, fmt.Errorf("count rubrics by template: %w", err)
	}
	return count, nil
}

// OrphanRubricsAndDeleteTemplate detaches existing rubrics from the
// template and removes the template with its criteria/columns, atomically.
func (r *RubricRepository) OrphanRubricsAndDeleteTemplate(ctx context.Context, templateID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete template: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE rubrics SET template_id = NULL, updated_at = $1 WHERE template_id = $2`, time.Now().UTC(), templateID); err != nil {
		return fmt.Errorf("orphan rubrics: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM rubric_template_criteria WHERE template_id = $1`, templateID); err != nil {
		return fmt.Errorf("delete template criteria: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM rubric_scoring_columns WHERE template_id = $1`, templateID); err != nil {
		return fmt.Errorf("delete scoring columns: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM rubric_templates WHERE id = $1`, templateID); err != nil {
		return fmt.Errorf("delete rubric template: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete template: %w", err)
	}
	return nil
}

// FindRubricBySimulation loads the rubric of a simulation with its
// evaluated criteria.
func (r *RubricRepository) FindRubricBySimulation(ctx context.Context, simulationID string) (*models.Rubric, error) {
	var rubric models.Rubric
	if err := r.db.GetContext(ctx, &rubric, `SELECT id, template_id, simulation_id, total, created_at, updated_at FROM rubrics WHERE simulation_id = $1 LIMIT 1`, simulationID); err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &rubric.EvaluatedCriteria, `SELECT id, rubric_id, criterion_name, weight, score, comment FROM evaluated_criteria WHERE rubric_id = $1 ORDER BY id ASC`, rubric.ID); err != nil {
		return nil, fmt.Errorf("load evaluated criteria: %w", err)
	}
	return &rubric, nil
}

// CreateRubric persists a rubric and its evaluated criteria atomically.
func (r *RubricRepository) CreateRubric(ctx context.Context, rubric *models.Rubric) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create rubric: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.insertRubric(ctx, tx, rubric); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create rubric: %w", err)
	}
	return nil
}

// BulkCreateRubrics persists several rubric instances in one transaction
// (template fan-out over a practice's simulations).
func (r *RubricRepository) BulkCreateRubrics(ctx context.Context, rubrics []models.Rubric) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk create rubrics: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i := range rubrics {
		if err = r.insertRubric(ctx, tx, &rubrics[i]); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk create rubrics: %w", err)
	}
	return nil
}

func (r *RubricRepository) insertRubric(ctx context.Context, tx *sqlx.Tx, rubric *models.Rubric) error {
	if rubric.ID == "" {
		rubric.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rubric.CreatedAt.IsZero() {
		rubric.CreatedAt = now
	}
	rubric.UpdatedAt = now

	if _, err := sqlx.NamedExecContext(ctx, tx, `INSERT INTO rubrics (id, template_id, simulation_id, total, created_at, updated_at) VALUES (:id, :template_id, :simulation_id, :total, :created_at, :updated_at)`, rubric); err != nil {
		return fmt.Errorf("insert rubric: %w", err)
	}
	for i := range rubric.EvaluatedCriteria {
		criterion := &rubric.EvaluatedCriteria[i]
		if criterion.ID == "" {
			criterion.ID = uuid.NewString()
		}
		criterion.RubricID = rubric.ID
		if _, err := sqlx.NamedExecContext(ctx, tx, `INSERT INTO evaluated_criteria (id, rubric_id, criterion_name, weight, score, comment) VALUES (:id, :rubric_id, :criterion_name, :weight, :score, :comment)`, criterion); err != nil {
			return fmt.Errorf("insert evaluated criterion: %w", err)
		}
	}
	return nil
}

// UpdateRubric overwrites the total and evaluated criteria of a rubric.
func (r *RubricRepository) UpdateRubric(ctx context.Context, rubric *models.Rubric) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update rubric: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rubric.UpdatedAt = time.Now().UTC()
	if _, err = sqlx.NamedExecContext(ctx, tx, `UPDATE rubrics SET total = :total, updated_at = :updated_at WHERE id = :id`, rubric); err != nil {
		return fmt.Errorf("update rubric: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM evaluated_criteria WHERE rubric_id = $1`, rubric.ID); err != nil {
		return fmt.Errorf("clear evaluated criteria: %w", err)
	}
	for i := range rubric.EvaluatedCriteria {
		criterion := &rubric.EvaluatedCriteria[i]
		if criterion.ID == "" {
			criterion.ID = uuid.NewString()
		}
		criterion.RubricID = rubric.ID
		if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO evaluated_criteria (id, rubric_id, criterion_name, weight, score, comment) VALUES (:id, :rubric_id, :criterion_name, :weight, :score, :comment)`, criterion); err != nil {
			return fmt.Errorf("insert evaluated criterion: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update rubric: %w", err)
	}
	return nil
}

// DeleteRubricBySimulation removes a simulation's rubric with its criteria.
func (r *RubricRepository) DeleteRubricBySimulation(ctx context.Context, simulationID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete rubric: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM evaluated_criteria WHERE rubric_id IN (SELECT id FROM rubrics WHERE simulation_id = $1)`, simulationID); err != nil {
		return fmt.Errorf("delete evaluated criteria: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM rubrics WHERE simulation_id = $1`, simulationID); err != nil {
		return fmt.Errorf("delete rubric: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete rubric: %w", err)
	}
	return nil
}
