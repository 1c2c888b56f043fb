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

const practiceColumns = "id, name, description, type, gradeable, max_students_group, number_of_groups, simulation_duration, grade_percentage, rubric_template_id, class_id, created_at, updated_at"

// PracticeRepository provides persistence for practices.
type PracticeRepository struct {
	db *sqlx.DB
}

// NewPracticeRepository creates a new practice repository.
func NewPracticeRepository(db *sqlx.DB) *PracticeRepository {
	return &PracticeRepository{db: db}
}

// List returns practices with optional filtering and pagination.
func (r *PracticeRepository) List(ctx context.Context, filter models.PracticeFilter) ([]models.Practice, int, error) {
	base := "FROM practices WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Gradeable != nil {
		conditions = append(conditions, fmt.Sprintf("gradeable = $%d", len(args)+1))
		args = append(args, *filter.Gradeable)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY name ASC LIMIT %d OFFSET %d", practiceColumns, base, size, offset)
	var practices []models.Practice
	if err := r.db.SelectContext(ctx, &practices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list practices: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count practices: %w", err)
	}

	return practices, total, nil
}

// ListByClass returns every practice of a class.
func (r *PracticeRepository) ListByClass(ctx context.Context, classID string) ([]models.Practice, error) {
	query := fmt.Sprintf("SELECT %s FROM practices WHERE class_id = $1 ORDER BY name ASC", practiceColumns)
	var practices []models.Practice
	if err := r.db.SelectContext(ctx, &practices, query, classID); err != nil {
		return nil, fmt.Errorf("list practices by class: %w", err)
	}
	return practices, nil
}

// FindByID loads a practice by id.
func (r *PracticeRepository) FindByID(ctx context.Context, id string) (*models.Practice, error) {
	query := fmt.Sprintf("SELECT %s FROM practices WHERE id = $1 LIMIT 1", practiceColumns)
	var practice models.Practice
	if err := r.db.GetContext(ctx, &practice, query, id); err != nil {
		return nil, err
	}
	return &practice, nil
}

// Create stores a new practice record.
func (r *PracticeRepository) Create(ctx context.Context, practice *models.Practice) error {
	if practice.ID == "" {
		practice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if practice.CreatedAt.IsZero() {
		practice.CreatedAt = now
	}
	practice.UpdatedAt = now

	const query = `INSERT INTO practices (id, name, description, type, gradeable, max_students_group, number_of_groups, simulation_duration, grade_percentage, rubric_template_id, class_id, created_at, updated_at) VALUES (:id, :name, :description, :type, :gradeable, :max_students_group, :number_of_groups, :simulation_duration, :grade_percentage, :rubric_template_id, :class_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, practice); err != nil {
		return fmt.Errorf("create practice: %w", err)
	}
	return nil
}

// Update modifies a practice record.
func (r *PracticeRepository) Update(ctx context.Context, practice *models.Practice) error {
	practice.UpdatedAt = time.Now().UTC()
	const query = `UPDATE practices SET name = :name, description = :description, type = :type, gradeable = :gradeable, max_students_group = :max_students_group, number_of_groups = :number_of_groups, simulation_duration = :simulation_duration, grade_percentage = :grade_percentage, rubric_template_id = :rubric_template_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, practice); err != nil {
		return fmt.Errorf("update practice: %w", err)
	}
	return nil
}

// UpdatePercentages overwrites grade percentages for several practices in
// one transaction so a failed entry leaves the class untouched.
func (r *PracticeRepository) UpdatePercentages(ctx context.Context, entries []models.PracticePercentage) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update percentages: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, entry := range entries {
		if _, err = tx.ExecContext(ctx, `UPDATE practices SET grade_percentage = $1, updated_at = $2 WHERE id = $3`, entry.Percentage, now, entry.PracticeID); err != nil {
			return fmt.Errorf("update practice percentage: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update percentages: %w", err)
	}
	return nil
}

// AttachTemplate links a rubric template to a practice.
func (r *PracticeRepository) AttachTemplate(ctx context.Context, practiceID, templateID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE practices SET rubric_template_id = $1, updated_at = $2 WHERE id = $3`, templateID, time.Now().UTC(), practiceID); err != nil {
		return fmt.Errorf("attach template to practice: %w", err)
	}
	return nil
}

// Delete removes a practice by id.
func (r *PracticeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM practices WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete practice: %w", err)
	}
	return nil
}
