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

const classColumns = "id, javeriana_id, period, number_of_participants, course_id, created_at, updated_at"

// ClassRepository provides persistence for classes and their memberships.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes with optional filtering and pagination.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassModel, int, error) {
	base := "FROM classes WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Period != "" {
		conditions = append(conditions, fmt.Sprintf("period = $%d", len(args)+1))
		args = append(args, filter.Period)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"period": true, "javeriana_id": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "period"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", classColumns, base, sortBy, order, size, offset)
	var classes []models.ClassModel
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}

	return classes, total, nil
}

// FindByID loads a class by id.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassModel, error) {
	query := fmt.Sprintf("SELECT %s FROM classes WHERE id = $1 LIMIT 1", classColumns)
	var class models.ClassModel
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create stores a new class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.ClassModel) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, javeriana_id, period, number_of_participants, course_id, created_at, updated_at) VALUES (:id, :javeriana_id, :period, :number_of_participants, :course_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies a class record.
func (r *ClassRepository) Update(ctx context.Context, class *models.ClassModel) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET javeriana_id = :javeriana_id, period = :period, number_of_participants = :number_of_participants, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class by id.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// ListMembers returns the membership rows of a class, optionally filtered
// by member role.
func (r *ClassRepository) ListMembers(ctx context.Context, classID string, role models.ClassMemberRole) ([]models.User, error) {
	query := `SELECT u.id, u.email, u.password_hash, u.name, u.last_name, u.institutional_id, u.roles, u.preferred_role, u.active, u.last_login, u.created_at, u.updated_at
		FROM class_members cm JOIN users u ON u.id = cm.user_id
		WHERE cm.class_id = $1`
	args := []interface{}{classID}
	if role != "" {
		query += " AND cm.member_role = $2"
		args = append(args, string(role))
	}
	query += " ORDER BY u.last_name ASC, u.name ASC"

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("list class members: %w", err)
	}
	return users, nil
}

// ReplaceMembers overwrites the membership set of one role within a
// transaction.
func (r *ClassRepository) ReplaceMembers(ctx context.Context, classID string, role models.ClassMemberRole, userIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace members: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM class_members WHERE class_id = $1 AND member_role = $2`, classID, string(role)); err != nil {
		return fmt.Errorf("clear class members: %w", err)
	}
	for _, userID := range userIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO class_members (class_id, user_id, member_role) VALUES ($1, $2, $3)`, classID, userID, string(role)); err != nil {
			return fmt.Errorf("insert class member: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace members: %w", err)
	}
	return nil
}

// ListClassIDsForUser returns the classes a user belongs to under the given
// member role.
func (r *ClassRepository) ListClassIDsForUser(ctx context.Context, userID string, role models.ClassMemberRole) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT class_id FROM class_members WHERE user_id = $1 AND member_role = $2`, userID, string(role)); err != nil {
		return nil, fmt.Errorf("list classes for user: %w", err)
	}
	return ids, nil
}
