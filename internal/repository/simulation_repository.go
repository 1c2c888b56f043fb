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

const simulationColumns = "id, group_number, start_date_time, end_date_time, grade_status, grade, grade_date_time, practice_id, created_at, updated_at"

// SimulationBooking bundles a simulation with its room and participant sets
// for transactional creation.
type SimulationBooking struct {
	Simulation models.Simulation
	RoomIDs    []string
	UserIDs    []string
}

// SimulationRepository provides persistence for scheduled simulations.
type SimulationRepository struct {
	db *sqlx.DB
}

// NewSimulationRepository creates a new simulation repository.
func NewSimulationRepository(db *sqlx.DB) *SimulationRepository {
	return &SimulationRepository{db: db}
}

// FindByID loads a simulation by id.
func (r *SimulationRepository) FindByID(ctx context.Context, id string) (*models.Simulation, error) {
	query := fmt.Sprintf("SELECT %s FROM simulations WHERE id = $1 LIMIT 1", simulationColumns)
	var sim models.Simulation
	if err := r.db.GetContext(ctx, &sim, query, id); err != nil {
		return nil, err
	}
	return &sim, nil
}

// List returns simulations with optional filtering and pagination.
func (r *SimulationRepository) List(ctx context.Context, filter models.SimulationFilter) ([]models.Simulation, int, error) {
	base := "FROM simulations s WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.PracticeID != "" {
		conditions = append(conditions, fmt.Sprintf("s.practice_id = $%d", len(args)+1))
		args = append(args, filter.PracticeID)
	}
	if filter.RoomID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM simulation_rooms sr WHERE sr.simulation_id = s.id AND sr.room_id = $%d)", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM simulation_users su WHERE su.simulation_id = s.id AND su.user_id = $%d)", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("s.end_date_time > $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("s.start_date_time < $%d", len(args)+1))
		args = append(args, *filter.To)
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

	cols := "s.id, s.group_number, s.start_date_time, s.end_date_time, s.grade_status, s.grade, s.grade_date_time, s.practice_id, s.created_at, s.updated_at"
	query := fmt.Sprintf("SELECT %s %s ORDER BY s.start_date_time ASC LIMIT %d OFFSET %d", cols, base, size, offset)
	var sims []models.Simulation
	if err := r.db.SelectContext(ctx, &sims, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list simulations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count simulations: %w", err)
	}

	return sims, total, nil
}

// FindOverlapping returns simulations booked into the given room whose
// interval intersects the half-open [start, end) window. Abutting intervals
// (existing end == new start) do not intersect. excludeID skips the
// simulation being rescheduled.
func (r *SimulationRepository) FindOverlapping(ctx context.Context, roomID string, start, end time.Time, excludeID string) ([]models.Simulation, error) {
	query := `SELECT s.id, s.group_number, s.start_date_time, s.end_date_time, s.grade_status, s.grade, s.grade_date_time, s.practice_id, s.created_at, s.updated_at
		FROM simulations s
		JOIN simulation_rooms sr ON sr.simulation_id = s.id
		WHERE sr.room_id = $1 AND s.start_date_time < $3 AND s.end_date_time > $2`
	args := []interface{}{roomID, start, end}
	if excludeID != "" {
		query += " AND s.id <> $4"
		args = append(args, excludeID)
	}

	var sims []models.Simulation
	if err := r.db.SelectContext(ctx, &sims, query, args...); err != nil {
		return nil, fmt.Errorf("find overlapping simulations: %w", err)
	}
	return sims, nil
}

// BulkCreate persists the bookings atomically: every simulation with its
// room and participant links, or nothing.
func (r *SimulationRepository) BulkCreate(ctx context.Context, bookings []SimulationBooking) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk create simulations: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for i := range bookings {
		sim := &bookings[i].Simulation
		if sim.ID == "" {
			sim.ID = uuid.NewString()
		}
		if sim.GradeStatus == "" {
			sim.GradeStatus = models.GradePending
		}
		if sim.CreatedAt.IsZero() {
			sim.CreatedAt = now
		}
		sim.UpdatedAt = now

		if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO simulations (id, group_number, start_date_time, end_date_time, grade_status, practice_id, created_at, updated_at) VALUES (:id, :group_number, :start_date_time, :end_date_time, :grade_status, :practice_id, :created_at, :updated_at)`, sim); err != nil {
			return fmt.Errorf("insert simulation: %w", err)
		}
		if err = linkSimulation(ctx, tx, sim.ID, bookings[i].RoomIDs, bookings[i].UserIDs); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk create simulations: %w", err)
	}
	return nil
}

// Update rewrites a simulation's window and relations in one transaction.
func (r *SimulationRepository) Update(ctx context.Context, sim *models.Simulation, roomIDs, userIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update simulation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	sim.UpdatedAt = time.Now().UTC()
	if _, err = sqlx.NamedExecContext(ctx, tx, `UPDATE simulations SET group_number = :group_number, start_date_time = :start_date_time, end_date_time = :end_date_time, practice_id = :practice_id, updated_at = :updated_at WHERE id = :id`, sim); err != nil {
		return fmt.Errorf("update simulation: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM simulation_rooms WHERE simulation_id = $1`, sim.ID); err != nil {
		return fmt.Errorf("clear simulation rooms: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM simulation_users WHERE simulation_id = $1`, sim.ID); err != nil {
		return fmt.Errorf("clear simulation users: %w", err)
	}
	if err = linkSimulation(ctx, tx, sim.ID, roomIDs, userIDs); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update simulation: %w", err)
	}
	return nil
}

func linkSimulation(ctx context.Context, tx *sqlx.Tx, simID string, roomIDs, userIDs []string) error {
	for _, roomID := range roomIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO simulation_rooms (simulation_id, room_id) VALUES ($1, $2)`, simID, roomID); err != nil {
			return fmt.Errorf("link simulation room: %w", err)
		}
	}
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO simulation_users (simulation_id, user_id) VALUES ($1, $2)`, simID, userID); err != nil {
			return fmt.Errorf("link simulation user: %w", err)
		}
	}
	return nil
}

// Delete removes a simulation and its join rows.
func (r *SimulationRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete simulation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM simulation_rooms WHERE simulation_id = $1`, id); err != nil {
		return fmt.Errorf("delete simulation rooms: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM simulation_users WHERE simulation_id = $1`, id); err != nil {
		return fmt.Errorf("delete simulation users: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM simulations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete simulation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete simulation: %w", err)
	}
	return nil
}

// RoomIDs returns the room ids booked by a simulation.
func (r *SimulationRepository) RoomIDs(ctx context.Context, simulationID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT room_id FROM simulation_rooms WHERE simulation_id = $1`, simulationID); err != nil {
		return nil, fmt.Errorf("list simulation rooms: %w", err)
	}
	return ids, nil
}

// ParticipantIDs returns the participant ids of a simulation.
func (r *SimulationRepository) ParticipantIDs(ctx context.Context, simulationID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM simulation_users WHERE simulation_id = $1`, simulationID); err != nil {
		return nil, fmt.Errorf("list simulation participants: %w", err)
	}
	return ids, nil
}

// ScheduleWeek returns one entry per (simulation, room) whose interval
// falls inside [weekStart, weekEnd), for rendering the weekly grid.
func (r *SimulationRepository) ScheduleWeek(ctx context.Context, weekStart, weekEnd time.Time) ([]models.ScheduleEntry, error) {
	const query = `SELECT s.id AS simulation_id, p.id AS practice_id, p.name AS practice_name, rm.id AS room_id, rm.name AS room_name, s.group_number, s.start_date_time, s.end_date_time
		FROM simulations s
		JOIN practices p ON p.id = s.practice_id
		JOIN simulation_rooms sr ON sr.simulation_id = s.id
		JOIN rooms rm ON rm.id = sr.room_id
		WHERE s.start_date_time < $2 AND s.end_date_time > $1
		ORDER BY s.start_date_time ASC, rm.name ASC`
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, weekStart, weekEnd); err != nil {
		return nil, fmt.Errorf("load weekly schedule: %w", err)
	}
	return entries, nil
}

// ListForStudentAndPractice returns the simulations of one practice in which
// the student participates.
func (r *SimulationRepository) ListForStudentAndPractice(ctx context.Context, practiceID, studentID string) ([]models.Simulation, error) {
	const query = `SELECT s.id, s.group_number, s.start_date_time, s.end_date_time, s.grade_status, s.grade, s.grade_date_time, s.practice_id, s.created_at, s.updated_at
		FROM simulations s
		JOIN simulation_users su ON su.simulation_id = s.id
		WHERE s.practice_id = $1 AND su.user_id = $2
		ORDER BY s.start_date_time ASC`
	var sims []models.Simulation
	if err := r.db.SelectContext(ctx, &sims, query, practiceID, studentID); err != nil {
		return nil, fmt.Errorf("list simulations for student: %w", err)
	}
	return sims, nil
}

// ListByPractice returns every simulation under a practice.
func (r *SimulationRepository) ListByPractice(ctx context.Context, practiceID string) ([]models.Simulation, error) {
	query := fmt.Sprintf("SELECT %s FROM simulations WHERE practice_id = $1 ORDER BY start_date_time ASC", simulationColumns)
	var sims []models.Simulation
	if err := r.db.SelectContext(ctx, &sims, query, practiceID); err != nil {
		return nil, fmt.Errorf("list simulations by practice: %w", err)
	}
	return sims, nil
}

// PublishGrade stamps the registered grade fields.
func (r *SimulationRepository) PublishGrade(ctx context.Context, id string, grade float64, gradedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE simulations SET grade = $1, grade_date_time = $2, grade_status = $3, updated_at = $2 WHERE id = $4`, grade, gradedAt, string(models.GradeRegistered), id); err != nil {
		return fmt.Errorf("publish simulation grade: %w", err)
	}
	return nil
}
