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

const roomColumns = "id, name, capacity, ip, room_type_id, created_at, updated_at"

// RoomRepository provides persistence for rooms and room types.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository creates a new room repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// List returns rooms with optional filtering and pagination.
func (r *RoomRepository) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error) {
	base := "FROM rooms WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.RoomTypeID != "" {
		conditions = append(conditions, fmt.Sprintf("room_type_id = $%d", len(args)+1))
		args = append(args, filter.RoomTypeID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"name": true, "capacity": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", roomColumns, base, sortBy, order, size, offset)
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list rooms: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count rooms: %w", err)
	}

	return rooms, total, nil
}

// FindByID loads a room by id.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	query := fmt.Sprintf("SELECT %s FROM rooms WHERE id = $1 LIMIT 1", roomColumns)
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// FindByName loads a room by its unique name.
func (r *RoomRepository) FindByName(ctx context.Context, name string) (*models.Room, error) {
	query := fmt.Sprintf("SELECT %s FROM rooms WHERE name = $1 LIMIT 1", roomColumns)
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, name); err != nil {
		return nil, err
	}
	return &room, nil
}

// FindAvailable returns rooms with no simulation intersecting the half-open
// [start, end) window, optionally restricted to a room type.
func (r *RoomRepository) FindAvailable(ctx context.Context, start, end time.Time, roomTypeID string) ([]models.Room, error) {
	query := `SELECT r.id, r.name, r.capacity, r.ip, r.room_type_id, r.created_at, r.updated_at FROM rooms r WHERE NOT EXISTS (
		SELECT 1 FROM simulation_rooms sr
		JOIN simulations s ON s.id = sr.simulation_id
		WHERE sr.room_id = r.id AND s.start_date_time < $2 AND s.end_date_time > $1
	)`
	args := []interface{}{start, end}
	if roomTypeID != "" {
		query += " AND r.room_type_id = $3"
		args = append(args, roomTypeID)
	}
	query += " ORDER BY r.name ASC"

	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, fmt.Errorf("find available rooms: %w", err)
	}
	return rooms, nil
}

// Create stores a new room record.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now

	const query = `INSERT INTO rooms (id, name, capacity, ip, room_type_id, created_at, updated_at) VALUES (:id, :name, :capacity, :ip, :room_type_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// Update modifies a room record.
func (r *RoomRepository) Update(ctx context.Context, room *models.Room) error {
	room.UpdatedAt = time.Now().UTC()
	const query = `UPDATE rooms SET name = :name, capacity = :capacity, ip = :ip, room_type_id = :room_type_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	return nil
}

// Delete removes a room by id.
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// CountByType returns how many rooms remain under a room type.
func (r *RoomRepository) CountByType(ctx context.Context, roomTypeID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM rooms WHERE room_type_id = $1`, roomTypeID); err != nil {
		return 0, fmt.Errorf("count rooms by type: %w", err)
	}
	return count, nil
}

// ListTypes returns all room types.
func (r *RoomRepository) ListTypes(ctx context.Context) ([]models.RoomType, error) {
	var types []models.RoomType
	if err := r.db.SelectContext(ctx, &types, `SELECT id, name, created_at FROM room_types ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list room types: %w", err)
	}
	return types, nil
}

// FindTypeByID loads a room type by id.
func (r *RoomRepository) FindTypeByID(ctx context.Context, id string) (*models.RoomType, error) {
	var roomType models.RoomType
	if err := r.db.GetContext(ctx, &roomType, `SELECT id, name, created_at FROM room_types WHERE id = $1 LIMIT 1`, id); err != nil {
		return nil, err
	}
	return &roomType, nil
}

// FindTypeByName loads a room type by name.
func (r *RoomRepository) FindTypeByName(ctx context.Context, name string) (*models.RoomType, error) {
	var roomType models.RoomType
	if err := r.db.GetContext(ctx, &roomType, `SELECT id, name, created_at FROM room_types WHERE name = $1 LIMIT 1`, name); err != nil {
		return nil, err
	}
	return &roomType, nil
}

// CreateType stores a new room type.
func (r *RoomRepository) CreateType(ctx context.Context, roomType *models.RoomType) error {
	if roomType.ID == "" {
		roomType.ID = uuid.NewString()
	}
	if roomType.CreatedAt.IsZero() {
		roomType.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO room_types (id, name, created_at) VALUES (:id, :name, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, roomType); err != nil {
		return fmt.Errorf("create room type: %w", err)
	}
	return nil
}

// DeleteType removes a room type by id.
func (r *RoomRepository) DeleteType(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM room_types WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete room type: %w", err)
	}
	return nil
}
