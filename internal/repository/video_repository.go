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

const videoColumns = "id, name, duration_secs, size_bytes, available, expiration_date, storage_url, simulation_id, created_at, updated_at"

// VideoRepository provides persistence for recording metadata.
type VideoRepository struct {
	db *sqlx.DB
}

// NewVideoRepository creates a new video repository.
func NewVideoRepository(db *sqlx.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// List returns videos with optional filtering and pagination.
func (r *VideoRepository) List(ctx context.Context, filter models.VideoFilter) ([]models.Video, int, error) {
	base := "FROM videos WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.SimulationID != "" {
		conditions = append(conditions, fmt.Sprintf("simulation_id = $%d", len(args)+1))
		args = append(args, filter.SimulationID)
	}
	if filter.Available != nil {
		conditions = append(conditions, fmt.Sprintf("available = $%d", len(args)+1))
		args = append(args, *filter.Available)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", videoColumns, base, size, offset)
	var videos []models.Video
	if err := r.db.SelectContext(ctx, &videos, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list videos: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	return videos, total, nil
}

// FindByID loads a video by id.
func (r *VideoRepository) FindByID(ctx context.Context, id string) (*models.Video, error) {
	query := fmt.Sprintf("SELECT %s FROM videos WHERE id = $1 LIMIT 1", videoColumns)
	var video models.Video
	if err := r.db.GetContext(ctx, &video, query, id); err != nil {
		return nil, err
	}
	return &video, nil
}

// FindByName loads a video by recording name.
func (r *VideoRepository) FindByName(ctx context.Context, name string) (*models.Video, error) {
	query := fmt.Sprintf("SELECT %s FROM videos WHERE name = $1 LIMIT 1", videoColumns)
	var video models.Video
	if err := r.db.GetContext(ctx, &video, query, name); err != nil {
		return nil, err
	}
	return &video, nil
}

// Create stores a new video record.
func (r *VideoRepository) Create(ctx context.Context, video *models.Video) error {
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if video.CreatedAt.IsZero() {
		video.CreatedAt = now
	}
	video.UpdatedAt = now

	const query = `INSERT INTO videos (id, name, duration_secs, size_bytes, available, expiration_date, storage_url, simulation_id, created_at, updated_at) VALUES (:id, :name, :duration_secs, :size_bytes, :available, :expiration_date, :storage_url, :simulation_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, video); err != nil {
		return fmt.Errorf("create video: %w", err)
	}
	return nil
}

// AttachSimulation links a recording to its simulation.
func (r *VideoRepository) AttachSimulation(ctx context.Context, videoID, simulationID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE videos SET simulation_id = $1, updated_at = $2 WHERE id = $3`, simulationID, time.Now().UTC(), videoID); err != nil {
		return fmt.Errorf("attach video to simulation: %w", err)
	}
	return nil
}

// MarkUnavailableExpired disables recordings past their expiration date and
// returns the affected storage paths for cleanup.
func (r *VideoRepository) MarkUnavailableExpired(ctx context.Context, now time.Time) ([]string, error) {
	var paths []string
	const query = `UPDATE videos SET available = false, updated_at = $1 WHERE expiration_date < $1 AND available = true RETURNING storage_url`
	if err := r.db.SelectContext(ctx, &paths, query, now); err != nil {
		return nil, fmt.Errorf("expire videos: %w", err)
	}
	return paths, nil
}

// Delete removes a video record.
func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return nil
}
