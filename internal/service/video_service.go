package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
	"github.com/clinsim/simlab-api/pkg/storage"
)

type videoRepository interface {
	List(ctx context.Context, filter models.VideoFilter) ([]models.Video, int, error)
	FindByID(ctx context.Context, id string) (*models.Video, error)
	FindByName(ctx context.Context, name string) (*models.Video, error)
	Create(ctx context.Context, video *models.Video) error
	AttachSimulation(ctx context.Context, videoID, simulationID string) error
	MarkUnavailableExpired(ctx context.Context, now time.Time) ([]string, error)
	Delete(ctx context.Context, id string) error
}

type videoSimulationReader interface {
	FindByID(ctx context.Context, id string) (*models.Simulation, error)
}

// RegisterVideoRequest ingests a recording from the lab recorder.
type RegisterVideoRequest struct {
	Name         string  `json:"name" validate:"required"`
	DurationSecs int     `json:"duration_secs" validate:"gte=0"`
	SimulationID *string `json:"simulation_id"`
}

// PlaybackGrant is a short-lived signed handle for streaming a video.
type PlaybackGrant struct {
	VideoID   string    `json:"video_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VideoService manages recording metadata, the on-disk store behind it and
// signed playback grants. Recordings expire after the retention window and
// are swept by the background job.
type VideoService struct {
	repo        videoRepository
	simulations videoSimulationReader
	store       *storage.VideoStore
	signer      *storage.PlaybackSigner
	retention   time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewVideoService constructs VideoService.
func NewVideoService(repo videoRepository, simulations videoSimulationReader, store *storage.VideoStore, signer *storage.PlaybackSigner, retention time.Duration, validate *validator.Validate, logger *zap.Logger) *VideoService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VideoService{
		repo:        repo,
		simulations: simulations,
		store:       store,
		signer:      signer,
		retention:   retention,
		validator:   validate,
		logger:      logger,
	}
}

// List returns videos matching the filter.
func (s *VideoService) List(ctx context.Context, filter models.VideoFilter) ([]models.Video, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	videos, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list videos")
	}
	return videos, &models.Pagination{Page: filter.Page, Size: filter.PageSize, Total: total}, nil
}

// Get loads one video.
func (s *VideoService) Get(ctx context.Context, id string) (*models.Video, error) {
	video, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "video not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load video")
	}
	return video, nil
}

// Register stores the recording stream and its metadata. Recording names
// are unique per recorder export, so a repeated name is the recorder
// re-sending a file we already have.
func (s *VideoService) Register(ctx context.Context, req RegisterVideoRequest, content io.Reader) (*models.Video, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid video payload")
	}

	if existing, err := s.repo.FindByName(ctx, req.Name); err == nil {
		return existing, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check video name")
	}

	if req.SimulationID != nil {
		if _, err := s.simulations.FindByID(ctx, *req.SimulationID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "simulation not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load simulation")
		}
	}

	relPath, err := s.store.SaveStream(req.Name, content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store video file")
	}
	info, err := s.store.Stat(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat stored video")
	}

	video := &models.Video{
		Name:           req.Name,
		DurationSecs:   req.DurationSecs,
		SizeBytes:      info.Size(),
		Available:      true,
		ExpirationDate: time.Now().UTC().Add(s.retention),
		StorageURL:     relPath,
		SimulationID:   req.SimulationID,
	}
	if err := s.repo.Create(ctx, video); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist video")
	}

	s.logger.Info("video registered",
		zap.String("video_id", video.ID),
		zap.String("name", video.Name),
		zap.Int64("size_bytes", video.SizeBytes))
	return video, nil
}

// AttachSimulation links an existing video to a simulation.
func (s *VideoService) AttachSimulation(ctx context.Context, videoID, simulationID string) error {
	if _, err := s.Get(ctx, videoID); err != nil {
		return err
	}
	if _, err := s.simulations.FindByID(ctx, simulationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "simulation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load simulation")
	}
	if err := s.repo.AttachSimulation(ctx, videoID, simulationID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach video")
	}
	return nil
}

// PlaybackGrant issues the signed token required by the streaming endpoint.
// Unavailable or expired videos cannot be granted.
func (s *VideoService) PlaybackGrant(ctx context.Context, videoID string) (*PlaybackGrant, error) {
	video, err := s.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if !video.Available || time.Now().UTC().After(video.ExpirationDate) {
		return nil, appErrors.Clone(appErrors.ErrIllegalState, "video is no longer available")
	}

	token, expiresAt, err := s.signer.Generate(video.ID, video.StorageURL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign playback token")
	}
	return &PlaybackGrant{VideoID: video.ID, Token: token, ExpiresAt: expiresAt}, nil
}

// ResolvePlayback validates a playback token and opens the backing file.
// The caller owns the returned handle.
func (s *VideoService) ResolvePlayback(ctx context.Context, token string) (*models.Video, string, error) {
	videoID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid playback token")
	}

	video, err := s.Get(ctx, videoID)
	if err != nil {
		return nil, "", err
	}
	if !video.Available || video.StorageURL != relPath {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "video is no longer available")
	}
	return video, s.store.Path(relPath), nil
}

// ResolveByTitle looks a recording up by its name for direct streaming.
func (s *VideoService) ResolveByTitle(ctx context.Context, title string) (*models.Video, string, error) {
	video, err := s.repo.FindByName(ctx, title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "video not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load video")
	}
	if !video.Available {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "video is no longer available")
	}
	return video, s.store.Path(video.StorageURL), nil
}

// SweepExpired marks expired videos unavailable and removes their files.
// Run by the background maintenance job.
func (s *VideoService) SweepExpired(ctx context.Context) (int, error) {
	names, err := s.repo.MarkUnavailableExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire videos")
	}
	for _, name := range names {
		if err := s.store.Delete(name); err != nil {
			s.logger.Warn("failed to remove expired video file", zap.String("name", name), zap.Error(err))
		}
	}
	if len(names) > 0 {
		s.logger.Info("expired videos swept", zap.Int("count", len(names)))
	}
	return len(names), nil
}
