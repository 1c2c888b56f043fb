package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type roomRepository interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error)
	FindByID(ctx context.Context, id string) (*models.Room, error)
	FindByName(ctx context.Context, name string) (*models.Room, error)
	FindAvailable(ctx context.Context, start, end time.Time, roomTypeID string) ([]models.Room, error)
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id string) error
	CountByType(ctx context.Context, roomTypeID string) (int, error)
	ListTypes(ctx context.Context) ([]models.RoomType, error)
	FindTypeByID(ctx context.Context, id string) (*models.RoomType, error)
	FindTypeByName(ctx context.Context, name string) (*models.RoomType, error)
	CreateType(ctx context.Context, roomType *models.RoomType) error
	DeleteType(ctx context.Context, id string) error
}

// RoomRequest creates or updates a room. RoomTypeName resolves (or lazily
// creates) the room type.
type RoomRequest struct {
	Name         string `json:"name" validate:"required"`
	Capacity     int    `json:"capacity" validate:"required,gt=0"`
	IP           string `json:"ip" validate:"omitempty,ip"`
	RoomTypeName string `json:"room_type" validate:"required"`
}

// RoomService manages rooms and their types. Room types follow room
// membership: creating a room with an unknown type creates the type, and
// deleting the last room of a type deletes the type.
type RoomService struct {
	repo      roomRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoomService constructs RoomService.
func NewRoomService(repo roomRepository, validate *validator.Validate, logger *zap.Logger) *RoomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomService{repo: repo, validator: validate, logger: logger}
}

// List returns rooms matching the filter.
func (s *RoomService) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rooms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	return rooms, &models.Pagination{Page: filter.Page, Size: filter.PageSize, Total: total}, nil
}

// Get loads one room.
func (s *RoomService) Get(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	return room, nil
}

// FindAvailable lists rooms free for the whole [start, end) window.
func (s *RoomService) FindAvailable(ctx context.Context, start, end time.Time, roomTypeID string) ([]models.Room, error) {
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end must be after start")
	}
	rooms, err := s.repo.FindAvailable(ctx, start, end, roomTypeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find available rooms")
	}
	return rooms, nil
}

// Create registers a room with a unique name, resolving its type by name.
func (s *RoomService) Create(ctx context.Context, req RoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}

	if _, err := s.repo.FindByName(ctx, req.Name); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "room name already in use")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room name")
	}

	roomType, err := s.resolveType(ctx, req.RoomTypeName)
	if err != nil {
		return nil, err
	}

	room := &models.Room{
		Name:       req.Name,
		Capacity:   req.Capacity,
		IP:         req.IP,
		RoomTypeID: roomType.ID,
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	s.logger.Info("room created", zap.String("room_id", room.ID), zap.String("name", room.Name))
	return room, nil
}

// Update changes a room. If the type changes and the old type loses its
// last room, the old type is removed.
func (s *RoomService) Update(ctx context.Context, id string, req RoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}

	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != room.Name {
		if _, err := s.repo.FindByName(ctx, req.Name); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "room name already in use")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room name")
		}
	}

	roomType, err := s.resolveType(ctx, req.RoomTypeName)
	if err != nil {
		return nil, err
	}

	previousTypeID := room.RoomTypeID
	room.Name = req.Name
	room.Capacity = req.Capacity
	room.IP = req.IP
	room.RoomTypeID = roomType.ID

	if err := s.repo.Update(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}

	if previousTypeID != roomType.ID {
		if err := s.removeTypeIfEmpty(ctx, previousTypeID); err != nil {
			return nil, err
		}
	}
	return room, nil
}

// Delete removes a room, and its type when the room was the type's last.
func (s *RoomService) Delete(ctx context.Context, id string) error {
	room, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete room")
	}
	return s.removeTypeIfEmpty(ctx, room.RoomTypeID)
}

// ListTypes returns all room types.
func (s *RoomService) ListTypes(ctx context.Context) ([]models.RoomType, error) {
	types, err := s.repo.ListTypes(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list room types")
	}
	return types, nil
}

func (s *RoomService) resolveType(ctx context.Context, name string) (*models.RoomType, error) {
	roomType, err := s.repo.FindTypeByName(ctx, name)
	if err == nil {
		return roomType, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room type")
	}

	roomType = &models.RoomType{Name: name}
	if err := s.repo.CreateType(ctx, roomType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room type")
	}
	s.logger.Info("room type created", zap.String("room_type_id", roomType.ID), zap.String("name", name))
	return roomType, nil
}

func (s *RoomService) removeTypeIfEmpty(ctx context.Context, roomTypeID string) error {
	count, err := s.repo.CountByType(ctx, roomTypeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count rooms by type")
	}
	if count > 0 {
		return nil
	}
	if err := s.repo.DeleteType(ctx, roomTypeID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete empty room type")
	}
	s.logger.Info("room type removed with its last room", zap.String("room_type_id", roomTypeID))
	return nil
}
