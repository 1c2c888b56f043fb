package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type mockRoomRepo struct {
	rooms        map[string]*models.Room
	types        map[string]*models.RoomType
	deletedTypes []string
	available    []models.Room
}

func newMockRoomRepo() *mockRoomRepo {
	return &mockRoomRepo{
		rooms: make(map[string]*models.Room),
		types: make(map[string]*models.RoomType),
	}
}

func (m *mockRoomRepo) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error) {
	var out []models.Room
	for _, r := range m.rooms {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *mockRoomRepo) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if r, ok := m.rooms[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoomRepo) FindByName(ctx context.Context, name string) (*models.Room, error) {
	for _, r := range m.rooms {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoomRepo) FindAvailable(ctx context.Context, start, end time.Time, roomTypeID string) ([]models.Room, error) {
	return m.available, nil
}

func (m *mockRoomRepo) Create(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = fmt.Sprintf("room-%d", len(m.rooms)+1)
	}
	cp := *room
	m.rooms[room.ID] = &cp
	return nil
}

func (m *mockRoomRepo) Update(ctx context.Context, room *models.Room) error {
	cp := *room
	m.rooms[room.ID] = &cp
	return nil
}

func (m *mockRoomRepo) Delete(ctx context.Context, id string) error {
	delete(m.rooms, id)
	return nil
}

func (m *mockRoomRepo) CountByType(ctx context.Context, roomTypeID string) (int, error) {
	count := 0
	for _, r := range m.rooms {
		if r.RoomTypeID == roomTypeID {
			count++
		}
	}
	return count, nil
}

func (m *mockRoomRepo) ListTypes(ctx context.Context) ([]models.RoomType, error) {
	var out []models.RoomType
	for _, t := range m.types {
		out = append(out, *t)
	}
	return out, nil
}

func (m *mockRoomRepo) FindTypeByID(ctx context.Context, id string) (*models.RoomType, error) {
	if t, ok := m.types[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoomRepo) FindTypeByName(ctx context.Context, name string) (*models.RoomType, error) {
	for _, t := range m.types {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoomRepo) CreateType(ctx context.Context, roomType *models.RoomType) error {
	if roomType.ID == "" {
		roomType.ID = fmt.Sprintf("type-%d", len(m.types)+1)
	}
	cp := *roomType
	m.types[roomType.ID] = &cp
	return nil
}

func (m *mockRoomRepo) DeleteType(ctx context.Context, id string) error {
	delete(m.types, id)
	m.deletedTypes = append(m.deletedTypes, id)
	return nil
}

func TestCreateRoomLazilyCreatesType(t *testing.T) {
	repo := newMockRoomRepo()
	svc := NewRoomService(repo, nil, nil)

	room, err := svc.Create(context.Background(), RoomRequest{
		Name:         "Sala A",
		Capacity:     12,
		RoomTypeName: "UCI",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, room.RoomTypeID)
	assert.Len(t, repo.types, 1)

	// second room with the same type name reuses the type
	_, err = svc.Create(context.Background(), RoomRequest{
		Name:         "Sala B",
		Capacity:     8,
		RoomTypeName: "UCI",
	})
	require.NoError(t, err)
	assert.Len(t, repo.types, 1)
}

func TestCreateRoomDuplicateNameRejected(t *testing.T) {
	repo := newMockRoomRepo()
	svc := NewRoomService(repo, nil, nil)

	_, err := svc.Create(context.Background(), RoomRequest{Name: "Sala A", Capacity: 12, RoomTypeName: "UCI"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), RoomRequest{Name: "Sala A", Capacity: 6, RoomTypeName: "Urgencias"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateRoomRejectsBadIP(t *testing.T) {
	repo := newMockRoomRepo()
	svc := NewRoomService(repo, nil, nil)

	_, err := svc.Create(context.Background(), RoomRequest{
		Name:         "Sala A",
		Capacity:     12,
		IP:           "not-an-ip",
		RoomTypeName: "UCI",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDeleteLastRoomRemovesType(t *testing.T) {
	repo := newMockRoomRepo()
	svc := NewRoomService(repo, nil, nil)

	room, err := svc.Create(context.Background(), RoomRequest{Name: "Sala A", Capacity: 12, RoomTypeName: "UCI"})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Empty(t, repo.types)
	assert.Equal(t, []string{room.RoomTypeID}, repo.deletedTypes)
}

func TestDeleteRoomKeepsPopulatedType(t *testing.T) {
	repo := newMockRoomRepo()
	svc := NewRoomService(repo, nil, nil)

	first, err := svc.Create(context.Background(), RoomRequest{Name: "Sala A", Capacity: 12, RoomTypeName: "UCI"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), RoomRequest{Name: "Sala B", Capacity: 8, RoomTypeName: "UCI"})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Len(t, repo.types, 1)
	assert.Empty(t, repo.deletedTypes)
}

func TestUpdateRoomTypeChangeRemovesEmptiedType(t *testing.T) {
	repo := newMockRoomRepo()
	svc := NewRoomService(repo, nil, nil)

	room, err := svc.Create(context.Background(), RoomRequest{Name: "Sala A", Capacity: 12, RoomTypeName: "UCI"})
	require.NoError(t, err)
	oldTypeID := room.RoomTypeID

	updated, err := svc.Update(context.Background(), room.ID, RoomRequest{
		Name:         "Sala A",
		Capacity:     12,
		RoomTypeName: "Urgencias",
	})
	require.NoError(t, err)
	assert.NotEqual(t, oldTypeID, updated.RoomTypeID)
	assert.Equal(t, []string{oldTypeID}, repo.deletedTypes)
	assert.Len(t, repo.types, 1)
}

func TestFindAvailableRejectsInvertedWindow(t *testing.T) {
	repo := newMockRoomRepo()
	svc := NewRoomService(repo, nil, nil)

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	_, err := svc.FindAvailable(context.Background(), start, start, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
