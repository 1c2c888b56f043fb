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
	"github.com/clinsim/simlab-api/internal/repository"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type mockSimulationRepo struct {
	items      map[string]*models.Simulation
	rooms      map[string][]string // simulation id -> room ids
	created    []repository.SimulationBooking
	deleted    []string
	published  map[string]float64
	listResult []models.Simulation
	listTotal  int
}

func newMockSimulationRepo() *mockSimulationRepo {
	return &mockSimulationRepo{
		items:     make(map[string]*models.Simulation),
		rooms:     make(map[string][]string),
		published: make(map[string]float64),
	}
}

func (m *mockSimulationRepo) FindByID(ctx context.Context, id string) (*models.Simulation, error) {
	if sim, ok := m.items[id]; ok {
		cp := *sim
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSimulationRepo) List(ctx context.Context, filter models.SimulationFilter) ([]models.Simulation, int, error) {
	return m.listResult, m.listTotal, nil
}

func (m *mockSimulationRepo) FindOverlapping(ctx context.Context, roomID string, start, end time.Time, excludeID string) ([]models.Simulation, error) {
	var conflicts []models.Simulation
	for id, sim := range m.items {
		if id == excludeID {
			continue
		}
		if !containsString(m.rooms[id], roomID) {
			continue
		}
		if sim.StartDateTime.Before(end) && sim.EndDateTime.After(start) {
			conflicts = append(conflicts, *sim)
		}
	}
	return conflicts, nil
}

func (m *mockSimulationRepo) BulkCreate(ctx context.Context, bookings []repository.SimulationBooking) error {
	for i, booking := range bookings {
		sim := booking.Simulation
		sim.ID = fmt.Sprintf("sim-%d", len(m.items)+i+1)
		cp := sim
		m.items[sim.ID] = &cp
		m.rooms[sim.ID] = booking.RoomIDs
	}
	m.created = append(m.created, bookings...)
	return nil
}

func (m *mockSimulationRepo) Update(ctx context.Context, sim *models.Simulation, roomIDs, userIDs []string) error {
	cp := *sim
	m.items[sim.ID] = &cp
	m.rooms[sim.ID] = roomIDs
	return nil
}

func (m *mockSimulationRepo) Delete(ctx context.Context, id string) error {
	delete(m.items, id)
	delete(m.rooms, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockSimulationRepo) RoomIDs(ctx context.Context, simulationID string) ([]string, error) {
	return m.rooms[simulationID], nil
}

func (m *mockSimulationRepo) ScheduleWeek(ctx context.Context, weekStart, weekEnd time.Time) ([]models.ScheduleEntry, error) {
	var entries []models.ScheduleEntry
	for id, sim := range m.items {
		if sim.StartDateTime.Before(weekEnd) && sim.EndDateTime.After(weekStart) {
			for _, roomID := range m.rooms[id] {
				entries = append(entries, models.ScheduleEntry{
					SimulationID:  id,
					RoomID:        roomID,
					GroupNumber:   sim.GroupNumber,
					StartDateTime: sim.StartDateTime,
					EndDateTime:   sim.EndDateTime,
				})
			}
		}
	}
	return entries, nil
}

func (m *mockSimulationRepo) PublishGrade(ctx context.Context, id string, grade float64, gradedAt time.Time) error {
	m.published[id] = grade
	if sim, ok := m.items[id]; ok {
		sim.Grade = &grade
		sim.GradeDateTime = &gradedAt
		sim.GradeStatus = models.GradeRegistered
	}
	return nil
}

type mockPracticeReader struct {
	items map[string]*models.Practice
}

func (m *mockPracticeReader) FindByID(ctx context.Context, id string) (*models.Practice, error) {
	if p, ok := m.items[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockRoomReader struct {
	items map[string]*models.Room
}

func (m *mockRoomReader) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if r, ok := m.items[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockSimulationRubricRepo struct {
	rubrics map[string]*models.Rubric // simulation id -> rubric
	deleted []string
}

func (m *mockSimulationRubricRepo) FindRubricBySimulation(ctx context.Context, simulationID string) (*models.Rubric, error) {
	if r, ok := m.rubrics[simulationID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSimulationRubricRepo) DeleteRubricBySimulation(ctx context.Context, simulationID string) error {
	delete(m.rubrics, simulationID)
	m.deleted = append(m.deleted, simulationID)
	return nil
}

func containsString(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}

func newSimulationServiceForTest(repo *mockSimulationRepo, practices *mockPracticeReader, rubrics *mockSimulationRubricRepo) *SimulationService {
	rooms := &mockRoomReader{items: map[string]*models.Room{
		"room-1": {ID: "room-1", Name: "Sala A"},
		"room-2": {ID: "room-2", Name: "Sala B"},
	}}
	if rubrics == nil {
		rubrics = &mockSimulationRubricRepo{rubrics: make(map[string]*models.Rubric)}
	}
	return NewSimulationService(repo, practices, rooms, rubrics, nil, nil)
}

func groupPractice(id string, groups int) *models.Practice {
	return &models.Practice{
		ID:             id,
		Name:           "Practice " + id,
		Type:           models.PracticeGrupal,
		Gradeable:      true,
		NumberOfGroups: groups,
		ClassID:        "class-1",
	}
}

func TestAddSimulationsAssignsGroupNumbers(t *testing.T) {
	repo := newMockSimulationRepo()
	practices := &mockPracticeReader{items: map[string]*models.Practice{
		"prac-1": groupPractice("prac-1", 3),
	}}
	svc := newSimulationServiceForTest(repo, practices, nil)

	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	req := AddSimulationsRequest{}
	for i := 0; i < 5; i++ {
		start := base.Add(time.Duration(i) * 15 * time.Minute)
		req.Slots = append(req.Slots, TimeSlotRequest{
			PracticeID: "prac-1",
			RoomIDs:    []string{"room-1"},
			Start:      start,
			End:        start.Add(15 * time.Minute),
		})
	}

	created, err := svc.AddSimulations(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, created, 5)

	groups := make([]int, len(created))
	for i, sim := range created {
		groups[i] = sim.GroupNumber
		assert.Equal(t, models.GradePending, sim.GradeStatus)
	}
	assert.Equal(t, []int{1, 2, 3, 1, 2}, groups)
}

func TestAddSimulationsRejectsOverlapWithExisting(t *testing.T) {
	repo := newMockSimulationRepo()
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	repo.items["sim-existing"] = &models.Simulation{
		ID:            "sim-existing",
		StartDateTime: start,
		EndDateTime:   start.Add(time.Hour),
		GradeStatus:   models.GradePending,
		PracticeID:    "prac-1",
	}
	repo.rooms["sim-existing"] = []string{"room-1"}

	practices := &mockPracticeReader{items: map[string]*models.Practice{
		"prac-1": groupPractice("prac-1", 2),
	}}
	svc := newSimulationServiceForTest(repo, practices, nil)

	_, err := svc.AddSimulations(context.Background(), AddSimulationsRequest{
		Slots: []TimeSlotRequest{{
			PracticeID: "prac-1",
			RoomIDs:    []string{"room-1"},
			Start:      start.Add(30 * time.Minute),
			End:        start.Add(90 * time.Minute),
		}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "Sala A")
	assert.Empty(t, repo.created, "no booking should be persisted on conflict")
}

func TestAddSimulationsRejectsOverlapWithinRequest(t *testing.T) {
	repo := newMockSimulationRepo()
	practices := &mockPracticeReader{items: map[string]*models.Practice{
		"prac-1": groupPractice("prac-1", 2),
	}}
	svc := newSimulationServiceForTest(repo, practices, nil)

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	_, err := svc.AddSimulations(context.Background(), AddSimulationsRequest{
		Slots: []TimeSlotRequest{
			{PracticeID: "prac-1", RoomIDs: []string{"room-1"}, Start: start, End: start.Add(time.Hour)},
			{PracticeID: "prac-1", RoomIDs: []string{"room-1"}, Start: start.Add(30 * time.Minute), End: start.Add(90 * time.Minute)},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestAddSimulationsAllowsAbuttingSlots(t *testing.T) {
	repo := newMockSimulationRepo()
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	repo.items["sim-existing"] = &models.Simulation{
		ID:            "sim-existing",
		StartDateTime: start,
		EndDateTime:   start.Add(time.Hour),
		GradeStatus:   models.GradePending,
		PracticeID:    "prac-1",
	}
	repo.rooms["sim-existing"] = []string{"room-1"}

	practices := &mockPracticeReader{items: map[string]*models.Practice{
		"prac-1": groupPractice("prac-1", 2),
	}}
	svc := newSimulationServiceForTest(repo, practices, nil)

	created, err := svc.AddSimulations(context.Background(), AddSimulationsRequest{
		Slots: []TimeSlotRequest{{
			PracticeID: "prac-1",
			RoomIDs:    []string{"room-1"},
			Start:      start.Add(time.Hour),
			End:        start.Add(2 * time.Hour),
		}},
	})
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestAddSimulationsRejectsInvertedSlot(t *testing.T) {
	repo := newMockSimulationRepo()
	practices := &mockPracticeReader{items: map[string]*models.Practice{
		"prac-1": groupPractice("prac-1", 1),
	}}
	svc := newSimulationServiceForTest(repo, practices, nil)

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	_, err := svc.AddSimulations(context.Background(), AddSimulationsRequest{
		Slots: []TimeSlotRequest{{
			PracticeID: "prac-1",
			RoomIDs:    []string{"room-1"},
			Start:      start,
			End:        start.Add(-time.Hour),
		}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPublishGradeCopiesRubricTotal(t *testing.T) {
	repo := newMockSimulationRepo()
	repo.items["sim-1"] = &models.Simulation{
		ID:          "sim-1",
		GradeStatus: models.GradePending,
		PracticeID:  "prac-1",
	}
	rubrics := &mockSimulationRubricRepo{rubrics: map[string]*models.Rubric{
		"sim-1": {ID: "rub-1", SimulationID: "sim-1", Total: 4.2},
	}}
	practices := &mockPracticeReader{items: map[string]*models.Practice{}}
	svc := newSimulationServiceForTest(repo, practices, rubrics)
	fixed := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	sim, err := svc.PublishGrade(context.Background(), "sim-1")
	require.NoError(t, err)
	require.NotNil(t, sim.Grade)
	assert.Equal(t, 4.2, *sim.Grade)
	assert.Equal(t, models.GradeRegistered, sim.GradeStatus)
	require.NotNil(t, sim.GradeDateTime)
	assert.Equal(t, fixed, *sim.GradeDateTime)
	assert.Equal(t, 4.2, repo.published["sim-1"])
}

func TestPublishGradeTwiceRejected(t *testing.T) {
	repo := newMockSimulationRepo()
	grade := 3.5
	repo.items["sim-1"] = &models.Simulation{
		ID:          "sim-1",
		GradeStatus: models.GradeRegistered,
		Grade:       &grade,
		PracticeID:  "prac-1",
	}
	rubrics := &mockSimulationRubricRepo{rubrics: map[string]*models.Rubric{
		"sim-1": {ID: "rub-1", SimulationID: "sim-1", Total: 3.5},
	}}
	practices := &mockPracticeReader{items: map[string]*models.Practice{}}
	svc := newSimulationServiceForTest(repo, practices, rubrics)

	_, err := svc.PublishGrade(context.Background(), "sim-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGradePublished.Code, appErrors.FromError(err).Code)
}

func TestPublishGradeWithoutRubricRejected(t *testing.T) {
	repo := newMockSimulationRepo()
	repo.items["sim-1"] = &models.Simulation{
		ID:          "sim-1",
		GradeStatus: models.GradePending,
		PracticeID:  "prac-1",
	}
	practices := &mockPracticeReader{items: map[string]*models.Practice{}}
	svc := newSimulationServiceForTest(repo, practices, nil)

	_, err := svc.PublishGrade(context.Background(), "sim-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIllegalState.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.published)
}

func TestDeleteSimulationRemovesRubricFirst(t *testing.T) {
	repo := newMockSimulationRepo()
	repo.items["sim-1"] = &models.Simulation{ID: "sim-1", GradeStatus: models.GradePending}
	rubrics := &mockSimulationRubricRepo{rubrics: map[string]*models.Rubric{
		"sim-1": {ID: "rub-1", SimulationID: "sim-1"},
	}}
	practices := &mockPracticeReader{items: map[string]*models.Practice{}}
	svc := newSimulationServiceForTest(repo, practices, rubrics)

	err := svc.Delete(context.Background(), "sim-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sim-1"}, rubrics.deleted)
	assert.Equal(t, []string{"sim-1"}, repo.deleted)
}

func TestWeeklyScheduleProjectsRooms(t *testing.T) {
	repo := newMockSimulationRepo()
	start := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	repo.items["sim-1"] = &models.Simulation{
		ID:            "sim-1",
		StartDateTime: start,
		EndDateTime:   start.Add(time.Hour),
		GradeStatus:   models.GradePending,
	}
	repo.rooms["sim-1"] = []string{"room-1", "room-2"}
	practices := &mockPracticeReader{items: map[string]*models.Practice{}}
	svc := newSimulationServiceForTest(repo, practices, nil)

	entries, err := svc.WeeklySchedule(context.Background(), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
