package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clinsim/simlab-api/internal/models"
	"github.com/clinsim/simlab-api/internal/repository"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type simulationRepo interface {
	FindByID(ctx context.Context, id string) (*models.Simulation, error)
	List(ctx context.Context, filter models.SimulationFilter) ([]models.Simulation, int, error)
	FindOverlapping(ctx context.Context, roomID string, start, end time.Time, excludeID string) ([]models.Simulation, error)
	BulkCreate(ctx context.Context, bookings []repository.SimulationBooking) error
	Update(ctx context.Context, sim *models.Simulation, roomIDs, userIDs []string) error
	Delete(ctx context.Context, id string) error
	RoomIDs(ctx context.Context, simulationID string) ([]string, error)
	ScheduleWeek(ctx context.Context, weekStart, weekEnd time.Time) ([]models.ScheduleEntry, error)
	PublishGrade(ctx context.Context, id string, grade float64, gradedAt time.Time) error
}

type practiceReader interface {
	FindByID(ctx context.Context, id string) (*models.Practice, error)
}

type roomReader interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

type simulationRubricRepo interface {
	FindRubricBySimulation(ctx context.Context, simulationID string) (*models.Rubric, error)
	DeleteRubricBySimulation(ctx context.Context, simulationID string) error
}

// TimeSlotRequest describes one requested booking: a practice, a room set
// and a half-open [start, end) window.
type TimeSlotRequest struct {
	PracticeID string    `json:"practice_id" validate:"required"`
	RoomIDs    []string  `json:"room_ids" validate:"required,min=1"`
	UserIDs    []string  `json:"user_ids"`
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required"`
}

// AddSimulationsRequest is the bulk scheduling payload.
type AddSimulationsRequest struct {
	Slots []TimeSlotRequest `json:"slots" validate:"required,min=1,dive"`
}

// UpdateSimulationRequest reschedules one simulation.
type UpdateSimulationRequest struct {
	RoomIDs []string  `json:"room_ids" validate:"required,min=1"`
	UserIDs []string  `json:"user_ids"`
	Start   time.Time `json:"start" validate:"required"`
	End     time.Time `json:"end" validate:"required"`
}

// roomLocks serialises check-and-book sequences per room. Booking reads the
// existing reservations and then writes; without the lock two concurrent
// requests for the same room could both pass the availability check.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the given rooms in sorted order and returns the release
// function. Sorting keeps lock acquisition deadlock free across requests.
func (l *roomLocks) acquire(roomIDs []string) func() {
	unique := make(map[string]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		unique[id] = struct{}{}
	}
	sorted := make([]string, 0, len(unique))
	for id := range unique {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	acquired := make([]*sync.Mutex, 0, len(sorted))
	for _, id := range sorted {
		l.mu.Lock()
		mu, ok := l.locks[id]
		if !ok {
			mu = &sync.Mutex{}
			l.locks[id] = mu
		}
		l.mu.Unlock()
		mu.Lock()
		acquired = append(acquired, mu)
	}

	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}

// SimulationService schedules simulation occurrences, guaranteeing no room
// is double-booked, and owns the grade publication state machine.
type SimulationService struct {
	simulations simulationRepo
	practices   practiceReader
	rooms       roomReader
	rubrics     simulationRubricRepo
	validator   *validator.Validate
	logger      *zap.Logger
	locks       *roomLocks
	now         func() time.Time
}

// NewSimulationService constructs SimulationService.
func NewSimulationService(simulations simulationRepo, practices practiceReader, rooms roomReader, rubrics simulationRubricRepo, validate *validator.Validate, logger *zap.Logger) *SimulationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulationService{
		simulations: simulations,
		practices:   practices,
		rooms:       rooms,
		rubrics:     rubrics,
		validator:   validate,
		logger:      logger,
		locks:       newRoomLocks(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List returns simulations matching the filter.
func (s *SimulationService) List(ctx context.Context, filter models.SimulationFilter) ([]models.Simulation, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	sims, total, err := s.simulations.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list simulations")
	}
	return sims, &models.Pagination{Page: filter.Page, Size: filter.PageSize, Total: total}, nil
}

// Get loads one simulation.
func (s *SimulationService) Get(ctx context.Context, id string) (*models.Simulation, error) {
	sim, err := s.simulations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "simulation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load simulation")
	}
	return sim, nil
}

// AddSimulations books every requested slot or nothing. Group numbers are
// assigned here and nowhere else: within one call, the n-th simulation
// created for a practice gets group (n mod numberOfGroups) + 1, wrapping
// back to 1 once every group has a slot.
func (s *SimulationService) AddSimulations(ctx context.Context, req AddSimulationsRequest) ([]models.Simulation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scheduling payload")
	}
	for _, slot := range req.Slots {
		if !slot.End.After(slot.Start) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "slot end must be after start")
		}
	}

	allRooms := make([]string, 0)
	for _, slot := range req.Slots {
		allRooms = append(allRooms, slot.RoomIDs...)
	}
	release := s.locks.acquire(allRooms)
	defer release()

	bookings := make([]repository.SimulationBooking, 0, len(req.Slots))
	groupCounters := make(map[string]int)

	for _, slot := range req.Slots {
		practice, err := s.practices.FindByID(ctx, slot.PracticeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "practice not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load practice")
		}

		for _, roomID := range slot.RoomIDs {
			if err := s.checkRoomFree(ctx, roomID, slot.Start, slot.End, ""); err != nil {
				return nil, err
			}
			// Slots within the same request are not persisted yet, so the
			// repository query cannot see them. Check them pairwise.
			for _, pending := range bookings {
				if !bookingUsesRoom(pending, roomID) {
					continue
				}
				if pending.Simulation.StartDateTime.Before(slot.End) && pending.Simulation.EndDateTime.After(slot.Start) {
					return nil, s.conflictError(ctx, roomID, pending.Simulation.StartDateTime, pending.Simulation.EndDateTime)
				}
			}
		}

		groups := practice.NumberOfGroups
		if groups < 1 {
			groups = 1
		}
		index := groupCounters[practice.ID]
		groupCounters[practice.ID] = index + 1

		bookings = append(bookings, repository.SimulationBooking{
			Simulation: models.Simulation{
				GroupNumber:   (index % groups) + 1,
				StartDateTime: slot.Start,
				EndDateTime:   slot.End,
				GradeStatus:   models.GradePending,
				PracticeID:    practice.ID,
			},
			RoomIDs: slot.RoomIDs,
			UserIDs: slot.UserIDs,
		})
	}

	if err := s.simulations.BulkCreate(ctx, bookings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist simulations")
	}

	created := make([]models.Simulation, len(bookings))
	for i, booking := range bookings {
		created[i] = booking.Simulation
	}
	s.logger.Info("simulations scheduled", zap.Int("count", len(created)))
	return created, nil
}

// Update reschedules a simulation, re-validating room availability against
// every other simulation.
func (s *SimulationService) Update(ctx context.Context, id string, req UpdateSimulationRequest) (*models.Simulation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scheduling payload")
	}
	if !req.End.After(req.Start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot end must be after start")
	}

	sim, err := s.simulations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "simulation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load simulation")
	}

	release := s.locks.acquire(req.RoomIDs)
	defer release()

	for _, roomID := range req.RoomIDs {
		if err := s.checkRoomFree(ctx, roomID, req.Start, req.End, sim.ID); err != nil {
			return nil, err
		}
	}

	sim.StartDateTime = req.Start
	sim.EndDateTime = req.End
	if err := s.simulations.Update(ctx, sim, req.RoomIDs, req.UserIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update simulation")
	}
	return sim, nil
}

// Delete removes a simulation and its rubric. The cascade is explicit: the
// rubric goes first so a failed delete never leaves an orphan.
func (s *SimulationService) Delete(ctx context.Context, id string) error {
	if _, err := s.simulations.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "simulation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load simulation")
	}

	if err := s.rubrics.DeleteRubricBySimulation(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete simulation rubric")
	}
	if err := s.simulations.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete simulation")
	}
	return nil
}

// WeeklySchedule returns the schedule grid for the week starting at date,
// one entry per (simulation, room).
func (s *SimulationService) WeeklySchedule(ctx context.Context, date time.Time) ([]models.ScheduleEntry, error) {
	weekStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	weekEnd := weekStart.AddDate(0, 0, 7)

	entries, err := s.simulations.ScheduleWeek(ctx, weekStart, weekEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly schedule")
	}
	return entries, nil
}

// PublishGrade copies the rubric total into the simulation grade and moves
// gradeStatus PENDING -> REGISTERED. The transition is one-way: publishing
// an already registered grade is rejected.
func (s *SimulationService) PublishGrade(ctx context.Context, id string) (*models.Simulation, error) {
	sim, err := s.simulations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "simulation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load simulation")
	}

	if sim.GradeStatus == models.GradeRegistered {
		return nil, appErrors.Clone(appErrors.ErrGradePublished, "grade already published for this simulation")
	}

	rubric, err := s.rubrics.FindRubricBySimulation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrIllegalState, "simulation has no rubric to publish")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rubric")
	}

	gradedAt := s.now()
	if err := s.simulations.PublishGrade(ctx, id, rubric.Total, gradedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish grade")
	}

	sim.Grade = &rubric.Total
	sim.GradeDateTime = &gradedAt
	sim.GradeStatus = models.GradeRegistered
	return sim, nil
}

func (s *SimulationService) checkRoomFree(ctx context.Context, roomID string, start, end time.Time, excludeID string) error {
	conflicts, err := s.simulations.FindOverlapping(ctx, roomID, start, end, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room availability")
	}
	if len(conflicts) == 0 {
		return nil
	}
	return s.conflictError(ctx, roomID, conflicts[0].StartDateTime, conflicts[0].EndDateTime)
}

func (s *SimulationService) conflictError(ctx context.Context, roomID string, start, end time.Time) error {
	roomName := roomID
	if room, err := s.rooms.FindByID(ctx, roomID); err == nil {
		roomName = room.Name
	}
	return appErrors.Clone(appErrors.ErrScheduleConflict,
		fmt.Sprintf("room %s is already booked from %s to %s", roomName, start.Format(time.RFC3339), end.Format(time.RFC3339)))
}

func bookingUsesRoom(booking repository.SimulationBooking, roomID string) bool {
	for _, id := range booking.RoomIDs {
		if id == roomID {
			return true
		}
	}
	return false
}
