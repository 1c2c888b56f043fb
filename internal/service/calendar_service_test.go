package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
)

type mockCalendarRepo struct {
	allEvents   []models.CalendarEvent
	classEvents map[string][]models.CalendarEvent // class id -> events
	userEvents  map[string][]models.CalendarEvent // user id -> events

	allCalls   int
	classCalls int
	userCalls  int
}

func (m *mockCalendarRepo) EventsForClasses(ctx context.Context, classIDs []string, from, to time.Time) ([]models.CalendarEvent, error) {
	m.classCalls++
	var out []models.CalendarEvent
	for _, id := range classIDs {
		out = append(out, m.classEvents[id]...)
	}
	return out, nil
}

func (m *mockCalendarRepo) EventsForUser(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarEvent, error) {
	m.userCalls++
	return m.userEvents[userID], nil
}

func (m *mockCalendarRepo) AllEvents(ctx context.Context, from, to time.Time) ([]models.CalendarEvent, error) {
	m.allCalls++
	return m.allEvents, nil
}

type mockCalendarClassRepo struct {
	memberships map[string][]string // user id -> class ids
}

func (m *mockCalendarClassRepo) ListClassIDsForUser(ctx context.Context, userID string, role models.ClassMemberRole) ([]string, error) {
	return m.memberships[userID], nil
}

func calendarEvent(id string) models.CalendarEvent {
	return models.CalendarEvent{
		SimulationID: id,
		PracticeName: "Triage",
		Start:        time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestCalendarAdminSeesAllEvents(t *testing.T) {
	repo := &mockCalendarRepo{allEvents: []models.CalendarEvent{calendarEvent("sim-1"), calendarEvent("sim-2")}}
	classes := &mockCalendarClassRepo{}
	svc := NewCalendarService(repo, classes, nil, time.Minute, nil)

	events, err := svc.EventsForUser(context.Background(), "user-1", models.RoleAdmin, "2026-03-01", "2026-03-07")
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 1, repo.allCalls)
	assert.Zero(t, repo.classCalls)
}

func TestCalendarStudentScopedToClasses(t *testing.T) {
	repo := &mockCalendarRepo{
		allEvents: []models.CalendarEvent{calendarEvent("sim-1"), calendarEvent("sim-2"), calendarEvent("sim-3")},
		classEvents: map[string][]models.CalendarEvent{
			"class-1": {calendarEvent("sim-1")},
		},
	}
	classes := &mockCalendarClassRepo{memberships: map[string][]string{"stu-1": {"class-1"}}}
	svc := NewCalendarService(repo, classes, nil, time.Minute, nil)

	events, err := svc.EventsForUser(context.Background(), "stu-1", models.RoleStudent, "2026-03-01", "2026-03-07")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Zero(t, repo.allCalls)
}

func TestCalendarFallsBackToDirectParticipation(t *testing.T) {
	repo := &mockCalendarRepo{
		userEvents: map[string][]models.CalendarEvent{
			"stu-1": {calendarEvent("sim-9")},
		},
	}
	// enrolled in no class
	classes := &mockCalendarClassRepo{memberships: map[string][]string{}}
	svc := NewCalendarService(repo, classes, nil, time.Minute, nil)

	events, err := svc.EventsForUser(context.Background(), "stu-1", models.RoleStudent, "2026-03-01", "2026-03-07")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "sim-9", events[0].SimulationID)
	assert.Equal(t, 1, repo.userCalls)
}

func TestCalendarEmptyRangeIsNotFound(t *testing.T) {
	repo := &mockCalendarRepo{}
	classes := &mockCalendarClassRepo{}
	svc := NewCalendarService(repo, classes, nil, time.Minute, nil)

	_, err := svc.EventsForUser(context.Background(), "user-1", models.RoleAdmin, "2026-03-01", "2026-03-07")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCalendarUnknownRoleForbidden(t *testing.T) {
	repo := &mockCalendarRepo{allEvents: []models.CalendarEvent{calendarEvent("sim-1")}}
	classes := &mockCalendarClassRepo{}
	svc := NewCalendarService(repo, classes, nil, time.Minute, nil)

	_, err := svc.EventsForUser(context.Background(), "user-1", models.UserRole("VISITOR"), "2026-03-01", "2026-03-07")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCalendarRejectsMalformedDates(t *testing.T) {
	repo := &mockCalendarRepo{}
	classes := &mockCalendarClassRepo{}
	svc := NewCalendarService(repo, classes, nil, time.Minute, nil)

	_, err := svc.EventsForUser(context.Background(), "user-1", models.RoleAdmin, "03/01/2026", "2026-03-07")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidDateRange.Code, appErrors.FromError(err).Code)

	_, err = svc.EventsForUser(context.Background(), "user-1", models.RoleAdmin, "2026-03-07", "2026-03-01")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidDateRange.Code, appErrors.FromError(err).Code)
}

func TestParseDateRangeIncludesLastDay(t *testing.T) {
	from, to, err := parseDateRange("2026-03-01", "2026-03-07")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), to)
}
