package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clinsim/simlab-api/internal/models"
)

const calendarSelect = `SELECT s.id AS simulation_id, p.id AS practice_id, p.name AS practice_name, c.id AS class_id, c.period AS class_period, co.name AS course_name,
	COALESCE(string_agg(rm.name, ', ' ORDER BY rm.name), '') AS room_names, s.group_number, s.start_date_time, s.end_date_time
	FROM simulations s
	JOIN practices p ON p.id = s.practice_id
	JOIN classes c ON c.id = p.class_id
	JOIN courses co ON co.id = c.course_id
	LEFT JOIN simulation_rooms sr ON sr.simulation_id = s.id
	LEFT JOIN rooms rm ON rm.id = sr.room_id`

const calendarGroupBy = ` GROUP BY s.id, p.id, p.name, c.id, c.period, co.name, s.group_number, s.start_date_time, s.end_date_time
	ORDER BY s.start_date_time ASC`

// CalendarRepository is a read-only projection of simulations into event
// feeds. It consumes the scheduler's output and never writes.
type CalendarRepository struct {
	db *sqlx.DB
}

// NewCalendarRepository creates a new calendar repository.
func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// EventsForClasses returns events of simulations whose practice belongs to
// one of the given classes, bounded by [from, to).
func (r *CalendarRepository) EventsForClasses(ctx context.Context, classIDs []string, from, to time.Time) ([]models.CalendarEvent, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(calendarSelect+` WHERE c.id IN (?) AND s.start_date_time < ? AND s.end_date_time > ?`+calendarGroupBy, classIDs, to, from)
	if err != nil {
		return nil, fmt.Errorf("build class events query: %w", err)
	}
	query = r.db.Rebind(query)

	var events []models.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("load class events: %w", err)
	}
	return events, nil
}

// EventsForUser returns events of simulations the user directly
// participates in, bounded by [from, to). This is the fallback for users
// enrolled in simulations outside any class they teach or attend.
func (r *CalendarRepository) EventsForUser(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarEvent, error) {
	query := calendarSelect + ` JOIN simulation_users su ON su.simulation_id = s.id
	WHERE su.user_id = $1 AND s.start_date_time < $2 AND s.end_date_time > $3` + calendarGroupBy

	var events []models.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, userID, to, from); err != nil {
		return nil, fmt.Errorf("load user events: %w", err)
	}
	return events, nil
}

// AllEvents returns every event in [from, to), for the unscoped admin view.
func (r *CalendarRepository) AllEvents(ctx context.Context, from, to time.Time) ([]models.CalendarEvent, error) {
	query := calendarSelect + ` WHERE s.start_date_time < $1 AND s.end_date_time > $2` + calendarGroupBy

	var events []models.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, to, from); err != nil {
		return nil, fmt.Errorf("load all events: %w", err)
	}
	return events, nil
}
