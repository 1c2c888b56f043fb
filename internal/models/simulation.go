package models

import "time"

// GradeStatus tracks the one-way grading lifecycle of a simulation.
type GradeStatus string

const (
	GradePending    GradeStatus = "PENDING"
	GradeRegistered GradeStatus = "REGISTERED"
)

// Simulation is one scheduled occurrence of a practice, bound to a
// half-open [StartDateTime, EndDateTime) window and a set of rooms.
// Grade fields are written only by the publish-grade operation.
type Simulation struct {
	ID            string      `db:"id" json:"id"`
	GroupNumber   int         `db:"group_number" json:"group_number"`
	StartDateTime time.Time   `db:"start_date_time" json:"start_date_time"`
	EndDateTime   time.Time   `db:"end_date_time" json:"end_date_time"`
	GradeStatus   GradeStatus `db:"grade_status" json:"grade_status"`
	Grade         *float64    `db:"grade" json:"grade,omitempty"`
	GradeDateTime *time.Time  `db:"grade_date_time" json:"grade_date_time,omitempty"`
	PracticeID    string      `db:"practice_id" json:"practice_id"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// SimulationRoom is one row of the simulation/room join table.
type SimulationRoom struct {
	SimulationID string `db:"simulation_id" json:"simulation_id"`
	RoomID       string `db:"room_id" json:"room_id"`
}

// SimulationUser links a participant to a simulation.
type SimulationUser struct {
	SimulationID string `db:"simulation_id" json:"simulation_id"`
	UserID       string `db:"user_id" json:"user_id"`
}

// SimulationFilter captures filtering criteria for listing simulations.
type SimulationFilter struct {
	PracticeID string
	RoomID     string
	UserID     string
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}

// ScheduleEntry is one cell of the weekly scheduling grid: a simulation
// projected onto one of its rooms.
type ScheduleEntry struct {
	SimulationID  string    `db:"simulation_id" json:"simulation_id"`
	PracticeID    string    `db:"practice_id" json:"practice_id"`
	PracticeName  string    `db:"practice_name" json:"practice_name"`
	RoomID        string    `db:"room_id" json:"room_id"`
	RoomName      string    `db:"room_name" json:"room_name"`
	GroupNumber   int       `db:"group_number" json:"group_number"`
	StartDateTime time.Time `db:"start_date_time" json:"start_date_time"`
	EndDateTime   time.Time `db:"end_date_time" json:"end_date_time"`
}
