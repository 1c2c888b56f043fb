package models

import "time"

// CalendarEvent projects a simulation into the event feed of a user.
type CalendarEvent struct {
	SimulationID string    `db:"simulation_id" json:"simulation_id"`
	PracticeID   string    `db:"practice_id" json:"practice_id"`
	PracticeName string    `db:"practice_name" json:"practice_name"`
	ClassID      string    `db:"class_id" json:"class_id"`
	ClassPeriod  string    `db:"class_period" json:"class_period"`
	CourseName   string    `db:"course_name" json:"course_name"`
	RoomNames    string    `db:"room_names" json:"room_names"`
	GroupNumber  int       `db:"group_number" json:"group_number"`
	Start        time.Time `db:"start_date_time" json:"start"`
	End          time.Time `db:"end_date_time" json:"end"`
}

// GradeBreakdownEntry is one practice row of a student final-grade report.
type GradeBreakdownEntry struct {
	PracticeID   string   `json:"practice_id"`
	PracticeName string   `json:"practice_name"`
	Percentage   float64  `json:"percentage"`
	Grade        *float64 `json:"grade,omitempty"`
	Registered   bool     `json:"registered"`
}

// StudentFinalGrade aggregates a student's weighted grade for a class.
type StudentFinalGrade struct {
	StudentID   string                `json:"student_id"`
	StudentName string                `json:"student_name"`
	FinalGrade  float64               `json:"final_grade"`
	Breakdown   []GradeBreakdownEntry `json:"breakdown"`
}
