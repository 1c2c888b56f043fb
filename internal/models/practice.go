package models

import "time"

// PracticeType discriminates group and individual activities.
type PracticeType string

const (
	PracticeGrupal     PracticeType = "GRUPAL"
	PracticeIndividual PracticeType = "INDIVIDUAL"
)

// Practice is an activity template under a class, instantiated as one or
// more simulations. GradePercentage is its weight toward the class final
// grade; the gradeable practices of a class must sum to 100.
type Practice struct {
	ID                 string       `db:"id" json:"id"`
	Name               string       `db:"name" json:"name"`
	Description        string       `db:"description" json:"description"`
	Type               PracticeType `db:"type" json:"type"`
	Gradeable          bool         `db:"gradeable" json:"gradeable"`
	MaxStudentsGroup   int          `db:"max_students_group" json:"max_students_group"`
	NumberOfGroups     int          `db:"number_of_groups" json:"number_of_groups"`
	SimulationDuration int          `db:"simulation_duration" json:"simulation_duration"`
	GradePercentage    float64      `db:"grade_percentage" json:"grade_percentage"`
	RubricTemplateID   *string      `db:"rubric_template_id" json:"rubric_template_id,omitempty"`
	ClassID            string       `db:"class_id" json:"class_id"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updated_at"`
}

// PracticeFilter captures filtering criteria for listing practices.
type PracticeFilter struct {
	ClassID   string
	Gradeable *bool
	Page      int
	PageSize  int
}

// PracticePercentage is one entry of a class percentage update.
type PracticePercentage struct {
	PracticeID string  `json:"practice_id" validate:"required"`
	Percentage float64 `json:"percentage" validate:"gte=0,lte=100"`
}
