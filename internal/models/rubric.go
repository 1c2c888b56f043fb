package models

import "time"

// RubricTemplate is a reusable grading schema: ordered criteria crossed
// with scoring columns. Criteria weights must sum to 100.
type RubricTemplate struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	CreatorID    string    `db:"creator_id" json:"creator_id"`
	CourseID     *string   `db:"course_id" json:"course_id,omitempty"`
	Archived     bool      `db:"archived" json:"archived"`
	CreationDate time.Time `db:"creation_date" json:"creation_date"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	Criteria       []RubricCriterion `json:"criteria,omitempty"`
	ScoringColumns []ScoringColumn   `json:"scoring_columns,omitempty"`
}

// RubricCriterion is one ordered row of a template.
type RubricCriterion struct {
	ID           string  `db:"id" json:"id"`
	TemplateID   string  `db:"template_id" json:"template_id"`
	Position     int     `db:"position" json:"position"`
	Name         string  `db:"name" json:"name"`
	Weight       float64 `db:"weight" json:"weight"`
	Descriptions string  `db:"descriptions" json:"descriptions"`
}

// ScoringColumn is one ordered scale column of a template.
type ScoringColumn struct {
	ID         string  `db:"id" json:"id"`
	TemplateID string  `db:"template_id" json:"template_id"`
	Position   int     `db:"position" json:"position"`
	Title      string  `db:"title" json:"title"`
	LowerBound float64 `db:"lower_bound" json:"lower_bound"`
	UpperBound float64 `db:"upper_bound" json:"upper_bound"`
}

// Rubric is the per-simulation instantiation of a template. TemplateID goes
// null when the template is deleted after the retention window.
type Rubric struct {
	ID           string    `db:"id" json:"id"`
	TemplateID   *string   `db:"template_id" json:"template_id,omitempty"`
	SimulationID string    `db:"simulation_id" json:"simulation_id"`
	Total        float64   `db:"total" json:"total"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	EvaluatedCriteria []EvaluatedCriterion `json:"evaluated_criteria,omitempty"`
}

// EvaluatedCriterion holds the score and comment for one criterion of a
// rubric instance.
type EvaluatedCriterion struct {
	ID            string  `db:"id" json:"id"`
	RubricID      string  `db:"rubric_id" json:"rubric_id"`
	CriterionName string  `db:"criterion_name" json:"criterion_name"`
	Weight        float64 `db:"weight" json:"weight"`
	Score         float64 `db:"score" json:"score"`
	Comment       string  `db:"comment" json:"comment"`
}

// RubricTemplateFilter captures filtering criteria for listing templates.
type RubricTemplateFilter struct {
	CreatorID string
	CourseID  string
	Archived  *bool
	Search    string
	Page      int
	PageSize  int
}
