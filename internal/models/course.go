package models

import "time"

// Course is a catalog entry owned by a coordinator. JaverianaID is the
// institutional identifier and must be unique.
type Course struct {
	ID            string    `db:"id" json:"id"`
	JaverianaID   string    `db:"javeriana_id" json:"javeriana_id"`
	Name          string    `db:"name" json:"name"`
	Faculty       string    `db:"faculty" json:"faculty"`
	Department    string    `db:"department" json:"department"`
	Program       string    `db:"program" json:"program"`
	Semester      string    `db:"semester" json:"semester"`
	CoordinatorID string    `db:"coordinator_id" json:"coordinator_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	Faculty       string
	Program       string
	CoordinatorID string
	Search        string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// ClassModel is a period-bound offering of a course ("2025-10" style
// period token). Professors and students are independent membership sets;
// the service keeps them disjoint per class.
type ClassModel struct {
	ID                   string    `db:"id" json:"id"`
	JaverianaID          string    `db:"javeriana_id" json:"javeriana_id"`
	Period               string    `db:"period" json:"period"`
	NumberOfParticipants int       `db:"number_of_participants" json:"number_of_participants"`
	CourseID             string    `db:"course_id" json:"course_id"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// ClassMemberRole discriminates membership rows of a class.
type ClassMemberRole string

const (
	ClassMemberProfessor ClassMemberRole = "PROFESSOR"
	ClassMemberStudent   ClassMemberRole = "STUDENT"
)

// ClassMember is one row of the class membership join table.
type ClassMember struct {
	ClassID string          `db:"class_id" json:"class_id"`
	UserID  string          `db:"user_id" json:"user_id"`
	Role    ClassMemberRole `db:"member_role" json:"member_role"`
}

// ClassFilter captures filtering criteria for listing classes.
type ClassFilter struct {
	CourseID  string
	Period    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
