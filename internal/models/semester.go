package models

import "time"

// Semester is the top of the ownership chain: semesters own events, events
// own time slots. At most one semester is active at any time and semester
// date ranges never overlap.
type Semester struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SemesterFilter defines filters supported by the semester list endpoint.
type SemesterFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
