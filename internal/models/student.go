package models

import (
	"database/sql"
	"strings"
	"time"
)

// Student is a roster entry. The RFID UID is the value printed on the
// student's card and is what kiosk scanners submit.
type Student struct {
	ID         string         `db:"id" json:"id"`
	StudentID  string         `db:"student_id" json:"student_id"`
	RFIDUID    string         `db:"rfid_uid" json:"rfid_uid"`
	FirstName  string         `db:"first_name" json:"first_name"`
	MiddleName sql.NullString `db:"middle_name" json:"middle_name,omitempty"`
	LastName   string         `db:"last_name" json:"last_name"`
	Email      string         `db:"email" json:"email"`
	YearLevel  int            `db:"year_level" json:"year_level"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// FullName renders "Last First Middle" the way roster screens display it.
func (s Student) FullName() string {
	parts := []string{s.LastName, s.FirstName}
	if s.MiddleName.Valid && s.MiddleName.String != "" {
		parts = append(parts, s.MiddleName.String)
	}
	return strings.Join(parts, " ")
}

// StudentFilter defines filters supported by roster list endpoints.
type StudentFilter struct {
	Search    string
	YearLevel int
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
