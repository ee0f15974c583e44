package models

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SlotType enumerates the six attendance windows an event can open.
type SlotType string

const (
	SlotMorningIn    SlotType = "morning-in"
	SlotMorningOut   SlotType = "morning-out"
	SlotAfternoonIn  SlotType = "afternoon-in"
	SlotAfternoonOut SlotType = "afternoon-out"
	SlotEveningIn    SlotType = "evening-in"
	SlotEveningOut   SlotType = "evening-out"
)

// SlotTypes lists every valid slot type in display order.
var SlotTypes = []SlotType{
	SlotMorningIn, SlotMorningOut,
	SlotAfternoonIn, SlotAfternoonOut,
	SlotEveningIn, SlotEveningOut,
}

// Valid reports whether the slot type is one of the six known variants.
func (t SlotType) Valid() bool {
	switch t {
	case SlotMorningIn, SlotMorningOut, SlotAfternoonIn, SlotAfternoonOut, SlotEveningIn, SlotEveningOut:
		return true
	}
	return false
}

// Label renders the slot type for headers, e.g. "Morning In".
func (t SlotType) Label() string {
	words := strings.Split(string(t), "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Event is a dated occasion within a semester (flag ceremony, seminar, ...).
type Event struct {
	ID          string         `db:"id" json:"id"`
	SemesterID  string         `db:"semester_id" json:"semester_id"`
	Name        string         `db:"name" json:"name"`
	Date        time.Time      `db:"date" json:"date"`
	Description sql.NullString `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`

	SemesterName string     `db:"semester_name" json:"semester_name,omitempty"`
	TimeSlots    []TimeSlot `db:"-" json:"time_slots,omitempty"`
}

// TimeSlot is one scannable window of an event. Start and End are wall-clock
// times in "HH:MM" form; the event date supplies the calendar day.
type TimeSlot struct {
	ID        string    `db:"id" json:"id"`
	EventID   string    `db:"event_id" json:"event_id"`
	SlotType  SlotType  `db:"slot_type" json:"slot_type"`
	StartTime string    `db:"start_time" json:"start"`
	EndTime   string    `db:"end_time" json:"end"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	AttendanceCount int `db:"-" json:"attendance_count,omitempty"`
}

// ParseClock converts an "HH:MM" wall-clock string into an offset from
// midnight. Postgres TIME columns scan with trailing seconds, which are
// accepted and ignored.
func ParseClock(raw string) (time.Duration, error) {
	trimmed := raw
	if len(trimmed) > 5 {
		trimmed = trimmed[:5]
	}
	t, err := time.Parse("15:04", trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", raw, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// FormatClock renders an offset from midnight as zero-padded "HH:MM".
// Stored slot times must go through this: slot ordering is a lexicographic
// ORDER BY on the column, so "7:00" would sort after "13:00".
func FormatClock(d time.Duration) string {
	d = d.Round(time.Minute)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// Clock normalises a stored time value to "HH:MM" for display and headers.
func Clock(raw string) string {
	if len(raw) > 5 {
		return raw[:5]
	}
	return raw
}

// EventFilter defines filters supported by the event list endpoint.
type EventFilter struct {
	Search     string
	SemesterID string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
