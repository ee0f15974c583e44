package models

import "time"

// AttendanceRecord is one accepted scan: a ledger row proving a student was
// present for a time slot. The pair (student_rfid_uid, time_slot_id) is
// unique for all time; rows are never updated. The surrogate student id is
// captured at record time so later RFID reassignment cannot repoint history.
type AttendanceRecord struct {
	ID             string    `db:"id" json:"id"`
	StudentRFIDUID string    `db:"student_rfid_uid" json:"student_rfid_uid"`
	StudentID      string    `db:"student_id" json:"student_id"`
	TimeSlotID     string    `db:"time_slot_id" json:"time_slot_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// AttendanceDetail is a ledger row joined with its student and slot context
// for the admin attendance screen.
type AttendanceDetail struct {
	AttendanceRecord
	StudentName string   `db:"student_name" json:"student_name"`
	YearLevel   int      `db:"year_level" json:"year_level"`
	EventName   string   `db:"event_name" json:"event_name"`
	SlotType    SlotType `db:"slot_type" json:"slot_type"`
}

// AttendanceFilter defines filters supported by the admin attendance list.
type AttendanceFilter struct {
	Search     string
	YearLevel  int
	TimeSlotID string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// SlotStats is the kiosk poll payload: total roster size vs. scans recorded
// for one slot.
type SlotStats struct {
	Total   int `json:"total"`
	Present int `json:"present"`
}
