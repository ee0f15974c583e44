package models

import (
	"fmt"
	"time"
)

// RecordColumn identifies one matrix column: a time slot with enough event
// context to label it. Column order is the deterministic flattening of a
// semester's events by date, then slots by start time; the JSON report and
// the file export share it so column N means the same slot in both.
type RecordColumn struct {
	TimeSlotID string    `json:"time_slot_id"`
	EventID    string    `json:"event_id"`
	EventName  string    `json:"event_name"`
	EventDate  time.Time `json:"event_date"`
	SlotType   SlotType  `json:"slot_type"`
	StartTime  string    `json:"start"`
	EndTime    string    `json:"end"`
}

// Label renders the export header for this column.
func (c RecordColumn) Label() string {
	return fmt.Sprintf("%s\n%s\n%s-%s", c.EventName, c.SlotType.Label(), Clock(c.StartTime), Clock(c.EndTime))
}

// RecordRow is one student's presence across every column. A nil cell means
// absent; a non-nil cell is the scan timestamp.
type RecordRow struct {
	Student Student      `json:"student"`
	Cells   []*time.Time `json:"cells"`
}

// RecordMatrix is the dense students × slots presence matrix. Most cells are
// expected to be null.
type RecordMatrix struct {
	Columns []RecordColumn `json:"columns"`
	Rows    []RecordRow    `json:"rows"`
}

// RecordFilter narrows the matrix to one semester and an optional roster
// subset. SemesterID is required.
type RecordFilter struct {
	SemesterID string
	YearLevel  int
	Search     string
}

// StudentSlotStamp is a raw ledger fetch used to assemble the matrix.
type StudentSlotStamp struct {
	StudentRFIDUID string    `db:"student_rfid_uid"`
	TimeSlotID     string    `db:"time_slot_id"`
	CreatedAt      time.Time `db:"created_at"`
}
