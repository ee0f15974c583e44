package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sfxc-dev/attendance-api/internal/models"
)

// ErrDuplicateRecord is returned when the (rfid, slot) uniqueness constraint
// rejects an insert. The service layer translates it to the 409 outcome.
var ErrDuplicateRecord = errors.New("attendance already recorded for this time slot")

// AttendanceRepository is the only writer of the attendance ledger.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Insert appends one ledger row. Duplicate detection is delegated entirely
// to the UNIQUE (student_rfid_uid, time_slot_id) constraint so concurrent
// scans of the same card across kiosks cannot both succeed.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO attendances (id, student_rfid_uid, student_id, time_slot_id, created_at)
        VALUES (:id, :student_rfid_uid, :student_id, :time_slot_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// List returns ledger rows with student and event context for the admin
// attendance screen.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error) {
	base := `FROM attendances att
JOIN students st ON st.rfid_uid = att.student_rfid_uid
JOIN event_time_slots ts ON ts.id = att.time_slot_id
JOIN events ev ON ev.id = ts.event_id`
	where := []string{"1=1"}
	var args []interface{}

	if filter.Search != "" {
		idx := len(args) + 1
		where = append(where, fmt.Sprintf(
			"(st.first_name ILIKE $%d OR st.middle_name ILIKE $%d OR st.last_name ILIKE $%d OR st.email ILIKE $%d OR ev.name ILIKE $%d)",
			idx, idx, idx, idx, idx))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.YearLevel > 0 {
		where = append(where, fmt.Sprintf("st.year_level = $%d", len(args)+1))
		args = append(args, filter.YearLevel)
	}
	if filter.TimeSlotID != "" {
		where = append(where, fmt.Sprintf("att.time_slot_id = $%d", len(args)+1))
		args = append(args, filter.TimeSlotID)
	}
	whereClause := strings.Join(where, " AND ")

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"created_at": "att.created_at",
		"student":    "st.last_name",
		"event":      "ev.name",
	}
	sortColumn, ok := allowedSorts[sortBy]
	if !ok {
		sortColumn = "att.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT att.id, att.student_rfid_uid, att.student_id, att.time_slot_id, att.created_at,
        st.last_name || ' ' || st.first_name AS student_name, st.year_level, ev.name AS event_name, ts.slot_type
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var rows []models.AttendanceDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}

// Delete removes a ledger row by id, the only sanctioned mutation besides
// insert.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("attendance %s: %w", id, ErrNoRowsDeleted)
	}
	return nil
}

// ErrNoRowsDeleted marks a delete that matched nothing.
var ErrNoRowsDeleted = errors.New("no rows deleted")

// CountBySlot returns the number of scans recorded for one slot.
func (r *AttendanceRepository) CountBySlot(ctx context.Context, timeSlotID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM attendances WHERE time_slot_id = $1`, timeSlotID); err != nil {
		return 0, fmt.Errorf("count slot attendance: %w", err)
	}
	return count, nil
}

// StampsForSlots fetches every (student, slot, timestamp) triple for the
// given slot set in one query; the matrix aggregator indexes them in memory.
func (r *AttendanceRepository) StampsForSlots(ctx context.Context, timeSlotIDs []string) ([]models.StudentSlotStamp, error) {
	if len(timeSlotIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT student_rfid_uid, time_slot_id, created_at FROM attendances WHERE time_slot_id = ANY($1)`
	var stamps []models.StudentSlotStamp
	if err := r.db.SelectContext(ctx, &stamps, query, pq.Array(timeSlotIDs)); err != nil {
		return nil, fmt.Errorf("fetch attendance stamps: %w", err)
	}
	return stamps, nil
}
