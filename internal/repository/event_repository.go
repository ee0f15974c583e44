package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sfxc-dev/attendance-api/internal/models"
)

// EventRepository handles persistence for events and their time slots.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns events matching the provided filter, semester name included.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	base := `FROM events ev JOIN semesters sm ON sm.id = ev.semester_id WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(ev.name ILIKE $%d OR sm.name ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("ev.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":       "ev.name",
		"date":       "ev.date",
		"created_at": "ev.created_at",
	}
	sortColumn, ok := allowedSorts[sortBy]
	if !ok {
		sortColumn = "ev.date"
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
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT ev.id, ev.semester_id, ev.name, ev.date, ev.description, ev.created_at, ev.updated_at, sm.name AS semester_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, sortColumn, order, size, offset)

	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	if err := r.attachSlots(ctx, events); err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// FindByID loads an event with its time slots ordered by start time.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	const query = `SELECT ev.id, ev.semester_id, ev.name, ev.date, ev.description, ev.created_at, ev.updated_at, sm.name AS semester_name
        FROM events ev JOIN semesters sm ON sm.id = ev.semester_id WHERE ev.id = $1`
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	slots, err := r.listSlots(ctx, []string{event.ID})
	if err != nil {
		return nil, err
	}
	event.TimeSlots = slots[event.ID]
	return &event, nil
}

// ListBySemester returns a semester's events ordered by date then creation,
// each with slots ordered by start time. This ordering is the column
// flattening contract shared by the report and the export.
func (r *EventRepository) ListBySemester(ctx context.Context, semesterID string) ([]models.Event, error) {
	const query = `SELECT id, semester_id, name, date, description, created_at, updated_at
        FROM events WHERE semester_id = $1 ORDER BY date ASC, created_at ASC`
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, semesterID); err != nil {
		return nil, fmt.Errorf("list semester events: %w", err)
	}
	if err := r.attachSlots(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// ListUpcoming returns events on or after the given day, soonest first.
func (r *EventRepository) ListUpcoming(ctx context.Context, semesterID string, from time.Time, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 10
	}
	base := `SELECT id, semester_id, name, date, description, created_at, updated_at FROM events WHERE date >= $1`
	args := []interface{}{from}
	if semesterID != "" {
		base += " AND semester_id = $2"
		args = append(args, semesterID)
	}
	query := fmt.Sprintf("%s ORDER BY date ASC LIMIT %d", base, limit)
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	if err := r.attachSlots(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// FindSlot loads a time slot joined with its owning event.
func (r *EventRepository) FindSlot(ctx context.Context, slotID string) (*models.TimeSlot, *models.Event, error) {
	const query = `SELECT ts.id, ts.event_id, ts.slot_type, ts.start_time, ts.end_time, ts.created_at, ts.updated_at,
        ev.id AS ev_id, ev.semester_id AS ev_semester_id, ev.name AS ev_name, ev.date AS ev_date,
        ev.description AS ev_description, ev.created_at AS ev_created_at, ev.updated_at AS ev_updated_at
        FROM event_time_slots ts JOIN events ev ON ev.id = ts.event_id WHERE ts.id = $1`
	row := struct {
		models.TimeSlot
		EvID          string         `db:"ev_id"`
		EvSemesterID  string         `db:"ev_semester_id"`
		EvName        string         `db:"ev_name"`
		EvDate        time.Time      `db:"ev_date"`
		EvDescription sql.NullString `db:"ev_description"`
		EvCreatedAt   time.Time      `db:"ev_created_at"`
		EvUpdatedAt   time.Time      `db:"ev_updated_at"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, slotID); err != nil {
		return nil, nil, err
	}
	event := &models.Event{
		ID:          row.EvID,
		SemesterID:  row.EvSemesterID,
		Name:        row.EvName,
		Date:        row.EvDate,
		Description: row.EvDescription,
		CreatedAt:   row.EvCreatedAt,
		UpdatedAt:   row.EvUpdatedAt,
	}
	slot := row.TimeSlot
	return &slot, event, nil
}

// Create inserts an event with its slots in one transaction.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create event tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertEvent = `INSERT INTO events (id, semester_id, name, date, description, created_at, updated_at)
        VALUES (:id, :semester_id, :name, :date, :description, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertEvent, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	for i := range event.TimeSlots {
		slot := &event.TimeSlots[i]
		slot.EventID = event.ID
		if err = insertSlot(ctx, tx, slot, now); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create event tx: %w", err)
	}
	return nil
}

// Update rewrites the event and syncs its slot set: slots carrying ids are
// updated, slots without ids are inserted, and persisted slots absent from
// the payload are deleted together with their attendance rows' slot anchor.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	now := time.Now().UTC()
	event.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update event tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const updateEvent = `UPDATE events SET semester_id = :semester_id, name = :name, date = :date, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, updateEvent, event); err != nil {
		return fmt.Errorf("update event: %w", err)
	}

	keep := make([]string, 0, len(event.TimeSlots))
	for i := range event.TimeSlots {
		slot := &event.TimeSlots[i]
		slot.EventID = event.ID
		if slot.ID == "" {
			if err = insertSlot(ctx, tx, slot, now); err != nil {
				return err
			}
		} else {
			slot.UpdatedAt = now
			const updateSlot = `UPDATE event_time_slots SET slot_type = :slot_type, start_time = :start_time, end_time = :end_time, updated_at = :updated_at
                WHERE id = :id AND event_id = :event_id`
			var res sql.Result
			res, err = tx.NamedExecContext(ctx, updateSlot, slot)
			if err != nil {
				return fmt.Errorf("update time slot: %w", err)
			}
			var affected int64
			if affected, err = res.RowsAffected(); err == nil && affected == 0 {
				err = fmt.Errorf("time slot %s does not belong to event %s", slot.ID, event.ID)
				return err
			}
		}
		keep = append(keep, slot.ID)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM event_time_slots WHERE event_id = $1 AND id <> ALL($2)`, event.ID, pq.Array(keep)); err != nil {
		return fmt.Errorf("prune removed time slots: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update event tx: %w", err)
	}
	return nil
}

// Delete removes an event; time slots cascade via FK.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// SlotAttendanceCounts returns scans recorded per slot for one event.
func (r *EventRepository) SlotAttendanceCounts(ctx context.Context, eventID string) (map[string]int, error) {
	const query = `SELECT ts.id, COUNT(att.id) AS cnt
        FROM event_time_slots ts LEFT JOIN attendances att ON att.time_slot_id = ts.id
        WHERE ts.event_id = $1 GROUP BY ts.id`
	rows := []struct {
		ID    string `db:"id"`
		Count int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, eventID); err != nil {
		return nil, fmt.Errorf("count slot attendance: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ID] = row.Count
	}
	return counts, nil
}

func insertSlot(ctx context.Context, tx *sqlx.Tx, slot *models.TimeSlot, now time.Time) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now
	const query = `INSERT INTO event_time_slots (id, event_id, slot_type, start_time, end_time, created_at, updated_at)
        VALUES (:id, :event_id, :slot_type, :start_time, :end_time, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create time slot: %w", err)
	}
	return nil
}

func (r *EventRepository) attachSlots(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	slots, err := r.listSlots(ctx, ids)
	if err != nil {
		return err
	}
	for i := range events {
		events[i].TimeSlots = slots[events[i].ID]
	}
	return nil
}

func (r *EventRepository) listSlots(ctx context.Context, eventIDs []string) (map[string][]models.TimeSlot, error) {
	const query = `SELECT id, event_id, slot_type, start_time, end_time, created_at, updated_at
        FROM event_time_slots WHERE event_id = ANY($1) ORDER BY start_time ASC, created_at ASC`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, pq.Array(eventIDs)); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	grouped := make(map[string][]models.TimeSlot, len(eventIDs))
	for _, slot := range slots {
		grouped[slot.EventID] = append(grouped[slot.EventID], slot)
	}
	return grouped, nil
}
