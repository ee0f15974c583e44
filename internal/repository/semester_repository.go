package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sfxc-dev/attendance-api/internal/models"
)

// SemesterRepository handles persistence for semesters.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository instantiates a semester repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// List returns semesters matching provided filters.
func (r *SemesterRepository) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error) {
	base := "FROM semesters WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"start_date": true,
		"end_date":   true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
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

	query := fmt.Sprintf("SELECT id, name, start_date, end_date, active, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)

	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list semesters: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count semesters: %w", err)
	}

	return semesters, total, nil
}

// FindByID loads a semester by identifier.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	const query = `SELECT id, name, start_date, end_date, active, created_at, updated_at FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// FindActive returns the currently active semester.
func (r *SemesterRepository) FindActive(ctx context.Context) (*models.Semester, error) {
	const query = `SELECT id, name, start_date, end_date, active, created_at, updated_at FROM semesters WHERE active = TRUE LIMIT 1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query); err != nil {
		return nil, err
	}
	return &semester, nil
}

// ExistsByName checks the unique-name invariant.
func (r *SemesterRepository) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	base := "SELECT 1 FROM semesters WHERE name = $1"
	args := []interface{}{name}
	if excludeID != "" {
		base += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check semester name: %w", err)
	}
	return true, nil
}

// ExistsOverlapping reports whether any other semester's date range
// intersects [start, end].
func (r *SemesterRepository) ExistsOverlapping(ctx context.Context, start, end time.Time, excludeID string) (bool, error) {
	base := `SELECT 1 FROM semesters WHERE (start_date BETWEEN $1 AND $2 OR end_date BETWEEN $1 AND $2 OR (start_date < $1 AND end_date > $2))`
	args := []interface{}{start, end}
	if excludeID != "" {
		base += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check semester overlap: %w", err)
	}
	return true, nil
}

// Create inserts a new semester record.
func (r *SemesterRepository) Create(ctx context.Context, semester *models.Semester) error {
	if semester.ID == "" {
		semester.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if semester.CreatedAt.IsZero() {
		semester.CreatedAt = now
	}
	semester.UpdatedAt = now

	const query = `INSERT INTO semesters (id, name, start_date, end_date, active, created_at, updated_at) VALUES (:id, :name, :start_date, :end_date, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("create semester: %w", err)
	}
	return nil
}

// Update modifies an existing semester.
func (r *SemesterRepository) Update(ctx context.Context, semester *models.Semester) error {
	semester.UpdatedAt = time.Now().UTC()
	const query = `UPDATE semesters SET name = :name, start_date = :start_date, end_date = :end_date, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("update semester: %w", err)
	}
	return nil
}

// SetActive marks the provided semester as active and deactivates the rest
// inside one transaction, preserving the single-active invariant.
func (r *SemesterRepository) SetActive(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE semesters SET active = FALSE, updated_at = $1 WHERE active = TRUE AND id <> $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate other semesters: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE semesters SET active = TRUE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("activate semester: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set active tx: %w", err)
	}
	return nil
}

// Deactivate clears the active flag on one semester.
func (r *SemesterRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE semesters SET active = FALSE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate semester: %w", err)
	}
	return nil
}

// Delete removes a semester permanently.
func (r *SemesterRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM semesters WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete semester: %w", err)
	}
	return nil
}

// CountEvents returns the number of events owned by the semester.
func (r *SemesterRepository) CountEvents(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM events WHERE semester_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count semester events: %w", err)
	}
	return count, nil
}
