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

// StudentRepository handles persistence for the student roster.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, student_id, rfid_uid, first_name, middle_name, last_name, email, year_level, created_at, updated_at`

// List returns students matching the provided filter.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf(
			"(first_name ILIKE $%d OR middle_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d OR student_id ILIKE $%d)",
			idx, idx, idx, idx, idx))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.YearLevel > 0 {
		conditions = append(conditions, fmt.Sprintf("year_level = $%d", len(args)+1))
		args = append(args, filter.YearLevel)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"student_id": true,
		"last_name":  true,
		"first_name": true,
		"year_level": true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", studentColumns, base, sortBy, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	return students, total, nil
}

// ListForReport returns the roster subset backing the attendance matrix,
// ordered by year level then name. The whole result is materialised; matrix
// rows are not paginated.
func (r *StudentRepository) ListForReport(ctx context.Context, yearLevel int, search string) ([]models.Student, error) {
	base := "FROM students WHERE 1=1"
	var args []interface{}

	if search != "" {
		idx := len(args) + 1
		base += fmt.Sprintf(" AND (first_name ILIKE $%d OR middle_name ILIKE $%d OR last_name ILIKE $%d OR student_id ILIKE $%d)", idx, idx, idx, idx)
		args = append(args, "%"+search+"%")
	}
	if yearLevel > 0 {
		base += fmt.Sprintf(" AND year_level = $%d", len(args)+1)
		args = append(args, yearLevel)
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY year_level ASC, last_name ASC, first_name ASC", studentColumns, base)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list report students: %w", err)
	}
	return students, nil
}

// FindByID loads a student by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByRFID resolves a scanned RFID UID to a student.
func (r *StudentRepository) FindByRFID(ctx context.Context, rfidUID string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE rfid_uid = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, rfidUID); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsBy checks uniqueness of a single column value.
func (r *StudentRepository) ExistsBy(ctx context.Context, column, value, excludeID string) (bool, error) {
	allowed := map[string]bool{"student_id": true, "rfid_uid": true, "email": true}
	if !allowed[column] {
		return false, fmt.Errorf("uniqueness check not supported for column %q", column)
	}
	base := fmt.Sprintf("SELECT 1 FROM students WHERE %s = $1", column)
	args := []interface{}{value}
	if excludeID != "" {
		base += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student %s: %w", column, err)
	}
	return true, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, student_id, rfid_uid, first_name, middle_name, last_name, email, year_level, created_at, updated_at)
        VALUES (:id, :student_id, :rfid_uid, :first_name, :middle_name, :last_name, :email, :year_level, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// BulkInsert persists an imported roster atomically: any failure rolls back
// the whole batch.
func (r *StudentRepository) BulkInsert(ctx context.Context, students []models.Student) error {
	if len(students) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin roster import tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const query = `INSERT INTO students (id, student_id, rfid_uid, first_name, middle_name, last_name, email, year_level, created_at, updated_at)
        VALUES (:id, :student_id, :rfid_uid, :first_name, :middle_name, :last_name, :email, :year_level, :created_at, :updated_at)`
	for i := range students {
		student := &students[i]
		if student.ID == "" {
			student.ID = uuid.NewString()
		}
		student.CreatedAt = now
		student.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, student); err != nil {
			return fmt.Errorf("import student %s: %w", student.StudentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit roster import tx: %w", err)
	}
	committed = true
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET student_id = :student_id, rfid_uid = :rfid_uid, first_name = :first_name, middle_name = :middle_name,
        last_name = :last_name, email = :email, year_level = :year_level, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Delete removes a student permanently.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// Count returns the roster size, the denominator of kiosk slot stats.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM students`); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}
