package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/sfxc-dev/attendance-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSemesterRepositoryExistsOverlapping(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSemesterRepository(db)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM semesters WHERE (start_date BETWEEN $1 AND $2 OR end_date BETWEEN $1 AND $2 OR (start_date < $1 AND end_date > $2))")).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	overlaps, err := repo.ExistsOverlapping(context.Background(), start, end, "")
	require.NoError(t, err)
	require.True(t, overlaps)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM semesters")).
		WithArgs(start, end, "sem-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	overlaps, err = repo.ExistsOverlapping(context.Background(), start, end, "sem-1")
	require.NoError(t, err)
	require.False(t, overlaps)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositorySetActiveRunsInOneTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSemesterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE semesters SET active = FALSE, updated_at = $1 WHERE active = TRUE AND id <> $2")).
		WithArgs(sqlmock.AnyArg(), "sem-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE semesters SET active = TRUE, updated_at = $2 WHERE id = $1")).
		WithArgs("sem-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetActive(context.Background(), "sem-2"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositorySetActiveRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSemesterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE semesters SET active = FALSE")).
		WithArgs(sqlmock.AnyArg(), "sem-2").
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	require.Error(t, repo.SetActive(context.Background(), "sem-2"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositoryCreateGeneratesID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSemesterRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO semesters")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	semester := &models.Semester{
		Name:      "1st Semester 2025",
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(context.Background(), semester))
	require.NotEmpty(t, semester.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositoryListFiltersByActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSemesterRepository(db)
	active := true
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "name", "start_date", "end_date", "active", "created_at", "updated_at"}).
		AddRow("sem-1", "1st Semester", now, now, true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, start_date, end_date, active, created_at, updated_at FROM semesters WHERE 1=1 AND active = $1")).
		WithArgs(true).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM semesters WHERE 1=1 AND active = $1")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	semesters, total, err := repo.List(context.Background(), models.SemesterFilter{Active: &active})
	require.NoError(t, err)
	require.Len(t, semesters, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
