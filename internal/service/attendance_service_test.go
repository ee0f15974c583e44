package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sfxc-dev/attendance-api/internal/models"
	"github.com/sfxc-dev/attendance-api/internal/repository"
	appErrors "github.com/sfxc-dev/attendance-api/pkg/errors"
)

type mockLedger struct {
	records     []models.AttendanceRecord
	insertErr   error
	insertCalls int
	presents    int
	deleteErr   error
}

func (m *mockLedger) Insert(_ context.Context, record *models.AttendanceRecord) error {
	m.insertCalls++
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, existing := range m.records {
		if existing.StudentRFIDUID == record.StudentRFIDUID && existing.TimeSlotID == record.TimeSlotID {
			return repository.ErrDuplicateRecord
		}
	}
	m.records = append(m.records, *record)
	return nil
}

func (m *mockLedger) List(_ context.Context, _ models.AttendanceFilter) ([]models.AttendanceDetail, int, error) {
	return nil, len(m.records), nil
}

func (m *mockLedger) Delete(_ context.Context, _ string) error {
	return m.deleteErr
}

func (m *mockLedger) CountBySlot(_ context.Context, _ string) (int, error) {
	return m.presents, nil
}

type mockSlots struct {
	slot  *models.TimeSlot
	event *models.Event
	err   error
}

func (m *mockSlots) FindSlot(_ context.Context, _ string) (*models.TimeSlot, *models.Event, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.slot, m.event, nil
}

type mockStudents struct {
	student *models.Student
	total   int
	err     error
}

func (m *mockStudents) FindByRFID(_ context.Context, _ string) (*models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.student, nil
}

func (m *mockStudents) Count(_ context.Context) (int, error) {
	return m.total, nil
}

type memoryCache struct {
	store   map[string][]byte
	deletes []string
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := c.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if c.store == nil {
		c.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store[key] = payload
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.deletes = append(c.deletes, key)
	delete(c.store, key)
	return nil
}

const (
	testSlotID = "7f8c8e1a-2f7a-4a8f-9b55-0d9f31e2a001"
	testRFID   = "0123456789"
)

func recorderFixture(eventDate time.Time, ledger *mockLedger) (*AttendanceService, *memoryCache) {
	slot := &models.TimeSlot{
		ID:        testSlotID,
		EventID:   "event-1",
		SlotType:  models.SlotMorningIn,
		StartTime: "07:00",
		EndTime:   "08:00",
	}
	event := &models.Event{ID: "event-1", Name: "Flag Ceremony", Date: eventDate}
	student := &models.Student{
		ID:        "student-1",
		StudentID: "2021-00001",
		RFIDUID:   testRFID,
		FirstName: "Juan",
		LastName:  "Dela Cruz",
	}
	cache := &memoryCache{}
	svc := NewAttendanceService(ledger, &mockSlots{slot: slot, event: event}, &mockStudents{student: student, total: 30}, cache, nil, nil, zap.NewNop(), AttendanceServiceConfig{RFIDLength: 10})
	return svc, cache
}

func TestRecordAcceptsThenRejectsDuplicate(t *testing.T) {
	eventDate := time.Date(2025, 6, 10, 0, 0, 0, 0, time.Local)
	ledger := &mockLedger{}
	svc, cache := recorderFixture(eventDate, ledger)
	svc.now = func() time.Time { return time.Date(2025, 6, 10, 7, 30, 0, 0, time.Local) }

	req := RecordAttendanceRequest{StudentRFIDUID: testRFID, TimeSlotID: testSlotID}

	first, err := svc.Record(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, first.Record)
	assert.Equal(t, "student-1", first.Record.StudentID)
	assert.Equal(t, testRFID, first.Record.StudentRFIDUID)
	assert.Equal(t, "Juan Dela Cruz", first.Student.FullName())
	assert.Contains(t, cache.deletes, "attendance:stats:"+testSlotID)

	_, err = svc.Record(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 409, appErr.Status)
	assert.Equal(t, "Attendance already recorded", appErr.Message)
	assert.Len(t, ledger.records, 1)
}

func TestRecordUnknownStudentLeavesLedgerUntouched(t *testing.T) {
	eventDate := time.Date(2025, 6, 10, 0, 0, 0, 0, time.Local)
	ledger := &mockLedger{}
	svc, _ := recorderFixture(eventDate, ledger)
	svc.students = &mockStudents{err: sql.ErrNoRows}
	svc.now = func() time.Time { return time.Date(2025, 6, 10, 7, 30, 0, 0, time.Local) }

	_, err := svc.Record(context.Background(), RecordAttendanceRequest{StudentRFIDUID: testRFID, TimeSlotID: testSlotID})
	require.Error(t, err)
	assert.Equal(t, 404, appErrors.FromError(err).Status)
	assert.Zero(t, ledger.insertCalls)
}

func TestRecordUnknownSlot(t *testing.T) {
	ledger := &mockLedger{}
	svc, _ := recorderFixture(time.Now(), ledger)
	svc.slots = &mockSlots{err: sql.ErrNoRows}

	_, err := svc.Record(context.Background(), RecordAttendanceRequest{StudentRFIDUID: testRFID, TimeSlotID: testSlotID})
	require.Error(t, err)
	assert.Equal(t, 404, appErrors.FromError(err).Status)
}

func TestRecordTooEarlyNamesOpeningTime(t *testing.T) {
	eventDate := time.Date(2025, 6, 10, 0, 0, 0, 0, time.Local)
	ledger := &mockLedger{}
	svc, _ := recorderFixture(eventDate, ledger)
	svc.now = func() time.Time { return time.Date(2025, 6, 10, 6, 0, 0, 0, time.Local) }

	_, err := svc.Record(context.Background(), RecordAttendanceRequest{StudentRFIDUID: testRFID, TimeSlotID: testSlotID})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 403, appErr.Status)
	assert.Equal(t, "Attendance not allowed until 7:00 AM", appErr.Message)
	assert.Zero(t, ledger.insertCalls)
}

func TestRecordRejectsWrongDay(t *testing.T) {
	eventDate := time.Date(2025, 6, 10, 0, 0, 0, 0, time.Local)
	ledger := &mockLedger{}
	svc, _ := recorderFixture(eventDate, ledger)
	svc.now = func() time.Time { return time.Date(2025, 6, 11, 7, 30, 0, 0, time.Local) }

	_, err := svc.Record(context.Background(), RecordAttendanceRequest{StudentRFIDUID: testRFID, TimeSlotID: testSlotID})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 403, appErr.Status)
	assert.True(t, appErr.Is(appErrors.ErrNotEventDay))
	assert.Zero(t, ledger.insertCalls)
}

func TestRecordRejectsShortRFID(t *testing.T) {
	ledger := &mockLedger{}
	svc, _ := recorderFixture(time.Now(), ledger)

	_, err := svc.Record(context.Background(), RecordAttendanceRequest{StudentRFIDUID: "12345", TimeSlotID: testSlotID})
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
	assert.Zero(t, ledger.insertCalls)
}

func TestStatsServedFromCacheAfterFirstRead(t *testing.T) {
	ledger := &mockLedger{presents: 12}
	svc, cache := recorderFixture(time.Now(), ledger)

	stats, err := svc.Stats(context.Background(), testSlotID)
	require.NoError(t, err)
	assert.Equal(t, 30, stats.Total)
	assert.Equal(t, 12, stats.Present)
	require.Contains(t, cache.store, "attendance:stats:"+testSlotID)

	// bump the counter; the cached value should still be served
	ledger.presents = 13
	again, err := svc.Stats(context.Background(), testSlotID)
	require.NoError(t, err)
	assert.Equal(t, 12, again.Present)
}

func TestStatsCountsCacheHitsAndMisses(t *testing.T) {
	ledger := &mockLedger{presents: 12}
	svc, _ := recorderFixture(time.Now(), ledger)
	metrics := NewMetricsService()
	svc.metrics = metrics

	_, err := svc.Stats(context.Background(), testSlotID)
	require.NoError(t, err)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))

	_, err = svc.Stats(context.Background(), testSlotID)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))
}

func TestDeleteTranslatesMissingRow(t *testing.T) {
	ledger := &mockLedger{deleteErr: repository.ErrNoRowsDeleted}
	svc, _ := recorderFixture(time.Now(), ledger)

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, 404, appErrors.FromError(err).Status)
}
