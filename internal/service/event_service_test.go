package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sfxc-dev/attendance-api/internal/models"
	appErrors "github.com/sfxc-dev/attendance-api/pkg/errors"
)

type mockEventRepo struct {
	events  map[string]*models.Event
	updated *models.Event
	counts  map[string]int
}

func newMockEventRepo(events ...*models.Event) *mockEventRepo {
	repo := &mockEventRepo{events: make(map[string]*models.Event), counts: map[string]int{}}
	for _, e := range events {
		repo.events[e.ID] = e
	}
	return repo
}

func (m *mockEventRepo) List(_ context.Context, _ models.EventFilter) ([]models.Event, int, error) {
	out := make([]models.Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (m *mockEventRepo) FindByID(_ context.Context, id string) (*models.Event, error) {
	if e, ok := m.events[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEventRepo) ListUpcoming(_ context.Context, _ string, _ time.Time, _ int) ([]models.Event, error) {
	return nil, nil
}

func (m *mockEventRepo) Create(_ context.Context, event *models.Event) error {
	m.events[event.ID] = event
	return nil
}

func (m *mockEventRepo) Update(_ context.Context, event *models.Event) error {
	m.events[event.ID] = event
	m.updated = event
	return nil
}

func (m *mockEventRepo) Delete(_ context.Context, id string) error {
	delete(m.events, id)
	return nil
}

func (m *mockEventRepo) SlotAttendanceCounts(_ context.Context, _ string) (map[string]int, error) {
	return m.counts, nil
}

const testSemesterUUID = "3d2c1b0a-9e8f-4d7c-b6a5-443322110099"

func eventServiceFixture(events ...*models.Event) (*EventService, *mockEventRepo) {
	repo := newMockEventRepo(events...)
	semesters := newMockSemesterRepo(&models.Semester{ID: testSemesterUUID, Name: "1st Semester", Active: true})
	return NewEventService(repo, semesters, zap.NewNop()), repo
}

func validEventRequest() EventRequest {
	return EventRequest{
		SemesterID: testSemesterUUID,
		Name:       "Flag Ceremony",
		Date:       "2025-06-10",
		TimeSlots: []TimeSlotRequest{
			{SlotType: "morning-in", StartTime: "07:00", EndTime: "08:00"},
			{SlotType: "morning-out", StartTime: "11:00", EndTime: "12:00"},
		},
	}
}

func TestEventCreateAssignsSlotIDs(t *testing.T) {
	svc, _ := eventServiceFixture()

	event, err := svc.Create(context.Background(), validEventRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	require.Len(t, event.TimeSlots, 2)
	for _, slot := range event.TimeSlots {
		assert.NotEmpty(t, slot.ID)
		assert.Equal(t, event.ID, slot.EventID)
	}
}

func TestEventCreateNormalisesSlotTimes(t *testing.T) {
	svc, _ := eventServiceFixture()

	req := validEventRequest()
	req.TimeSlots = []TimeSlotRequest{
		{SlotType: "morning-in", StartTime: "7:00", EndTime: "8:00"},
		{SlotType: "afternoon-in", StartTime: "13:00", EndTime: "14:00"},
	}

	event, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, event.TimeSlots, 2)
	// zero-padded storage keeps the lexicographic slot ordering correct
	assert.Equal(t, "07:00", event.TimeSlots[0].StartTime)
	assert.Equal(t, "08:00", event.TimeSlots[0].EndTime)
	assert.Less(t, event.TimeSlots[0].StartTime, event.TimeSlots[1].StartTime)
}

func TestEventCreateRejectsUnknownSlotType(t *testing.T) {
	svc, _ := eventServiceFixture()

	req := validEventRequest()
	req.TimeSlots[0].SlotType = "midnight-in"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 400, appErr.Status)
	assert.Contains(t, appErr.Message, "midnight-in")
}

func TestEventCreateRejectsDuplicateSlotType(t *testing.T) {
	svc, _ := eventServiceFixture()

	req := validEventRequest()
	req.TimeSlots[1].SlotType = "morning-in"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
}

func TestEventCreateRejectsInvertedSlotTimes(t *testing.T) {
	svc, _ := eventServiceFixture()

	req := validEventRequest()
	req.TimeSlots[0].StartTime = "09:00"
	req.TimeSlots[0].EndTime = "08:00"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
}

func TestEventCreateRejectsMissingSlots(t *testing.T) {
	svc, _ := eventServiceFixture()

	req := validEventRequest()
	req.TimeSlots = nil
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
}

func TestEventCreateRejectsUnknownSemester(t *testing.T) {
	svc, _ := eventServiceFixture()

	req := validEventRequest()
	req.SemesterID = "0b1c2d3e-4f5a-6789-abcd-ef0123456789"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
}

func TestEventUpdateSyncsSlots(t *testing.T) {
	existing := &models.Event{
		ID:         "event-1",
		SemesterID: testSemesterUUID,
		Name:       "Flag Ceremony",
		Date:       time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		TimeSlots: []models.TimeSlot{
			{ID: "a0b1c2d3-e4f5-6071-8293-a4b5c6d7e8f9", EventID: "event-1", SlotType: models.SlotMorningIn, StartTime: "07:00", EndTime: "08:00"},
			{ID: "b1c2d3e4-f5a6-7081-92a3-b4c5d6e7f809", EventID: "event-1", SlotType: models.SlotMorningOut, StartTime: "11:00", EndTime: "12:00"},
		},
	}
	svc, repo := eventServiceFixture(existing)

	req := validEventRequest()
	req.TimeSlots = []TimeSlotRequest{
		// keep and retime the first slot
		{ID: "a0b1c2d3-e4f5-6071-8293-a4b5c6d7e8f9", SlotType: "morning-in", StartTime: "07:30", EndTime: "08:30"},
		// brand new slot; the second stored slot is dropped by omission
		{SlotType: "afternoon-in", StartTime: "13:00", EndTime: "14:00"},
	}

	_, err := svc.Update(context.Background(), "event-1", req)
	require.NoError(t, err)

	require.NotNil(t, repo.updated)
	require.Len(t, repo.updated.TimeSlots, 2)
	assert.Equal(t, "a0b1c2d3-e4f5-6071-8293-a4b5c6d7e8f9", repo.updated.TimeSlots[0].ID)
	assert.Equal(t, "07:30", repo.updated.TimeSlots[0].StartTime)
	assert.NotEmpty(t, repo.updated.TimeSlots[1].ID)
	assert.Equal(t, models.SlotAfternoonIn, repo.updated.TimeSlots[1].SlotType)
}

func TestEventUpdateRejectsForeignSlotID(t *testing.T) {
	existing := &models.Event{
		ID:         "event-1",
		SemesterID: testSemesterUUID,
		Name:       "Flag Ceremony",
		Date:       time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
	}
	svc, _ := eventServiceFixture(existing)

	req := validEventRequest()
	req.TimeSlots = []TimeSlotRequest{
		{ID: "c2d3e4f5-a6b7-8091-a2b3-c4d5e6f70819", SlotType: "morning-in", StartTime: "07:00", EndTime: "08:00"},
	}
	_, err := svc.Update(context.Background(), "event-1", req)
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
}

func TestEventGetAttachesSlotCounts(t *testing.T) {
	existing := &models.Event{
		ID:         "event-1",
		SemesterID: testSemesterUUID,
		Name:       "Flag Ceremony",
		TimeSlots: []models.TimeSlot{
			{ID: "slot-1", EventID: "event-1", SlotType: models.SlotMorningIn, StartTime: "07:00", EndTime: "08:00"},
		},
	}
	svc, repo := eventServiceFixture(existing)
	repo.counts = map[string]int{"slot-1": 17}

	event, err := svc.Get(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 17, event.TimeSlots[0].AttendanceCount)
}
