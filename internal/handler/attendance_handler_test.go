package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sfxc-dev/attendance-api/internal/models"
	"github.com/sfxc-dev/attendance-api/internal/repository"
	"github.com/sfxc-dev/attendance-api/internal/service"
)

const (
	scanSlotID = "7f8c8e1a-2f7a-4a8f-9b55-0d9f31e2a001"
	scanRFID   = "0123456789"
)

type fakeScanLedger struct {
	seen     map[string]bool
	presents int
}

func (f *fakeScanLedger) Insert(_ context.Context, record *models.AttendanceRecord) error {
	key := record.StudentRFIDUID + "|" + record.TimeSlotID
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return repository.ErrDuplicateRecord
	}
	f.seen[key] = true
	return nil
}

func (f *fakeScanLedger) List(_ context.Context, _ models.AttendanceFilter) ([]models.AttendanceDetail, int, error) {
	return []models.AttendanceDetail{}, 0, nil
}

func (f *fakeScanLedger) Delete(_ context.Context, _ string) error { return nil }

func (f *fakeScanLedger) CountBySlot(_ context.Context, _ string) (int, error) {
	return f.presents, nil
}

type fakeSlotDir struct {
	eventDate time.Time
}

func (f *fakeSlotDir) FindSlot(_ context.Context, _ string) (*models.TimeSlot, *models.Event, error) {
	slot := &models.TimeSlot{ID: scanSlotID, EventID: "event-1", SlotType: models.SlotMorningIn, StartTime: "00:00", EndTime: "23:59"}
	event := &models.Event{ID: "event-1", Name: "Flag Ceremony", Date: f.eventDate}
	return slot, event, nil
}

type fakeStudentDir struct{}

func (f *fakeStudentDir) FindByRFID(_ context.Context, _ string) (*models.Student, error) {
	return &models.Student{ID: "student-1", StudentID: "2021-00001", RFIDUID: scanRFID, FirstName: "Juan", LastName: "Dela Cruz"}, nil
}

func (f *fakeStudentDir) Count(_ context.Context) (int, error) { return 30, nil }

func scanHandlerFixture(eventDate time.Time, ledger *fakeScanLedger) *AttendanceHandler {
	svc := service.NewAttendanceService(ledger, &fakeSlotDir{eventDate: eventDate}, &fakeStudentDir{}, nil, nil, nil, zap.NewNop(), service.AttendanceServiceConfig{RFIDLength: 10})
	return NewAttendanceHandler(svc, service.NewMetricsService())
}

func postScan(t *testing.T, h *AttendanceHandler, payload string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/attendance", strings.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")
	h.Record(c)
	return rec
}

func TestAttendanceHandlerRecord(t *testing.T) {
	gin.SetMode(gin.TestMode)
	today := time.Now()
	handler := scanHandlerFixture(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.Local), &fakeScanLedger{})

	payload := `{"student_rfid_uid":"` + scanRFID + `","time_slot_id":"` + scanSlotID + `"}`

	rec := postScan(t, handler, payload)
	assert.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data struct {
			Student struct {
				StudentID string `json:"student_id"`
			} `json:"student"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "2021-00001", envelope.Data.Student.StudentID)

	// second scan of the same card against the same slot is a conflict
	rec = postScan(t, handler, payload)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errEnvelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errEnvelope))
	assert.Equal(t, "Attendance already recorded", errEnvelope.Error.Message)
}

func TestAttendanceHandlerRecordWrongDay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := scanHandlerFixture(time.Now().AddDate(0, 0, 3), &fakeScanLedger{})

	rec := postScan(t, handler, `{"student_rfid_uid":"`+scanRFID+`","time_slot_id":"`+scanSlotID+`"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAttendanceHandlerRecordBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := scanHandlerFixture(time.Now(), &fakeScanLedger{})

	rec := postScan(t, handler, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttendanceHandlerStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := scanHandlerFixture(time.Now(), &fakeScanLedger{presents: 12})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/attendance/stats/"+scanSlotID, nil)
	c.Params = gin.Params{{Key: "slotId", Value: scanSlotID}}
	handler.Stats(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data models.SlotStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 30, envelope.Data.Total)
	assert.Equal(t, 12, envelope.Data.Present)
}
