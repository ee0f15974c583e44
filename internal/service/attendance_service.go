package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sfxc-dev/attendance-api/internal/models"
	"github.com/sfxc-dev/attendance-api/internal/repository"
	appErrors "github.com/sfxc-dev/attendance-api/pkg/errors"
)

type attendanceLedger interface {
	Insert(ctx context.Context, record *models.AttendanceRecord) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error)
	Delete(ctx context.Context, id string) error
	CountBySlot(ctx context.Context, timeSlotID string) (int, error)
}

type slotDirectory interface {
	FindSlot(ctx context.Context, slotID string) (*models.TimeSlot, *models.Event, error)
}

type studentDirectory interface {
	FindByRFID(ctx context.Context, rfidUID string) (*models.Student, error)
	Count(ctx context.Context) (int, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RecordAttendanceRequest is one scan submission.
type RecordAttendanceRequest struct {
	StudentRFIDUID string `json:"student_rfid_uid" validate:"required,numeric"`
	TimeSlotID     string `json:"time_slot_id" validate:"required,uuid"`
}

// RecordAttendanceResponse echoes the accepted record with the matched
// student so kiosks can display who just scanned.
type RecordAttendanceResponse struct {
	Record  *models.AttendanceRecord `json:"record"`
	Student *models.Student          `json:"student"`
}

// AttendanceServiceConfig tunes recorder behaviour.
type AttendanceServiceConfig struct {
	RFIDLength    int
	StatsCacheTTL time.Duration
}

// AttendanceService is the attendance recorder: the only component allowed
// to append ledger rows.
type AttendanceService struct {
	ledger    attendanceLedger
	slots     slotDirectory
	students  studentDirectory
	cache     statsCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       AttendanceServiceConfig

	now func() time.Time
}

// NewAttendanceService creates the recorder.
func NewAttendanceService(ledger attendanceLedger, slots slotDirectory, students studentDirectory, cache statsCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg AttendanceServiceConfig) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RFIDLength <= 0 {
		cfg.RFIDLength = 10
	}
	if cfg.StatsCacheTTL <= 0 {
		cfg.StatsCacheTTL = 15 * time.Second
	}
	return &AttendanceService{
		ledger:    ledger,
		slots:     slots,
		students:  students,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Record runs one scan through the full pipeline: input validation, slot and
// student resolution, the eligibility gate, then the atomic ledger insert.
// Exactly one row is created on acceptance; every rejection leaves the ledger
// untouched.
func (s *AttendanceService) Record(ctx context.Context, req RecordAttendanceRequest) (*RecordAttendanceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if len(req.StudentRFIDUID) != s.cfg.RFIDLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("RFID must be %d characters", s.cfg.RFIDLength))
	}

	slot, event, err := s.slots.FindSlot(ctx, req.TimeSlotID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrUnknownSlot
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
	}

	student, err := s.students.FindByRFID(ctx, req.StudentRFIDUID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrUnknownStudent
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up student")
	}

	slotStart, err := models.ParseClock(slot.StartTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malformed slot start time")
	}

	now := s.now()
	switch verdict := CheckEligibility(now, event.Date, slotStart); verdict.Status {
	case NotEventDay:
		return nil, appErrors.ErrNotEventDay
	case TooEarly:
		message := "Attendance not allowed until " + verdict.AvailableAt.Format("3:04 PM")
		return nil, appErrors.WithDetails(appErrors.ErrTooEarly, message, map[string]interface{}{
			"available_at": verdict.AvailableAt.Format(time.RFC3339),
		})
	}

	record := &models.AttendanceRecord{
		StudentRFIDUID: student.RFIDUID,
		StudentID:      student.ID,
		TimeSlotID:     slot.ID,
		CreatedAt:      now.UTC(),
	}
	if err := s.ledger.Insert(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateRecord) {
			return nil, appErrors.ErrDuplicateScan
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	s.invalidateStats(ctx, slot.ID)
	s.logger.Info("attendance recorded",
		zap.String("student_id", student.ID),
		zap.String("time_slot_id", slot.ID),
		zap.String("event_id", event.ID),
	)

	return &RecordAttendanceResponse{Record: record, Student: student}, nil
}

// Stats returns the kiosk poll payload for one slot, served from cache when
// fresh enough.
func (s *AttendanceService) Stats(ctx context.Context, timeSlotID string) (*models.SlotStats, error) {
	if timeSlotID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "time_slot_id is required")
	}

	key := statsCacheKey(timeSlotID)
	var cached models.SlotStats
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		} else if errors.Is(err, appErrors.ErrCacheMiss) {
			s.metrics.RecordCacheOperation(false)
		} else {
			s.logger.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	total, err := s.students.Count(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	present, err := s.ledger.CountBySlot(ctx, timeSlotID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attendance")
	}

	stats := &models.SlotStats{Total: total, Present: present}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.cfg.StatsCacheTTL); err != nil {
			s.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return stats, nil
}

// List serves the admin attendance screen.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, *models.Pagination, error) {
	rows, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return rows, pagination, nil
}

// Delete removes one ledger row by explicit admin action.
func (s *AttendanceService) Delete(ctx context.Context, id string) error {
	if err := s.ledger.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNoRowsDeleted) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance")
	}
	return nil
}

func (s *AttendanceService) invalidateStats(ctx context.Context, timeSlotID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey(timeSlotID)); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.String("time_slot_id", timeSlotID), zap.Error(err))
	}
}

func statsCacheKey(timeSlotID string) string {
	return "attendance:stats:" + timeSlotID
}
