package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sfxc-dev/attendance-api/internal/models"
	appErrors "github.com/sfxc-dev/attendance-api/pkg/errors"
)

type eventRepository interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	FindByID(ctx context.Context, id string) (*models.Event, error)
	ListUpcoming(ctx context.Context, semesterID string, from time.Time, limit int) ([]models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
	SlotAttendanceCounts(ctx context.Context, eventID string) (map[string]int, error)
}

type eventSemesterFinder interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	FindActive(ctx context.Context) (*models.Semester, error)
}

// TimeSlotRequest describes one slot in an event payload. ID is set on
// update to keep an existing slot; slots without an ID are created and
// stored slots missing from the payload are removed.
type TimeSlotRequest struct {
	ID        string `json:"id" validate:"omitempty,uuid"`
	SlotType  string `json:"slot_type" validate:"required"`
	StartTime string `json:"start" validate:"required"`
	EndTime   string `json:"end" validate:"required"`
}

// EventRequest carries the create/update payload.
type EventRequest struct {
	SemesterID  string            `json:"semester_id" validate:"required,uuid"`
	Name        string            `json:"name" validate:"required,max=255"`
	Date        string            `json:"date" validate:"required,datetime=2006-01-02"`
	Description string            `json:"description" validate:"max=1000"`
	TimeSlots   []TimeSlotRequest `json:"time_slots" validate:"required,min=1,dive"`
}

// EventService manages events and their time slots.
type EventService struct {
	repo      eventRepository
	semesters eventSemesterFinder
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewEventService(repo eventRepository, semesters eventSemesterFinder, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{
		repo:      repo,
		semesters: semesters,
		validate:  validator.New(),
		logger:    logger,
	}
}

func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	return events, total, nil
}

func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}

	counts, err := s.repo.SlotAttendanceCounts(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot counts")
	}
	for i := range event.TimeSlots {
		event.TimeSlots[i].AttendanceCount = counts[event.TimeSlots[i].ID]
	}
	return event, nil
}

// Upcoming returns the active semester's next events from today onward.
// Kiosks use it to offer the slots a scanner can be bound to.
func (s *EventService) Upcoming(ctx context.Context, limit int) ([]models.Event, error) {
	semester, err := s.semesters.FindActive(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active semester")
	}
	if limit <= 0 {
		limit = 10
	}

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	events, err := s.repo.ListUpcoming(ctx, semester.ID, today, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list upcoming events")
	}
	return events, nil
}

func (s *EventService) Create(ctx context.Context, req EventRequest) (*models.Event, error) {
	date, slots, err := s.checkRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		ID:         uuid.NewString(),
		SemesterID: req.SemesterID,
		Name:       req.Name,
		Date:       date,
		TimeSlots:  slots,
	}
	if req.Description != "" {
		event.Description = sql.NullString{String: req.Description, Valid: true}
	}
	for i := range event.TimeSlots {
		event.TimeSlots[i].ID = uuid.NewString()
		event.TimeSlots[i].EventID = event.ID
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}

	s.logger.Info("event created",
		zap.String("event_id", event.ID),
		zap.String("name", event.Name),
		zap.Int("time_slots", len(event.TimeSlots)))
	return event, nil
}

func (s *EventService) Update(ctx context.Context, id string, req EventRequest) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}

	date, slots, err := s.checkRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(event.TimeSlots))
	for _, slot := range event.TimeSlots {
		known[slot.ID] = true
	}
	for i := range slots {
		switch {
		case slots[i].ID == "":
			slots[i].ID = uuid.NewString()
		case !known[slots[i].ID]:
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("time slot %s does not belong to this event", slots[i].ID))
		}
		slots[i].EventID = id
	}

	event.SemesterID = req.SemesterID
	event.Name = req.Name
	event.Date = date
	event.Description = sql.NullString{String: req.Description, Valid: req.Description != ""}
	event.TimeSlots = slots

	if err := s.repo.Update(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}
	return s.Get(ctx, id)
}

func (s *EventService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	s.logger.Info("event deleted", zap.String("event_id", id))
	return nil
}

func (s *EventService) checkRequest(ctx context.Context, req EventRequest) (time.Time, []models.TimeSlot, error) {
	if err := s.validate.Struct(req); err != nil {
		return time.Time{}, nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return time.Time{}, nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}

	if _, err := s.semesters.FindByID(ctx, req.SemesterID); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil, appErrors.Clone(appErrors.ErrValidation, "semester not found")
		}
		return time.Time{}, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check semester")
	}

	seen := make(map[models.SlotType]bool, len(req.TimeSlots))
	slots := make([]models.TimeSlot, len(req.TimeSlots))
	for i, sr := range req.TimeSlots {
		slotType := models.SlotType(sr.SlotType)
		if !slotType.Valid() {
			return time.Time{}, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown slot type %q", sr.SlotType))
		}
		if seen[slotType] {
			return time.Time{}, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate slot type %q", sr.SlotType))
		}
		seen[slotType] = true

		start, err := models.ParseClock(sr.StartTime)
		if err != nil {
			return time.Time{}, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot %q start must be HH:MM", sr.SlotType))
		}
		end, err := models.ParseClock(sr.EndTime)
		if err != nil {
			return time.Time{}, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot %q end must be HH:MM", sr.SlotType))
		}
		if start >= end {
			return time.Time{}, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot %q must start before it ends", sr.SlotType))
		}

		slots[i] = models.TimeSlot{
			ID:        sr.ID,
			SlotType:  slotType,
			StartTime: models.FormatClock(start),
			EndTime:   models.FormatClock(end),
		}
	}
	return date, slots, nil
}
