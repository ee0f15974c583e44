package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sfxc-dev/attendance-api/internal/models"
	appErrors "github.com/sfxc-dev/attendance-api/pkg/errors"
)

type semesterRepository interface {
	List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error)
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	FindActive(ctx context.Context) (*models.Semester, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	ExistsOverlapping(ctx context.Context, start, end time.Time, excludeID string) (bool, error)
	Create(ctx context.Context, semester *models.Semester) error
	Update(ctx context.Context, semester *models.Semester) error
	SetActive(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	CountEvents(ctx context.Context, id string) (int, error)
}

// SemesterRequest carries the create/update payload.
type SemesterRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// SemesterService owns semester lifecycle rules: unique names, no
// overlapping date ranges, and the single-active invariant.
type SemesterService struct {
	repo     semesterRepository
	validate *validator.Validate
	logger   *zap.Logger
}

func NewSemesterService(repo semesterRepository, logger *zap.Logger) *SemesterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemesterService{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *SemesterService) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error) {
	semesters, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semesters")
	}
	return semesters, total, nil
}

func (s *SemesterService) Get(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return semester, nil
}

// Active returns the currently active semester, or a not-found error when
// none is active.
func (s *SemesterService) Active(ctx context.Context) (*models.Semester, error) {
	semester, err := s.repo.FindActive(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active semester")
	}
	return semester, nil
}

func (s *SemesterService) Create(ctx context.Context, req SemesterRequest) (*models.Semester, error) {
	start, end, err := s.checkRequest(ctx, req, "")
	if err != nil {
		return nil, err
	}

	semester := &models.Semester{
		ID:        uuid.NewString(),
		Name:      req.Name,
		StartDate: start,
		EndDate:   end,
		Active:    false,
	}
	if err := s.repo.Create(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create semester")
	}

	s.logger.Info("semester created",
		zap.String("semester_id", semester.ID),
		zap.String("name", semester.Name))
	return semester, nil
}

func (s *SemesterService) Update(ctx context.Context, id string, req SemesterRequest) (*models.Semester, error) {
	semester, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	start, end, err := s.checkRequest(ctx, req, id)
	if err != nil {
		return nil, err
	}

	semester.Name = req.Name
	semester.StartDate = start
	semester.EndDate = end
	if err := s.repo.Update(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update semester")
	}
	return semester, nil
}

// Activate marks one semester active and deactivates every other in the
// same transaction, so at most one semester is ever active.
func (s *SemesterService) Activate(ctx context.Context, id string) (*models.Semester, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate semester")
	}
	s.logger.Info("semester activated", zap.String("semester_id", id))
	return s.Get(ctx, id)
}

func (s *SemesterService) Deactivate(ctx context.Context, id string) (*models.Semester, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate semester")
	}
	return s.Get(ctx, id)
}

// Delete refuses to remove the active semester or one that still has
// events attached.
func (s *SemesterService) Delete(ctx context.Context, id string) error {
	semester, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if semester.Active {
		return appErrors.Clone(appErrors.ErrPrecondition, "cannot delete the active semester")
	}
	events, err := s.repo.CountEvents(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count semester events")
	}
	if events > 0 {
		return appErrors.Clone(appErrors.ErrPrecondition, "cannot delete a semester that has events")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete semester")
	}
	s.logger.Info("semester deleted", zap.String("semester_id", id))
	return nil
}

func (s *SemesterService) checkRequest(ctx context.Context, req SemesterRequest, excludeID string) (time.Time, time.Time, error) {
	if err := s.validate.Struct(req); err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "start_date must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "end_date must be YYYY-MM-DD")
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}

	taken, err := s.repo.ExistsByName(ctx, req.Name, excludeID)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check semester name")
	}
	if taken {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrConflict, "a semester with this name already exists")
	}

	overlaps, err := s.repo.ExistsOverlapping(ctx, start, end, excludeID)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check semester overlap")
	}
	if overlaps {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrConflict, "semester dates overlap an existing semester")
	}
	return start, end, nil
}
