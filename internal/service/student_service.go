package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sfxc-dev/attendance-api/internal/models"
	appErrors "github.com/sfxc-dev/attendance-api/pkg/errors"
	"github.com/sfxc-dev/attendance-api/pkg/export"
	"github.com/sfxc-dev/attendance-api/pkg/storage"
)

// rosterHeader is the required column order for roster CSV imports. The
// downloadable template carries the same header.
var rosterHeader = []string{"student_id", "rfid_uid", "first_name", "middle_name", "last_name", "email", "year_level"}

const rosterTemplateFile = "student-import-template.csv"

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsBy(ctx context.Context, column, value, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	BulkInsert(ctx context.Context, students []models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

// StudentRequest carries the create/update payload.
type StudentRequest struct {
	StudentID  string `json:"student_id" validate:"required,max=64"`
	RFIDUID    string `json:"rfid_uid" validate:"required,numeric"`
	FirstName  string `json:"first_name" validate:"required,max=255"`
	MiddleName string `json:"middle_name" validate:"max=255"`
	LastName   string `json:"last_name" validate:"required,max=255"`
	Email      string `json:"email" validate:"required,email"`
	YearLevel  int    `json:"year_level" validate:"required,min=1,max=5"`
}

// ImportResult reports the outcome of a roster import.
type ImportResult struct {
	Imported int `json:"imported"`
}

// StudentService manages the student roster, including CSV import/export
// and the import template download.
type StudentService struct {
	repo       studentRepository
	files      *storage.LocalStorage
	csv        csvRenderer
	pdf        pdfRenderer
	validate   *validator.Validate
	logger     *zap.Logger
	rfidLength int
}

func NewStudentService(repo studentRepository, files *storage.LocalStorage, rfidLength int, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rfidLength <= 0 {
		rfidLength = 10
	}
	return &StudentService{
		repo:       repo,
		files:      files,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		validate:   validator.New(),
		logger:     logger,
		rfidLength: rfidLength,
	}
}

func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, total, nil
}

func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) Create(ctx context.Context, req StudentRequest) (*models.Student, error) {
	if err := s.checkRequest(ctx, req, ""); err != nil {
		return nil, err
	}

	student := s.fromRequest(req)
	student.ID = uuid.NewString()
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.logger.Info("student created",
		zap.String("id", student.ID),
		zap.String("student_id", student.StudentID))
	return student, nil
}

func (s *StudentService) Update(ctx context.Context, id string, req StudentRequest) (*models.Student, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkRequest(ctx, req, id); err != nil {
		return nil, err
	}

	student := s.fromRequest(req)
	student.ID = existing.ID
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.logger.Info("student deleted", zap.String("id", id))
	return nil
}

// Import parses a roster CSV and inserts every row in one transaction, so a
// bad row rejects the whole file and nothing is half-applied.
func (s *StudentService) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "csv file is empty")
	}
	if err := checkRosterHeader(header); err != nil {
		return nil, err
	}

	seenRFID := make(map[string]int)
	seenStudentID := make(map[string]int)
	var students []models.Student
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("line %d: %v", line, err))
		}

		req := StudentRequest{
			StudentID:  strings.TrimSpace(record[0]),
			RFIDUID:    strings.TrimSpace(record[1]),
			FirstName:  strings.TrimSpace(record[2]),
			MiddleName: strings.TrimSpace(record[3]),
			LastName:   strings.TrimSpace(record[4]),
			Email:      strings.TrimSpace(record[5]),
		}
		req.YearLevel, err = strconv.Atoi(strings.TrimSpace(record[6]))
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("line %d: year_level must be a number", line))
		}
		if err := s.checkRequest(ctx, req, ""); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("line %d: %s", line, appErrors.FromError(err).Message))
		}
		if prev, dup := seenRFID[req.RFIDUID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("line %d: rfid_uid repeats line %d", line, prev))
		}
		if prev, dup := seenStudentID[req.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("line %d: student_id repeats line %d", line, prev))
		}
		seenRFID[req.RFIDUID] = line
		seenStudentID[req.StudentID] = line

		student := s.fromRequest(req)
		student.ID = uuid.NewString()
		students = append(students, *student)
	}
	if len(students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "csv file has no data rows")
	}

	if err := s.repo.BulkInsert(ctx, students); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import students")
	}

	s.logger.Info("students imported", zap.Int("count", len(students)))
	return &ImportResult{Imported: len(students)}, nil
}

// Export renders the filtered roster as a CSV or PDF download.
func (s *StudentService) Export(ctx context.Context, filter models.StudentFilter, format ReportFormat) (*ExportFile, error) {
	filter.Page = 0
	filter.PageSize = 0
	students, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	rows := make([]map[string]string, len(students))
	for i, st := range students {
		rows[i] = map[string]string{
			"student_id": st.StudentID,
			"rfid_uid":   st.RFIDUID,
			"first_name": st.FirstName,
			"middle_name": func() string {
				if st.MiddleName.Valid {
					return st.MiddleName.String
				}
				return ""
			}(),
			"last_name":  st.LastName,
			"email":      st.Email,
			"year_level": strconv.Itoa(st.YearLevel),
		}
	}

	dataset := export.Dataset{Headers: rosterHeader, Rows: rows}
	stamp := time.Now().UTC().Format("20060102-150405")
	if format == ReportFormatPDF {
		payload, err := s.pdf.Render(dataset, "Students")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("students-%s.pdf", stamp),
			ContentType: "application/pdf",
			Payload:     payload,
		}, nil
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("students-%s.csv", stamp),
		ContentType: "text/csv",
		Payload:     payload,
	}, nil
}

// Template returns the roster import template, generating it on first use.
func (s *StudentService) Template() (*ExportFile, error) {
	if s.files != nil && s.files.Exists(rosterTemplateFile) {
		file, err := s.files.Open(rosterTemplateFile)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open template")
		}
		defer file.Close()
		payload, err := io.ReadAll(file)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read template")
		}
		return &ExportFile{Filename: rosterTemplateFile, ContentType: "text/csv", Payload: payload}, nil
	}

	sample := map[string]string{
		"student_id":  "2021-00001",
		"rfid_uid":    strings.Repeat("0", s.rfidLength),
		"first_name":  "Juan",
		"middle_name": "Santos",
		"last_name":   "Dela Cruz",
		"email":       "juan.delacruz@example.edu",
		"year_level":  "1",
	}
	payload, err := s.csv.Render(export.Dataset{Headers: rosterHeader, Rows: []map[string]string{sample}})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render template")
	}
	if s.files != nil {
		if _, err := s.files.Save(rosterTemplateFile, payload); err != nil {
			s.logger.Warn("failed to cache import template", zap.Error(err))
		}
	}
	return &ExportFile{Filename: rosterTemplateFile, ContentType: "text/csv", Payload: payload}, nil
}

func (s *StudentService) checkRequest(ctx context.Context, req StudentRequest, excludeID string) error {
	if err := s.validate.Struct(req); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if len(req.RFIDUID) != s.rfidLength {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rfid_uid must be %d digits", s.rfidLength))
	}

	checks := []struct {
		column, value, label string
	}{
		{"student_id", req.StudentID, "student_id"},
		{"rfid_uid", req.RFIDUID, "rfid_uid"},
		{"email", req.Email, "email"},
	}
	for _, check := range checks {
		taken, err := s.repo.ExistsBy(ctx, check.column, check.value, excludeID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student uniqueness")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%s is already registered", check.label))
		}
	}
	return nil
}

func (s *StudentService) fromRequest(req StudentRequest) *models.Student {
	return &models.Student{
		StudentID:  req.StudentID,
		RFIDUID:    req.RFIDUID,
		FirstName:  req.FirstName,
		MiddleName: sql.NullString{String: req.MiddleName, Valid: req.MiddleName != ""},
		LastName:   req.LastName,
		Email:      strings.ToLower(req.Email),
		YearLevel:  req.YearLevel,
	}
}

func checkRosterHeader(header []string) error {
	if len(header) != len(rosterHeader) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("csv header must be: %s", strings.Join(rosterHeader, ",")))
	}
	for i, col := range header {
		if !strings.EqualFold(strings.TrimSpace(col), rosterHeader[i]) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("csv header must be: %s", strings.Join(rosterHeader, ",")))
		}
	}
	return nil
}
