package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sfxc-dev/attendance-api/internal/models"
	appErrors "github.com/sfxc-dev/attendance-api/pkg/errors"
	"github.com/sfxc-dev/attendance-api/pkg/export"
)

// ReportFormat selects the export renderer.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

type reportStudentLister interface {
	ListForReport(ctx context.Context, yearLevel int, search string) ([]models.Student, error)
}

type semesterEventLister interface {
	ListBySemester(ctx context.Context, semesterID string) ([]models.Event, error)
}

type semesterFinder interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
}

type stampFetcher interface {
	StampsForSlots(ctx context.Context, timeSlotIDs []string) ([]models.StudentSlotStamp, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered report ready to stream to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// RecordService is the matrix aggregator: it flattens a semester's events
// and slots into fixed columns and fills one row per student. The JSON
// report and the file export run through the same matrix so their cells
// always agree.
type RecordService struct {
	students  reportStudentLister
	events    semesterEventLister
	semesters semesterFinder
	ledger    stampFetcher
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
}

// NewRecordService constructs the aggregator.
func NewRecordService(students reportStudentLister, events semesterEventLister, semesters semesterFinder, ledger stampFetcher, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *RecordService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordService{
		students:  students,
		events:    events,
		semesters: semesters,
		ledger:    ledger,
		csv:       csv,
		pdf:       pdf,
		logger:    logger,
	}
}

// BuildMatrix produces the dense students × slots presence matrix for one
// semester. Columns follow the deterministic event-date/slot-start
// flattening; a nil cell is an absence.
func (s *RecordService) BuildMatrix(ctx context.Context, filter models.RecordFilter) (*models.RecordMatrix, error) {
	if filter.SemesterID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester is required")
	}
	if _, err := s.semesters.FindByID(ctx, filter.SemesterID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}

	events, err := s.events.ListBySemester(ctx, filter.SemesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester events")
	}
	columns := FlattenColumns(events)

	students, err := s.students.ListForReport(ctx, filter.YearLevel, filter.Search)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}

	slotIDs := make([]string, len(columns))
	for i, col := range columns {
		slotIDs[i] = col.TimeSlotID
	}
	stamps, err := s.ledger.StampsForSlots(ctx, slotIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	// stamp index: rfid -> slot -> timestamp
	index := make(map[string]map[string]time.Time, len(students))
	for _, stamp := range stamps {
		bySlot, ok := index[stamp.StudentRFIDUID]
		if !ok {
			bySlot = make(map[string]time.Time)
			index[stamp.StudentRFIDUID] = bySlot
		}
		bySlot[stamp.TimeSlotID] = stamp.CreatedAt
	}

	rows := make([]models.RecordRow, len(students))
	for i, student := range students {
		cells := make([]*time.Time, len(columns))
		if bySlot, ok := index[student.RFIDUID]; ok {
			for j, col := range columns {
				if ts, present := bySlot[col.TimeSlotID]; present {
					stamp := ts
					cells[j] = &stamp
				}
			}
		}
		rows[i] = models.RecordRow{Student: student, Cells: cells}
	}

	return &models.RecordMatrix{Columns: columns, Rows: rows}, nil
}

// Export renders the matrix for the same filter as a downloadable file.
// Cells become "Present"/"Absent"; headers match the on-screen columns.
func (s *RecordService) Export(ctx context.Context, filter models.RecordFilter, format ReportFormat) (*ExportFile, error) {
	matrix, err := s.BuildMatrix(ctx, filter)
	if err != nil {
		return nil, err
	}

	headers := []string{"Student Name", "Student ID", "Year Level"}
	for _, col := range matrix.Columns {
		headers = append(headers, col.Label())
	}

	rows := make([]map[string]string, len(matrix.Rows))
	for i, row := range matrix.Rows {
		record := map[string]string{
			"Student Name": row.Student.FullName(),
			"Student ID":   row.Student.StudentID,
			"Year Level":   fmt.Sprintf("%d", row.Student.YearLevel),
		}
		for j, col := range matrix.Columns {
			if row.Cells[j] != nil {
				record[col.Label()] = "Present"
			} else {
				record[col.Label()] = "Absent"
			}
		}
		rows[i] = record
	}
	dataset := export.Dataset{Headers: headers, Rows: rows}

	stamp := time.Now().UTC().Format("20060102-150405")
	switch format {
	case ReportFormatPDF:
		payload, err := s.pdf.Render(dataset, "Attendance Records")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("attendance-records-%s.pdf", stamp),
			ContentType: "application/pdf",
			Payload:     payload,
		}, nil
	case ReportFormatCSV, "":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("attendance-records-%s.csv", stamp),
			ContentType: "text/csv",
			Payload:     payload,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

// FlattenColumns turns events (ordered by date) and their slots (ordered by
// start time) into the shared column sequence. Ties keep the repository
// ordering, which is stable.
func FlattenColumns(events []models.Event) []models.RecordColumn {
	columns := make([]models.RecordColumn, 0)
	for _, event := range events {
		for _, slot := range event.TimeSlots {
			columns = append(columns, models.RecordColumn{
				TimeSlotID: slot.ID,
				EventID:    event.ID,
				EventName:  event.Name,
				EventDate:  event.Date,
				SlotType:   slot.SlotType,
				StartTime:  models.Clock(slot.StartTime),
				EndTime:    models.Clock(slot.EndTime),
			})
		}
	}
	return columns
}

// ParseReportFormat normalises the query value.
func ParseReportFormat(raw string) (ReportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "csv":
		return ReportFormatCSV, nil
	case "pdf":
		return ReportFormatPDF, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", raw))
	}
}
