package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sfxc-dev/attendance-api/internal/models"
	"github.com/sfxc-dev/attendance-api/internal/service"
	"github.com/sfxc-dev/attendance-api/pkg/response"
)

// RecordHandler serves the attendance matrix report and its file exports.
type RecordHandler struct {
	service *service.RecordService
}

// NewRecordHandler constructs a record handler.
func NewRecordHandler(svc *service.RecordService) *RecordHandler {
	return &RecordHandler{service: svc}
}

// Matrix godoc
// @Summary Attendance matrix report
// @Description Students as rows, every time slot of the semester as a column
// @Tags Records
// @Produce json
// @Param semesterId query string true "Semester ID"
// @Param yearLevel query int false "Filter by year level"
// @Param search query string false "Search by student name or ID"
// @Success 200 {object} response.Envelope
// @Router /records [get]
func (h *RecordHandler) Matrix(c *gin.Context) {
	matrix, err := h.service.BuildMatrix(c.Request.Context(), recordFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, matrix, nil)
}

// Export godoc
// @Summary Export the attendance matrix
// @Description Downloads the same matrix as CSV or PDF with Present/Absent cells
// @Tags Records
// @Produce text/csv
// @Produce application/pdf
// @Param semesterId query string true "Semester ID"
// @Param yearLevel query int false "Filter by year level"
// @Param search query string false "Search by student name or ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /records/export [get]
func (h *RecordHandler) Export(c *gin.Context) {
	format, err := service.ParseReportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.Export(c.Request.Context(), recordFilter(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}

func recordFilter(c *gin.Context) models.RecordFilter {
	filter := models.RecordFilter{
		SemesterID: c.Query("semesterId"),
		Search:     c.Query("search"),
	}
	if year, err := strconv.Atoi(c.Query("yearLevel")); err == nil {
		filter.YearLevel = year
	}
	return filter
}
