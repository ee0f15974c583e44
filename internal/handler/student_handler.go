package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sfxc-dev/attendance-api/internal/models"
	"github.com/sfxc-dev/attendance-api/internal/service"
	appErrors "github.com/sfxc-dev/attendance-api/pkg/errors"
	"github.com/sfxc-dev/attendance-api/pkg/response"
)

const maxImportSize = 5 << 20 // 5 MiB

// StudentHandler exposes roster endpoints.
type StudentHandler struct {
	service *service.StudentService
}

// NewStudentHandler constructs a student handler.
func NewStudentHandler(svc *service.StudentService) *StudentHandler {
	return &StudentHandler{service: svc}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or student ID"
// @Param yearLevel query int false "Filter by year level"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	var filter models.StudentFilter
	filter.Search = c.Query("search")
	if year, err := strconv.Atoi(c.Query("yearLevel")); err == nil {
		filter.YearLevel = year
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	students, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Get a student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Register a student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.StudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update a student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.StudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete a student
// @Tags Students
// @Param id path string true "Student ID"
// @Success 204
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Import godoc
// @Summary Import students from CSV
// @Description Uploads a roster CSV; all rows apply or none do
// @Tags Students
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Roster CSV"
// @Success 200 {object} response.Envelope
// @Router /students/import [post]
func (h *StudentHandler) Import(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	if fileHeader.Size > maxImportSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds the 5 MiB limit"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read file"))
		return
	}
	defer file.Close()

	result, err := h.service.Import(c.Request.Context(), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export the roster
// @Tags Students
// @Produce text/csv
// @Produce application/pdf
// @Param search query string false "Search by name or student ID"
// @Param yearLevel query int false "Filter by year level"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /students/export [get]
func (h *StudentHandler) Export(c *gin.Context) {
	format, err := service.ParseReportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var filter models.StudentFilter
	filter.Search = c.Query("search")
	if year, err := strconv.Atoi(c.Query("yearLevel")); err == nil {
		filter.YearLevel = year
	}

	file, err := h.service.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}

// Template godoc
// @Summary Download the roster import template
// @Tags Students
// @Produce text/csv
// @Success 200 {file} file
// @Router /students/import/template [get]
func (h *StudentHandler) Template(c *gin.Context) {
	file, err := h.service.Template()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}
