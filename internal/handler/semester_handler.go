package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sfxc-dev/attendance-api/internal/models"
	"github.com/sfxc-dev/attendance-api/internal/service"
	appErrors "github.com/sfxc-dev/attendance-api/pkg/errors"
	"github.com/sfxc-dev/attendance-api/pkg/response"
)

// SemesterHandler exposes semester endpoints.
type SemesterHandler struct {
	service *service.SemesterService
}

// NewSemesterHandler constructs a semester handler.
func NewSemesterHandler(svc *service.SemesterService) *SemesterHandler {
	return &SemesterHandler{service: svc}
}

// List godoc
// @Summary List semesters
// @Tags Semesters
// @Produce json
// @Param search query string false "Search by name"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /semesters [get]
func (h *SemesterHandler) List(c *gin.Context) {
	var filter models.SemesterFilter
	filter.Search = c.Query("search")
	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	semesters, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semesters, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Active godoc
// @Summary Get the active semester
// @Tags Semesters
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /semesters/active [get]
func (h *SemesterHandler) Active(c *gin.Context) {
	semester, err := h.service.Active(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// Get godoc
// @Summary Get a semester
// @Tags Semesters
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id} [get]
func (h *SemesterHandler) Get(c *gin.Context) {
	semester, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// Create godoc
// @Summary Create a semester
// @Tags Semesters
// @Accept json
// @Produce json
// @Param payload body service.SemesterRequest true "Semester payload"
// @Success 201 {object} response.Envelope
// @Router /semesters [post]
func (h *SemesterHandler) Create(c *gin.Context) {
	var req service.SemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	semester, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, semester)
}

// Update godoc
// @Summary Update a semester
// @Tags Semesters
// @Accept json
// @Produce json
// @Param id path string true "Semester ID"
// @Param payload body service.SemesterRequest true "Semester payload"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id} [put]
func (h *SemesterHandler) Update(c *gin.Context) {
	var req service.SemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	semester, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// Activate godoc
// @Summary Activate a semester
// @Description Marks the semester active and deactivates every other one
// @Tags Semesters
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id}/activate [post]
func (h *SemesterHandler) Activate(c *gin.Context) {
	semester, err := h.service.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// Deactivate godoc
// @Summary Deactivate a semester
// @Tags Semesters
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id}/deactivate [post]
func (h *SemesterHandler) Deactivate(c *gin.Context) {
	semester, err := h.service.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// Delete godoc
// @Summary Delete a semester
// @Tags Semesters
// @Param id path string true "Semester ID"
// @Success 204
// @Router /semesters/{id} [delete]
func (h *SemesterHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
