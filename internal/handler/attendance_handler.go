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

// AttendanceHandler exposes the kiosk scan endpoint plus admin views over
// the attendance ledger.
type AttendanceHandler struct {
	service *service.AttendanceService
	metrics *service.MetricsService
}

// NewAttendanceHandler constructs an attendance handler.
func NewAttendanceHandler(svc *service.AttendanceService, metrics *service.MetricsService) *AttendanceHandler {
	return &AttendanceHandler{service: svc, metrics: metrics}
}

// Record godoc
// @Summary Record an RFID scan
// @Description Records attendance for a student against a time slot after eligibility checks
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.RecordAttendanceRequest true "Scan payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Record(c *gin.Context) {
	var req service.RecordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Record(c.Request.Context(), req)
	if err != nil {
		h.observe(err)
		response.Error(c, err)
		return
	}
	h.metrics.ObserveScan("accepted")
	response.JSON(c, http.StatusOK, result, nil)
}

// Stats godoc
// @Summary Slot attendance stats
// @Description Roster size and scans recorded for a time slot, for kiosk polling
// @Tags Attendance
// @Produce json
// @Param slotId path string true "Time slot ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/stats/{slotId} [get]
func (h *AttendanceHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Param("slotId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param search query string false "Search by student name or ID"
// @Param yearLevel query int false "Filter by year level"
// @Param slotId query string false "Filter by time slot"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	var filter models.AttendanceFilter
	filter.Search = c.Query("search")
	filter.TimeSlotID = c.Query("slotId")
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

	records, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Delete godoc
// @Summary Delete an attendance record
// @Tags Attendance
// @Param id path string true "Attendance record ID"
// @Success 204
// @Router /attendance/{id} [delete]
func (h *AttendanceHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *AttendanceHandler) observe(err error) {
	appErr := appErrors.FromError(err)
	switch {
	case appErr.Is(appErrors.ErrDuplicateScan):
		h.metrics.ObserveScan("duplicate")
	case appErr.Is(appErrors.ErrTooEarly):
		h.metrics.ObserveScan("too_early")
	case appErr.Is(appErrors.ErrNotEventDay):
		h.metrics.ObserveScan("not_event_day")
	case appErr.Is(appErrors.ErrUnknownStudent), appErr.Is(appErrors.ErrUnknownSlot):
		h.metrics.ObserveScan("unknown")
	default:
		h.metrics.ObserveScan("error")
	}
}
