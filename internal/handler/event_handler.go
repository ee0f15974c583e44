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

// EventHandler exposes event endpoints.
type EventHandler struct {
	service *service.EventService
}

// NewEventHandler constructs an event handler.
func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{service: svc}
}

// List godoc
// @Summary List events
// @Tags Events
// @Produce json
// @Param search query string false "Search by name"
// @Param semesterId query string false "Filter by semester"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	var filter models.EventFilter
	filter.Search = c.Query("search")
	filter.SemesterID = c.Query("semesterId")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	events, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Upcoming godoc
// @Summary Upcoming events in the active semester
// @Description Used by kiosks to pick the time slot a scanner is bound to
// @Tags Events
// @Produce json
// @Param limit query int false "Max events"
// @Success 200 {object} response.Envelope
// @Router /kiosk/events [get]
func (h *EventHandler) Upcoming(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	events, err := h.service.Upcoming(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Get godoc
// @Summary Get an event with its time slots
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Create an event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body service.EventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req service.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	event, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Update an event and sync its time slots
// @Description Slots with an ID are updated, slots without one are created, missing slots are removed
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body service.EventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	var req service.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	event, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete an event
// @Tags Events
// @Param id path string true "Event ID"
// @Success 204
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
