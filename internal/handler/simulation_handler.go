package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinsim/simlab-api/internal/models"
	"github.com/clinsim/simlab-api/internal/service"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
	"github.com/clinsim/simlab-api/pkg/response"
)

// SimulationHandler exposes the scheduling endpoints.
type SimulationHandler struct {
	simulations *service.SimulationService
	calendar    *service.CalendarService
	metrics     *service.MetricsService
}

// NewSimulationHandler constructs SimulationHandler.
func NewSimulationHandler(simulations *service.SimulationService, calendar *service.CalendarService, metrics *service.MetricsService) *SimulationHandler {
	return &SimulationHandler{simulations: simulations, calendar: calendar, metrics: metrics}
}

// List godoc
// @Summary List simulations
// @Tags Simulations
// @Produce json
// @Param practiceId query string false "Filter by practice"
// @Param roomId query string false "Filter by room"
// @Param userId query string false "Filter by participant"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /simulations [get]
func (h *SimulationHandler) List(c *gin.Context) {
	var filter models.SimulationFilter
	filter.PracticeID = c.Query("practiceId")
	filter.RoomID = c.Query("roomId")
	filter.UserID = c.Query("userId")
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = &t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &t
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	sims, pagination, err := h.simulations.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "simulations retrieved", sims, pagination)
}

// Get godoc
// @Summary Get simulation detail
// @Tags Simulations
// @Produce json
// @Param id path string true "Simulation ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /simulations/{id} [get]
func (h *SimulationHandler) Get(c *gin.Context) {
	sim, err := h.simulations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "simulation retrieved", sim)
}

// Add godoc
// @Summary Book a batch of simulation slots
// @Tags Simulations
// @Accept json
// @Produce json
// @Param payload body service.AddSimulationsRequest true "Slots to book"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /simulations [post]
func (h *SimulationHandler) Add(c *gin.Context) {
	var req service.AddSimulationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	created, err := h.simulations.AddSimulations(c.Request.Context(), req)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrScheduleConflict.Code {
			h.metrics.RecordScheduleConflict()
		}
		response.Error(c, err)
		return
	}

	h.metrics.RecordSimulationsScheduled(len(created))
	h.calendar.Invalidate(c.Request.Context())
	response.Created(c, "simulations scheduled", created)
}

// Update godoc
// @Summary Reschedule a simulation
// @Tags Simulations
// @Accept json
// @Produce json
// @Param id path string true "Simulation ID"
// @Param payload body service.UpdateSimulationRequest true "New slot"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /simulations/{id} [put]
func (h *SimulationHandler) Update(c *gin.Context) {
	var req service.UpdateSimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	sim, err := h.simulations.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrScheduleConflict.Code {
			h.metrics.RecordScheduleConflict()
		}
		response.Error(c, err)
		return
	}

	h.calendar.Invalidate(c.Request.Context())
	response.OK(c, "simulation rescheduled", sim)
}

// Delete godoc
// @Summary Delete a simulation and its rubric
// @Tags Simulations
// @Param id path string true "Simulation ID"
// @Success 204
// @Security BearerAuth
// @Router /simulations/{id} [delete]
func (h *SimulationHandler) Delete(c *gin.Context) {
	if err := h.simulations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	h.calendar.Invalidate(c.Request.Context())
	response.NoContent(c)
}

// WeeklySchedule godoc
// @Summary Get the scheduling grid for one week
// @Tags Simulations
// @Produce json
// @Param date query string true "Week start date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /simulations/schedule [get]
func (h *SimulationHandler) WeeklySchedule(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidDateRange, "invalid date, expected YYYY-MM-DD"))
		return
	}

	entries, err := h.simulations.WeeklySchedule(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "weekly schedule retrieved", entries)
}

// PublishGrade godoc
// @Summary Publish the rubric total as the simulation grade
// @Tags Simulations
// @Produce json
// @Param id path string true "Simulation ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /simulations/{id}/grade [post]
func (h *SimulationHandler) PublishGrade(c *gin.Context) {
	sim, err := h.simulations.PublishGrade(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordGradePublished()
	response.OK(c, "grade published", sim)
}
