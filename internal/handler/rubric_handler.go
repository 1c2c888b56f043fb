package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clinsim/simlab-api/internal/models"
	"github.com/clinsim/simlab-api/internal/service"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
	"github.com/clinsim/simlab-api/pkg/response"
)

// RubricHandler exposes rubric template and scoring endpoints.
type RubricHandler struct {
	rubrics *service.RubricService
}

// NewRubricHandler constructs RubricHandler.
func NewRubricHandler(rubrics *service.RubricService) *RubricHandler {
	return &RubricHandler{rubrics: rubrics}
}

// ListTemplates godoc
// @Summary List rubric templates
// @Tags Rubrics
// @Produce json
// @Param search query string false "Search by title"
// @Param creatorId query string false "Filter by creator"
// @Param courseId query string false "Filter by course"
// @Param archived query bool false "Filter by archived state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /rubric-templates [get]
func (h *RubricHandler) ListTemplates(c *gin.Context) {
	var filter models.RubricTemplateFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.CreatorID = c.Query("creatorId")
	filter.CourseID = c.Query("courseId")
	if archived := c.Query("archived"); archived != "" {
		v := archived == "true"
		filter.Archived = &v
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	templates, pagination, err := h.rubrics.ListTemplates(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "rubric templates retrieved", templates, pagination)
}

// GetTemplate godoc
// @Summary Get a rubric template with criteria and columns
// @Tags Rubrics
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /rubric-templates/{id} [get]
func (h *RubricHandler) GetTemplate(c *gin.Context) {
	template, err := h.rubrics.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "rubric template retrieved", template)
}

// CreateTemplate godoc
// @Summary Create a rubric template
// @Tags Rubrics
// @Accept json
// @Produce json
// @Param payload body service.CreateTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /rubric-templates [post]
func (h *RubricHandler) CreateTemplate(c *gin.Context) {
	var req service.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && req.CreatorID == "" {
		req.CreatorID = claims.UserID
	}

	template, err := h.rubrics.CreateTemplate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "rubric template created", template)
}

// ArchiveTemplate godoc
// @Summary Archive or unarchive a rubric template
// @Tags Rubrics
// @Param id path string true "Template ID"
// @Param archived query bool false "Archived state, defaults to true"
// @Success 204
// @Security BearerAuth
// @Router /rubric-templates/{id}/archive [put]
func (h *RubricHandler) ArchiveTemplate(c *gin.Context) {
	archived := c.DefaultQuery("archived", "true") == "true"
	if err := h.rubrics.ArchiveTemplate(c.Request.Context(), c.Param("id"), archived); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteTemplate godoc
// @Summary Delete a rubric template
// @Tags Rubrics
// @Param id path string true "Template ID"
// @Success 204
// @Security BearerAuth
// @Router /rubric-templates/{id} [delete]
func (h *RubricHandler) DeleteTemplate(c *gin.Context) {
	if err := h.rubrics.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GetSimulationRubric godoc
// @Summary Get the rubric of a simulation
// @Tags Rubrics
// @Produce json
// @Param id path string true "Simulation ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /simulations/{id}/rubric [get]
func (h *RubricHandler) GetSimulationRubric(c *gin.Context) {
	rubric, err := h.rubrics.GetSimulationRubric(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "rubric retrieved", rubric)
}

// ScoreSimulationRubric godoc
// @Summary Score the rubric of a simulation
// @Tags Rubrics
// @Accept json
// @Produce json
// @Param id path string true "Simulation ID"
// @Param payload body service.ScoreRubricRequest true "Criterion scores"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /simulations/{id}/rubric [put]
func (h *RubricHandler) ScoreSimulationRubric(c *gin.Context) {
	var req service.ScoreRubricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	rubric, err := h.rubrics.ScoreSimulationRubric(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "rubric scored", rubric)
}
