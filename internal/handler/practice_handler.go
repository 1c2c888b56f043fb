package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clinsim/simlab-api/internal/models"
	"github.com/clinsim/simlab-api/internal/service"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
	"github.com/clinsim/simlab-api/pkg/response"
)

// PracticeHandler exposes practice endpoints.
type PracticeHandler struct {
	practices *service.PracticeService
	rubrics   *service.RubricService
}

// NewPracticeHandler constructs PracticeHandler.
func NewPracticeHandler(practices *service.PracticeService, rubrics *service.RubricService) *PracticeHandler {
	return &PracticeHandler{practices: practices, rubrics: rubrics}
}

// List godoc
// @Summary List practices
// @Tags Practices
// @Produce json
// @Param classId query string false "Filter by class"
// @Param gradeable query bool false "Filter by gradeable flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /practices [get]
func (h *PracticeHandler) List(c *gin.Context) {
	var filter models.PracticeFilter
	filter.ClassID = c.Query("classId")
	if gradeable := c.Query("gradeable"); gradeable != "" {
		v := gradeable == "true"
		filter.Gradeable = &v
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	practices, pagination, err := h.practices.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "practices retrieved", practices, pagination)
}

// Get godoc
// @Summary Get practice detail
// @Tags Practices
// @Produce json
// @Param id path string true "Practice ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /practices/{id} [get]
func (h *PracticeHandler) Get(c *gin.Context) {
	practice, err := h.practices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "practice retrieved", practice)
}

// Create godoc
// @Summary Create a practice
// @Tags Practices
// @Accept json
// @Produce json
// @Param payload body service.PracticeRequest true "Practice payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /practices [post]
func (h *PracticeHandler) Create(c *gin.Context) {
	var req service.PracticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	practice, err := h.practices.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "practice created", practice)
}

// Update godoc
// @Summary Update a practice
// @Tags Practices
// @Accept json
// @Produce json
// @Param id path string true "Practice ID"
// @Param payload body service.PracticeRequest true "Practice payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /practices/{id} [put]
func (h *PracticeHandler) Update(c *gin.Context) {
	var req service.PracticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	practice, err := h.practices.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "practice updated", practice)
}

// Delete godoc
// @Summary Delete a practice
// @Tags Practices
// @Param id path string true "Practice ID"
// @Success 204
// @Security BearerAuth
// @Router /practices/{id} [delete]
func (h *PracticeHandler) Delete(c *gin.Context) {
	if err := h.practices.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AttachTemplate godoc
// @Summary Attach a rubric template to a practice
// @Tags Practices
// @Param id path string true "Practice ID"
// @Param templateId path string true "Template ID"
// @Success 204
// @Security BearerAuth
// @Router /practices/{id}/template/{templateId} [put]
func (h *PracticeHandler) AttachTemplate(c *gin.Context) {
	if err := h.rubrics.AttachTemplateToPractice(c.Request.Context(), c.Param("id"), c.Param("templateId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
