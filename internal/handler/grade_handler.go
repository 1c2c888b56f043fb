package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinsim/simlab-api/internal/service"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
	"github.com/clinsim/simlab-api/pkg/response"
)

// GradeHandler exposes class grading endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// UpdatePercentages godoc
// @Summary Redistribute grade weights across class practices
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.UpdatePercentagesRequest true "Percentage entries"
// @Success 204
// @Security BearerAuth
// @Router /classes/{id}/percentages [put]
func (h *GradeHandler) UpdatePercentages(c *gin.Context) {
	var req service.UpdatePercentagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.grades.UpdateClassPercentages(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// FinalGrades godoc
// @Summary Compute weighted final grades for a class
// @Tags Grades
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/grades [get]
func (h *GradeHandler) FinalGrades(c *gin.Context) {
	report, err := h.grades.FinalGradesByClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "final grades computed", report)
}

// Export godoc
// @Summary Export class grades as CSV or PDF
// @Tags Grades
// @Produce octet-stream
// @Param id path string true "Class ID"
// @Param format query string false "csv or pdf, defaults to csv"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /classes/{id}/grades/export [get]
func (h *GradeHandler) Export(c *gin.Context) {
	classID := c.Param("id")
	format := c.DefaultQuery("format", "csv")

	switch format {
	case "csv":
		out, err := h.grades.ExportFinalGradesCSV(c.Request.Context(), classID)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=grades-%s.csv", classID))
		c.Data(http.StatusOK, "text/csv", out)
	case "pdf":
		out, err := h.grades.ExportFinalGradesPDF(c.Request.Context(), classID)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=grades-%s.pdf", classID))
		c.Data(http.StatusOK, "application/pdf", out)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
	}
}
