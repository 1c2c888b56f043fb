package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/clinsim/simlab-api/internal/models"
	"github.com/clinsim/simlab-api/internal/service"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
	"github.com/clinsim/simlab-api/pkg/response"
)

// CalendarHandler exposes the per-user event feed.
type CalendarHandler struct {
	calendar *service.CalendarService
}

// NewCalendarHandler constructs CalendarHandler.
func NewCalendarHandler(calendar *service.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendar: calendar}
}

// Events godoc
// @Summary Get the caller's calendar feed for a date range
// @Tags Calendar
// @Produce json
// @Param from query string true "Range start (YYYY-MM-DD)"
// @Param to query string true "Range end, inclusive (YYYY-MM-DD)"
// @Param role query string false "Acting role, defaults to the preferred role"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /calendar [get]
func (h *CalendarHandler) Events(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	role := claims.PreferredRole
	if requested := c.Query("role"); requested != "" {
		if !claims.HasRole(models.UserRole(requested)) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "caller does not hold the requested role"))
			return
		}
		role = models.UserRole(requested)
	}

	events, err := h.calendar.EventsForUser(c.Request.Context(), claims.UserID, role, c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "events retrieved", events)
}
