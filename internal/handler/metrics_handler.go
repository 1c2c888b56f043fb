package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinsim/simlab-api/internal/service"
	"github.com/clinsim/simlab-api/pkg/response"
)

// MetricsHandler exposes the Prometheus scrape endpoint and a liveness probe.
type MetricsHandler struct {
	metrics *service.MetricsService
}

// NewMetricsHandler constructs MetricsHandler.
func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Prometheus serves the scrape endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health godoc
// @Summary Liveness probe
// @Tags Ops
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /health [get]
func (h *MetricsHandler) Health(c *gin.Context) {
	response.JSON(c, http.StatusOK, "ok", gin.H{"status": "up"}, nil)
}

// Ready godoc
// @Summary Readiness check
// @Tags Ops
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /ready [get]
func (h *MetricsHandler) Ready(c *gin.Context) {
	response.JSON(c, http.StatusOK, "ready", gin.H{"status": "ready"}, nil)
}
