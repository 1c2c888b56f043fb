package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the scheduling domain.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	simulationsScheduled prometheus.Counter
	scheduleConflicts    prometheus.Counter
	gradesPublished      prometheus.Counter
	videoBytesStreamed   prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	simulationsScheduled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulations_scheduled_total",
		Help: "Simulations successfully booked",
	})

	scheduleConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_conflicts_total",
		Help: "Booking attempts rejected for room overlap",
	})

	gradesPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grades_published_total",
		Help: "Simulation grades moved to REGISTERED",
	})

	videoBytesStreamed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "video_bytes_streamed_total",
		Help: "Bytes served by the video streaming endpoint",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		simulationsScheduled, scheduleConflicts, gradesPublished, videoBytesStreamed, goroutines)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
		simulationsScheduled: simulationsScheduled,
		scheduleConflicts:    scheduleConflicts,
		gradesPublished:      gradesPublished,
		videoBytesStreamed:   videoBytesStreamed,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordSimulationsScheduled counts booked simulations.
func (m *MetricsService) RecordSimulationsScheduled(n int) {
	if m == nil {
		return
	}
	m.simulationsScheduled.Add(float64(n))
}

// RecordScheduleConflict counts rejected bookings.
func (m *MetricsService) RecordScheduleConflict() {
	if m == nil {
		return
	}
	m.scheduleConflicts.Inc()
}

// RecordGradePublished counts grade publications.
func (m *MetricsService) RecordGradePublished() {
	if m == nil {
		return
	}
	m.gradesPublished.Inc()
}

// RecordVideoBytes counts bytes served by the streaming endpoint.
func (m *MetricsService) RecordVideoBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.videoBytesStreamed.Add(float64(n))
}
