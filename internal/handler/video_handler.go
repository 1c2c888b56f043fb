package handler

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clinsim/simlab-api/internal/models"
	"github.com/clinsim/simlab-api/internal/service"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
	"github.com/clinsim/simlab-api/pkg/response"
)

// VideoHandler exposes recording metadata and the streaming endpoint.
type VideoHandler struct {
	videos  *service.VideoService
	metrics *service.MetricsService
}

// NewVideoHandler constructs VideoHandler.
func NewVideoHandler(videos *service.VideoService, metrics *service.MetricsService) *VideoHandler {
	return &VideoHandler{videos: videos, metrics: metrics}
}

// List godoc
// @Summary List videos
// @Tags Videos
// @Produce json
// @Param simulationId query string false "Filter by simulation"
// @Param available query bool false "Filter by availability"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /videos [get]
func (h *VideoHandler) List(c *gin.Context) {
	var filter models.VideoFilter
	filter.SimulationID = c.Query("simulationId")
	if available := c.Query("available"); available != "" {
		v := available == "true"
		filter.Available = &v
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	videos, pagination, err := h.videos.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "videos retrieved", videos, pagination)
}

// Get godoc
// @Summary Get video metadata
// @Tags Videos
// @Produce json
// @Param id path string true "Video ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /videos/{id} [get]
func (h *VideoHandler) Get(c *gin.Context) {
	video, err := h.videos.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "video retrieved", video)
}

// Register godoc
// @Summary Ingest a recording from the lab recorder
// @Tags Videos
// @Accept mpfd
// @Produce json
// @Param name formData string true "Recording name"
// @Param duration formData int false "Duration in seconds"
// @Param simulationId formData string false "Linked simulation"
// @Param file formData file true "Recording file"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /videos [post]
func (h *VideoHandler) Register(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing recording file"))
		return
	}

	req := service.RegisterVideoRequest{Name: c.PostForm("name")}
	if duration := c.PostForm("duration"); duration != "" {
		if secs, err := strconv.Atoi(duration); err == nil {
			req.DurationSecs = secs
		}
	}
	if simID := c.PostForm("simulationId"); simID != "" {
		req.SimulationID = &simID
	}

	src, err := file.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer src.Close() //nolint:errcheck

	video, err := h.videos.Register(c.Request.Context(), req, src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "video registered", video)
}

// AttachSimulation godoc
// @Summary Link a video to a simulation
// @Tags Videos
// @Param id path string true "Video ID"
// @Param simulationId path string true "Simulation ID"
// @Success 204
// @Security BearerAuth
// @Router /videos/{id}/simulation/{simulationId} [put]
func (h *VideoHandler) AttachSimulation(c *gin.Context) {
	if err := h.videos.AttachSimulation(c.Request.Context(), c.Param("id"), c.Param("simulationId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// PlaybackGrant godoc
// @Summary Issue a signed playback token
// @Tags Videos
// @Produce json
// @Param id path string true "Video ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /videos/{id}/playback [post]
func (h *VideoHandler) PlaybackGrant(c *gin.Context) {
	grant, err := h.videos.PlaybackGrant(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "playback granted", grant)
}

// Stream godoc
// @Summary Stream a video with HTTP Range support
// @Tags Videos
// @Produce octet-stream
// @Param token query string true "Signed playback token"
// @Success 200 {file} binary
// @Success 206 {file} binary
// @Router /videos/stream [get]
func (h *VideoHandler) Stream(c *gin.Context) {
	_, path, err := h.videos.ResolvePlayback(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.serveVideoFile(c, path)
}

// StreamByTitle godoc
// @Summary Stream a video by recording name with HTTP Range support
// @Tags Videos
// @Produce octet-stream
// @Param title path string true "Recording name"
// @Success 200 {file} binary
// @Success 206 {file} binary
// @Security BearerAuth
// @Router /streaming/video/{title} [get]
func (h *VideoHandler) StreamByTitle(c *gin.Context) {
	_, path, err := h.videos.ResolveByTitle(c.Request.Context(), c.Param("title"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.serveVideoFile(c, path)
}

func (h *VideoHandler) serveVideoFile(c *gin.Context, path string) {
	file, err := os.Open(path)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "video file not found"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat video file"))
		return
	}
	size := info.Size()

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", "video/mp4")

	rangeHeader := c.GetHeader("Range")
	if rangeHeader == "" {
		c.Header("Content-Length", strconv.FormatInt(size, 10))
		c.Status(http.StatusOK)
		n, _ := io.Copy(c.Writer, file)
		h.metrics.RecordVideoBytes(n)
		return
	}

	start, end, err := parseByteRange(rangeHeader, size)
	if err != nil {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seek video file"))
		return
	}

	length := end - start + 1
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	c.Header("Content-Length", strconv.FormatInt(length, 10))
	c.Status(http.StatusPartialContent)
	n, _ := io.CopyN(c.Writer, file, length)
	h.metrics.RecordVideoBytes(n)
}

// parseByteRange interprets a single-range "bytes=start-end" header against
// the file size. Suffix ranges ("bytes=-500") and open ends ("bytes=100-")
// are supported; multipart ranges are not.
func parseByteRange(header string, size int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("unsupported range %q", header)
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}

	if startStr == "" {
		// Suffix range: the last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("malformed suffix range %q", header)
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, fmt.Errorf("range start out of bounds in %q", header)
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, fmt.Errorf("range end out of bounds in %q", header)
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, nil
}
