package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsim/simlab-api/internal/models"
	"github.com/clinsim/simlab-api/internal/service"
	"github.com/clinsim/simlab-api/pkg/storage"
)

type videoRepoStub struct {
	videos map[string]*models.Video
}

func (m *videoRepoStub) List(ctx context.Context, filter models.VideoFilter) ([]models.Video, int, error) {
	return nil, 0, nil
}

func (m *videoRepoStub) FindByID(ctx context.Context, id string) (*models.Video, error) {
	if v, ok := m.videos[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *videoRepoStub) FindByName(ctx context.Context, name string) (*models.Video, error) {
	for _, v := range m.videos {
		if v.Name == name {
			cp := *v
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *videoRepoStub) Create(ctx context.Context, video *models.Video) error {
	if video.ID == "" {
		video.ID = "vid-1"
	}
	cp := *video
	m.videos[video.ID] = &cp
	return nil
}

func (m *videoRepoStub) AttachSimulation(ctx context.Context, videoID, simulationID string) error {
	return nil
}

func (m *videoRepoStub) MarkUnavailableExpired(ctx context.Context, now time.Time) ([]string, error) {
	return nil, nil
}

func (m *videoRepoStub) Delete(ctx context.Context, id string) error {
	delete(m.videos, id)
	return nil
}

type simReaderStub struct{}

func (simReaderStub) FindByID(ctx context.Context, id string) (*models.Simulation, error) {
	return nil, sql.ErrNoRows
}

// streamFixture registers one recording and returns a router serving the
// stream endpoint plus a valid playback token for it.
func streamFixture(t *testing.T, content string) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewVideoStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewPlaybackSigner("test-secret", time.Hour)
	repo := &videoRepoStub{videos: make(map[string]*models.Video)}
	videos := service.NewVideoService(repo, simReaderStub{}, store, signer, time.Hour, nil, nil)

	video, err := videos.Register(context.Background(), service.RegisterVideoRequest{Name: "rec.mp4"}, strings.NewReader(content))
	require.NoError(t, err)
	grant, err := videos.PlaybackGrant(context.Background(), video.ID)
	require.NoError(t, err)

	h := NewVideoHandler(videos, service.NewMetricsService())
	r := gin.New()
	r.GET("/videos/stream", h.Stream)
	r.GET("/streaming/video/:title", h.StreamByTitle)
	return r, grant.Token
}

func streamRequest(r *gin.Engine, token, rangeHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/videos/stream?token="+token, nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStreamFullContent(t *testing.T) {
	r, token := streamFixture(t, "0123456789")

	w := streamRequest(r, token, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, "10", w.Header().Get("Content-Length"))
	assert.Equal(t, "0123456789", w.Body.String())
}

func TestStreamPartialContent(t *testing.T) {
	r, token := streamFixture(t, "0123456789")

	w := streamRequest(r, token, "bytes=2-5")
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 2-5/10", w.Header().Get("Content-Range"))
	assert.Equal(t, "4", w.Header().Get("Content-Length"))
	assert.Equal(t, "2345", w.Body.String())
}

func TestStreamOpenEndedRange(t *testing.T) {
	r, token := streamFixture(t, "0123456789")

	w := streamRequest(r, token, "bytes=7-")
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 7-9/10", w.Header().Get("Content-Range"))
	assert.Equal(t, "789", w.Body.String())
}

func TestStreamSuffixRange(t *testing.T) {
	r, token := streamFixture(t, "0123456789")

	w := streamRequest(r, token, "bytes=-3")
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 7-9/10", w.Header().Get("Content-Range"))
	assert.Equal(t, "789", w.Body.String())
}

func TestStreamRangeClampedToSize(t *testing.T) {
	r, token := streamFixture(t, "0123456789")

	w := streamRequest(r, token, "bytes=8-500")
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 8-9/10", w.Header().Get("Content-Range"))
	assert.Equal(t, "89", w.Body.String())
}

func TestStreamUnsatisfiableRange(t *testing.T) {
	r, token := streamFixture(t, "0123456789")

	for _, header := range []string{"bytes=50-60", "bytes=5-2", "bytes=0-3,5-7", "chunks=0-3"} {
		w := streamRequest(r, token, header)
		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code, "header %q", header)
		assert.Equal(t, "bytes */10", w.Header().Get("Content-Range"), "header %q", header)
	}
}

func TestStreamByTitleServesFullFile(t *testing.T) {
	r, _ := streamFixture(t, "0123456789")

	req := httptest.NewRequest(http.MethodGet, "/streaming/video/rec.mp4", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "0123456789", w.Body.String())
}

func TestStreamByTitleHonorsRange(t *testing.T) {
	r, _ := streamFixture(t, "0123456789")

	req := httptest.NewRequest(http.MethodGet, "/streaming/video/rec.mp4", nil)
	req.Header.Set("Range", "bytes=0-4")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 0-4/10", w.Header().Get("Content-Range"))
	assert.Equal(t, "01234", w.Body.String())
}

func TestStreamByTitleUnknownRecording(t *testing.T) {
	r, _ := streamFixture(t, "0123456789")

	req := httptest.NewRequest(http.MethodGet, "/streaming/video/missing.mp4", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamInvalidTokenRejected(t *testing.T) {
	r, _ := streamFixture(t, "0123456789")

	w := streamRequest(r, "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestParseByteRange(t *testing.T) {
	start, end, err := parseByteRange("bytes=0-99", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(99), end)

	start, end, err = parseByteRange("bytes=-100", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(900), start)
	assert.Equal(t, int64(999), end)

	start, end, err = parseByteRange("bytes=-5000", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(999), end)

	_, _, err = parseByteRange("bytes=1000-", 1000)
	require.Error(t, err)
}
