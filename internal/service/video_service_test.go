package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsim/simlab-api/internal/models"
	appErrors "github.com/clinsim/simlab-api/pkg/errors"
	"github.com/clinsim/simlab-api/pkg/storage"
)

type mockVideoRepo struct {
	videos  map[string]*models.Video
	expired []string // storage paths returned by MarkUnavailableExpired
	deleted []string
}

func newMockVideoRepo() *mockVideoRepo {
	return &mockVideoRepo{videos: make(map[string]*models.Video)}
}

func (m *mockVideoRepo) List(ctx context.Context, filter models.VideoFilter) ([]models.Video, int, error) {
	var out []models.Video
	for _, v := range m.videos {
		out = append(out, *v)
	}
	return out, len(out), nil
}

func (m *mockVideoRepo) FindByID(ctx context.Context, id string) (*models.Video, error) {
	if v, ok := m.videos[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockVideoRepo) FindByName(ctx context.Context, name string) (*models.Video, error) {
	for _, v := range m.videos {
		if v.Name == name {
			cp := *v
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockVideoRepo) Create(ctx context.Context, video *models.Video) error {
	if video.ID == "" {
		video.ID = fmt.Sprintf("vid-%d", len(m.videos)+1)
	}
	cp := *video
	m.videos[video.ID] = &cp
	return nil
}

func (m *mockVideoRepo) AttachSimulation(ctx context.Context, videoID, simulationID string) error {
	if v, ok := m.videos[videoID]; ok {
		v.SimulationID = &simulationID
	}
	return nil
}

func (m *mockVideoRepo) MarkUnavailableExpired(ctx context.Context, now time.Time) ([]string, error) {
	return m.expired, nil
}

func (m *mockVideoRepo) Delete(ctx context.Context, id string) error {
	delete(m.videos, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockVideoSimulationReader struct {
	items map[string]*models.Simulation
}

func (m *mockVideoSimulationReader) FindByID(ctx context.Context, id string) (*models.Simulation, error) {
	if s, ok := m.items[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func newVideoServiceForTest(t *testing.T, repo *mockVideoRepo) *VideoService {
	t.Helper()
	store, err := storage.NewVideoStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewPlaybackSigner("test-secret", time.Hour)
	sims := &mockVideoSimulationReader{items: map[string]*models.Simulation{
		"sim-1": {ID: "sim-1"},
	}}
	return NewVideoService(repo, sims, store, signer, 90*24*time.Hour, nil, nil)
}

func TestRegisterVideoStoresFileAndMetadata(t *testing.T) {
	repo := newMockVideoRepo()
	svc := newVideoServiceForTest(t, repo)

	content := strings.NewReader("fake mp4 bytes")
	video, err := svc.Register(context.Background(), RegisterVideoRequest{
		Name:         "sim-1-recording.mp4",
		DurationSecs: 300,
	}, content)
	require.NoError(t, err)
	assert.Equal(t, int64(14), video.SizeBytes)
	assert.True(t, video.Available)
	assert.NotEmpty(t, video.StorageURL)
	assert.True(t, video.ExpirationDate.After(time.Now()))
}

func TestRegisterVideoIdempotentOnName(t *testing.T) {
	repo := newMockVideoRepo()
	svc := newVideoServiceForTest(t, repo)

	first, err := svc.Register(context.Background(), RegisterVideoRequest{Name: "rec.mp4"}, strings.NewReader("abc"))
	require.NoError(t, err)

	second, err := svc.Register(context.Background(), RegisterVideoRequest{Name: "rec.mp4"}, strings.NewReader("different"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.videos, 1)
}

func TestRegisterVideoUnknownSimulationRejected(t *testing.T) {
	repo := newMockVideoRepo()
	svc := newVideoServiceForTest(t, repo)

	missing := "sim-missing"
	_, err := svc.Register(context.Background(), RegisterVideoRequest{
		Name:         "rec.mp4",
		SimulationID: &missing,
	}, strings.NewReader("abc"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPlaybackGrantAndResolveRoundTrip(t *testing.T) {
	repo := newMockVideoRepo()
	svc := newVideoServiceForTest(t, repo)

	video, err := svc.Register(context.Background(), RegisterVideoRequest{Name: "rec.mp4"}, strings.NewReader("abc"))
	require.NoError(t, err)

	grant, err := svc.PlaybackGrant(context.Background(), video.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)

	resolved, path, err := svc.ResolvePlayback(context.Background(), grant.Token)
	require.NoError(t, err)
	assert.Equal(t, video.ID, resolved.ID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestPlaybackGrantRejectedForUnavailableVideo(t *testing.T) {
	repo := newMockVideoRepo()
	svc := newVideoServiceForTest(t, repo)

	repo.videos["vid-1"] = &models.Video{
		ID:             "vid-1",
		Name:           "old.mp4",
		Available:      false,
		ExpirationDate: time.Now().Add(time.Hour),
	}
	_, err := svc.PlaybackGrant(context.Background(), "vid-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIllegalState.Code, appErrors.FromError(err).Code)
}

func TestPlaybackGrantRejectedPastRetention(t *testing.T) {
	repo := newMockVideoRepo()
	svc := newVideoServiceForTest(t, repo)

	repo.videos["vid-1"] = &models.Video{
		ID:             "vid-1",
		Name:           "old.mp4",
		Available:      true,
		ExpirationDate: time.Now().Add(-time.Hour),
	}
	_, err := svc.PlaybackGrant(context.Background(), "vid-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIllegalState.Code, appErrors.FromError(err).Code)
}

func TestResolvePlaybackRejectsTamperedToken(t *testing.T) {
	repo := newMockVideoRepo()
	svc := newVideoServiceForTest(t, repo)

	video, err := svc.Register(context.Background(), RegisterVideoRequest{Name: "rec.mp4"}, strings.NewReader("abc"))
	require.NoError(t, err)
	grant, err := svc.PlaybackGrant(context.Background(), video.ID)
	require.NoError(t, err)

	_, _, err = svc.ResolvePlayback(context.Background(), grant.Token+"x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestSweepExpiredDeletesFiles(t *testing.T) {
	repo := newMockVideoRepo()
	svc := newVideoServiceForTest(t, repo)

	video, err := svc.Register(context.Background(), RegisterVideoRequest{Name: "rec.mp4"}, strings.NewReader("abc"))
	require.NoError(t, err)
	repo.expired = []string{video.StorageURL}

	count, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, _, err = svc.ResolvePlayback(context.Background(), "bogus")
	require.Error(t, err)
}
