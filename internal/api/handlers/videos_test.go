package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/queue"
)

type memVideos struct {
	videos map[uuid.UUID]*models.Video
}

func (m *memVideos) CreateVideo(_ context.Context, v *models.Video) error {
	m.videos[v.ID] = v
	return nil
}

func (m *memVideos) GetVideo(_ context.Context, id uuid.UUID) (*models.Video, error) {
	return m.videos[id], nil
}

func (m *memVideos) ListVideos(context.Context, models.VideoStatus, int, int) ([]models.Video, int, error) {
	return nil, 0, nil
}

func (m *memVideos) DeleteVideo(_ context.Context, id uuid.UUID) error {
	delete(m.videos, id)
	return nil
}

func (m *memVideos) ListFrameEvidence(context.Context, uuid.UUID, bool, int, int) ([]models.FrameEvidence, int, error) {
	return nil, 0, nil
}

// dedupePublisher acknowledges a video's first run request and reports
// later ones as duplicates, the way the stream's dedupe window does.
type dedupePublisher struct {
	seen map[string]bool
	jobs []models.VideoJob
}

func (p *dedupePublisher) PublishVideoJob(_ context.Context, job models.VideoJob) error {
	id := queue.JobMsgID(job.VideoID.String())
	if p.seen[id] {
		return fmt.Errorf("video %s: %w", job.VideoID, queue.ErrDuplicateJob)
	}
	p.seen[id] = true
	p.jobs = append(p.jobs, job)
	return nil
}

func videoEngine(h *VideoHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/videos/:id/process", h.Process)
	return r
}

func process(r *gin.Engine, id uuid.UUID, query, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/videos/"+id.String()+"/process"+query, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestProcess_RepeatedRequestIsConflict(t *testing.T) {
	id := uuid.New()
	store := &memVideos{videos: map[uuid.UUID]*models.Video{id: {ID: id, Status: models.VideoPending}}}
	pub := &dedupePublisher{seen: map[string]bool{}}
	r := videoEngine(NewVideoHandler(store, nil, pub, nil, nil, 0))

	w := process(r, id, "", `{"confidence_threshold": 0}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = process(r, id, "", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already queued")

	require.Len(t, pub.jobs, 1)
	require.NotNil(t, pub.jobs[0].ConfidenceThreshold)
	assert.Equal(t, 0.0, *pub.jobs[0].ConfidenceThreshold)
}

func TestProcess_Rejects(t *testing.T) {
	pending := uuid.New()
	running := uuid.New()
	store := &memVideos{videos: map[uuid.UUID]*models.Video{
		pending: {ID: pending, Status: models.VideoPending},
		running: {ID: running, Status: models.VideoProcessing},
	}}
	pub := &dedupePublisher{seen: map[string]bool{}}
	r := videoEngine(NewVideoHandler(store, nil, pub, nil, nil, 0))

	tests := []struct {
		name  string
		id    uuid.UUID
		query string
		body  string
		want  int
	}{
		{"unknown video", uuid.New(), "", "", http.StatusNotFound},
		{"already running", running, "", "", http.StatusConflict},
		{"threshold out of range", pending, "", `{"confidence_threshold": 1.5}`, http.StatusBadRequest},
		{"sync without pipeline", pending, "?sync=true", "", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := process(r, tt.id, tt.query, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, pub.jobs)
}
