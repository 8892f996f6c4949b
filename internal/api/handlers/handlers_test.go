package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/internal/imaging"
	"github.com/your-org/facewatch/internal/matching"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/queue"
	"github.com/your-org/facewatch/internal/resolver"
	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/internal/surveillance"
	"github.com/your-org/facewatch/pkg/dto"
)

type fakeModel struct {
	regions []imaging.Region
	embs    []matching.Embedding
	calls   int
}

func (m *fakeModel) DetectFaces(context.Context, image.Image) ([]imaging.Region, error) {
	return m.regions, nil
}

func (m *fakeModel) ExtractEmbedding(context.Context, image.Image) (matching.Embedding, error) {
	e := m.embs[m.calls%len(m.embs)]
	m.calls++
	return e, nil
}

type fakeGallery struct{ g *matching.Gallery }

func (f fakeGallery) GallerySnapshot(context.Context) (*matching.Gallery, error) { return f.g, nil }

type fakeArtifacts struct{ keys []string }

func (a *fakeArtifacts) PutObject(_ context.Context, key string, _ []byte, _ string) error {
	a.keys = append(a.keys, key)
	return nil
}

type fakeAlerter struct {
	ids    []string
	alerts []dto.ImageAlert
	err    error
}

func (a *fakeAlerter) PublishImageAlert(_ context.Context, id string, data any) error {
	a.ids = append(a.ids, id)
	a.alerts = append(a.alerts, data.(dto.ImageAlert))
	return a.err
}

type fakeDetections struct {
	recorded []models.Detection
	err      error
}

func (f *fakeDetections) RecordDetections(_ context.Context, d []models.Detection) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, d...)
	return nil
}

func imageUpload(t *testing.T, field, filename string) (*bytes.Buffer, string) {
	t.Helper()
	return multipartFile(t, field, filename, nil)
}

func multipartImage(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	return multipartFile(t, "image", "face.jpg", fields)
}

func multipartFile(t *testing.T, field, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	data, err := imaging.EncodeJPEG(img, 90)
	require.NoError(t, err)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func resolveEngine(h *ResolveHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/resolve", h.Resolve)
	return r
}

func TestResolve_MatchesPublishesAndStores(t *testing.T) {
	alice := uuid.New()
	g := matching.NewGallery([]matching.ReferenceEntry{
		{ID: uuid.New(), IdentityID: alice, Embedding: matching.Embedding{1, 0}, Quality: 0.9},
	}, map[uuid.UUID]string{alice: "Alice"})

	model := &fakeModel{
		regions: []imaging.Region{{X: 10, Y: 10, W: 50, H: 50}, {X: 100, Y: 100, W: 50, H: 50}},
		embs:    []matching.Embedding{{1, 0}, {0, 1}},
	}
	artifacts := &fakeArtifacts{}
	alerter := &fakeAlerter{}
	res := resolver.New(model, matching.NewMatcher(matching.MetricCosine, 0.40, 2), nil, resolver.DefaultPadding)
	detections := &fakeDetections{}
	h := NewResolveHandler(fakeGallery{g}, artifacts, detections, alerter, res, 0.80)

	body, ct := imageUpload(t, "image", "crowd.jpg")
	req := httptest.NewRequest(http.MethodPost, "/v1/resolve", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	resolveEngine(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.ResolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 2, resp.FacesDetected)
	assert.Equal(t, 1, resp.MatchedFaces)
	require.Len(t, resp.Faces, 2)
	assert.Equal(t, dto.VerificationVerified, resp.Faces[0].Verification)
	assert.Empty(t, resp.Faces[1].Verification)
	assert.Equal(t, storage.ResolvedKey(resp.RequestID), resp.AnnotatedKey)
	assert.Equal(t, []string{resp.AnnotatedKey}, artifacts.keys)

	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, resp.RequestID.String(), alerter.ids[0])
	require.Len(t, alerter.alerts[0].Matches, 1)
	assert.Equal(t, alice, alerter.alerts[0].Matches[0].IdentityID)
	assert.Equal(t, 1, alerter.alerts[0].Matches[0].FaceIndex)

	require.Len(t, detections.recorded, 1)
	d := detections.recorded[0]
	assert.Equal(t, resp.RequestID, d.RequestID)
	assert.Equal(t, alice, d.IdentityID)
	assert.Equal(t, 1, d.FaceIndex)
	assert.Equal(t, models.DetectionVerified, d.Status)
	assert.Equal(t, resp.AnnotatedKey, d.ImageKey)
	require.NotNil(t, resp.Faces[0].DetectionID)
	assert.Equal(t, d.ID, *resp.Faces[0].DetectionID)
	assert.Nil(t, resp.Faces[1].DetectionID)
}

func TestResolve_LowConfidenceDetectionPending(t *testing.T) {
	alice := uuid.New()
	g := matching.NewGallery([]matching.ReferenceEntry{
		{ID: uuid.New(), IdentityID: alice, Embedding: matching.Embedding{1, 0}, Quality: 0.7},
	}, map[uuid.UUID]string{alice: "Alice"})
	// cosine similarity 0.7 to the reference: distance 0.3, confidence 0.7
	model := &fakeModel{
		regions: []imaging.Region{{X: 10, Y: 10, W: 60, H: 60}},
		embs:    []matching.Embedding{{0.7, 0.71414284}},
	}
	detections := &fakeDetections{}
	res := resolver.New(model, matching.NewMatcher(matching.MetricCosine, 0.40, 2), nil, resolver.DefaultPadding)
	h := NewResolveHandler(fakeGallery{g}, nil, detections, nil, res, 0.80)

	body, ct := multipartImage(t, map[string]string{"location": "gate 3", "camera_id": "cam-7"})
	req := httptest.NewRequest(http.MethodPost, "/v1/resolve", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	resolveEngine(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, detections.recorded, 1)
	d := detections.recorded[0]
	assert.Equal(t, models.DetectionPending, d.Status)
	assert.InDelta(t, 0.7, d.Confidence, 1e-3)
	assert.Equal(t, "gate 3", d.Location)
	assert.Equal(t, "cam-7", d.CameraID)
	assert.Empty(t, d.ImageKey)
}

func TestResolve_DetectionLogFailureIs500(t *testing.T) {
	alice := uuid.New()
	g := matching.NewGallery([]matching.ReferenceEntry{
		{ID: uuid.New(), IdentityID: alice, Embedding: matching.Embedding{1, 0}, Quality: 0.9},
	}, nil)
	model := &fakeModel{regions: []imaging.Region{{X: 0, Y: 0, W: 40, H: 40}}, embs: []matching.Embedding{{1, 0}}}
	alerter := &fakeAlerter{}
	res := resolver.New(model, matching.NewMatcher(matching.MetricCosine, 0, 2), nil, 0)
	h := NewResolveHandler(fakeGallery{g}, nil, &fakeDetections{err: errors.New("db down")}, alerter, res, 0.80)

	body, ct := imageUpload(t, "image", "one.jpg")
	req := httptest.NewRequest(http.MethodPost, "/v1/resolve", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	resolveEngine(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, alerter.alerts)
}

func TestResolve_NoMatchNoAlert(t *testing.T) {
	model := &fakeModel{embs: []matching.Embedding{{1, 0}}}
	alerter := &fakeAlerter{}
	res := resolver.New(model, matching.NewMatcher(matching.MetricCosine, 0, 2), nil, 0)
	h := NewResolveHandler(fakeGallery{matching.NewGallery(nil, nil)}, nil, nil, alerter, res, 0.80)

	body, ct := imageUpload(t, "image", "empty.jpg")
	req := httptest.NewRequest(http.MethodPost, "/v1/resolve", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	resolveEngine(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, alerter.alerts)
	assert.Contains(t, w.Body.String(), `"faces_detected":0`)
}

func TestResolve_AlertFailureStillResponds(t *testing.T) {
	alice := uuid.New()
	g := matching.NewGallery([]matching.ReferenceEntry{
		{ID: uuid.New(), IdentityID: alice, Embedding: matching.Embedding{1, 0}, Quality: 0.5},
	}, nil)
	model := &fakeModel{regions: []imaging.Region{{X: 0, Y: 0, W: 40, H: 40}}, embs: []matching.Embedding{{1, 0}}}
	alerter := &fakeAlerter{err: errors.New("nats down")}
	res := resolver.New(model, matching.NewMatcher(matching.MetricCosine, 0, 2), nil, 0)
	h := NewResolveHandler(fakeGallery{g}, nil, nil, alerter, res, 0.80)

	body, ct := imageUpload(t, "image", "one.png")
	req := httptest.NewRequest(http.MethodPost, "/v1/resolve", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	resolveEngine(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, alerter.alerts, 1)
}

func TestResolve_RejectsUnsupportedUpload(t *testing.T) {
	res := resolver.New(&fakeModel{}, matching.NewMatcher(matching.MetricCosine, 0, 2), nil, 0)
	h := NewResolveHandler(fakeGallery{}, nil, nil, nil, res, 0.80)

	body, ct := imageUpload(t, "image", "notes.txt")
	req := httptest.NewRequest(http.MethodPost, "/v1/resolve", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	resolveEngine(h).ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/resolve", nil)
	w = httptest.NewRecorder()
	resolveEngine(h).ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("video x: %w", storage.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("begin run: %w", surveillance.ErrNotPending), http.StatusConflict},
		{fmt.Errorf("video x: %w", queue.ErrDuplicateJob), http.StatusConflict},
		{fmt.Errorf("match: %w", matching.ErrDimensionMismatch), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, tt.err)
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
	}
}

func TestAllowedExtensions(t *testing.T) {
	assert.True(t, allowedImage("a.JPG"))
	assert.True(t, allowedImage("b.webp"))
	assert.False(t, allowedImage("c.tiff"))
	assert.True(t, allowedVideo("d.MP4"))
	assert.True(t, allowedVideo("e.webm"))
	assert.False(t, allowedVideo("f.jpg"))
	assert.False(t, allowedVideo("noext"))
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.0, progress(&models.Video{Status: models.VideoPending}))
	assert.Equal(t, 33.3, progress(&models.Video{Status: models.VideoProcessing, TotalFrames: 300, FramesProcessed: 100}))
	assert.Equal(t, 100.0, progress(&models.Video{Status: models.VideoCompleted}))
	assert.Equal(t, 100.0, progress(&models.Video{Status: models.VideoProcessing, TotalFrames: 10, FramesProcessed: 12}))
}

func TestPrimaryReference(t *testing.T) {
	refs := []models.Reference{
		{ID: uuid.New(), Quality: 0.5},
		{ID: uuid.New(), Quality: 0.9},
		{ID: uuid.New(), Quality: 0.9},
	}
	p := primaryReference(refs)
	require.NotNil(t, p)
	assert.Equal(t, refs[1].ID, p.ID)
	assert.Nil(t, primaryReference(nil))
}

func TestParseID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	_, ok := parseID(c, "id", "video")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
