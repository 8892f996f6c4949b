package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/internal/surveillance"
	"github.com/your-org/facewatch/pkg/dto"
)

const inspectURLExpiry = 15 * time.Minute

// VideoInspector reads container metadata from a URL or path.
type VideoInspector func(ctx context.Context, src string) (models.VideoMeta, error)

// JobPublisher enqueues processing runs for the worker.
type JobPublisher interface {
	PublishVideoJob(ctx context.Context, job models.VideoJob) error
}

// VideoStore is the video record and evidence persistence the handler needs.
type VideoStore interface {
	CreateVideo(ctx context.Context, v *models.Video) error
	GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error)
	ListVideos(ctx context.Context, status models.VideoStatus, limit, offset int) ([]models.Video, int, error)
	DeleteVideo(ctx context.Context, id uuid.UUID) error
	ListFrameEvidence(ctx context.Context, videoID uuid.UUID, matchedOnly bool, limit, offset int) ([]models.FrameEvidence, int, error)
}

type VideoHandler struct {
	db          VideoStore
	minio       *storage.MinIOStore
	jobs        JobPublisher
	pipeline    *surveillance.Pipeline
	inspect     VideoInspector
	maxUploadMB int
}

// NewVideoHandler wires the video endpoints. pipeline may be nil, which
// disables synchronous runs.
func NewVideoHandler(
	db VideoStore,
	minio *storage.MinIOStore,
	jobs JobPublisher,
	pipeline *surveillance.Pipeline,
	inspect VideoInspector,
	maxUploadMB int,
) *VideoHandler {
	return &VideoHandler{db: db, minio: minio, jobs: jobs, pipeline: pipeline, inspect: inspect, maxUploadMB: maxUploadMB}
}

// Upload stores a video file and registers it as pending.
func (h *VideoHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "video file required"})
		return
	}
	defer file.Close()

	if !allowedVideo(header.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported video type"})
		return
	}
	if h.maxUploadMB > 0 && header.Size > int64(h.maxUploadMB)<<20 {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "video too large"})
		return
	}

	ctx := c.Request.Context()
	id := uuid.New()
	key := storage.VideoKey(id, header.Filename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := h.minio.PutStream(ctx, key, file, header.Size, contentType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store video failed"})
		return
	}

	meta, err := h.inspectStored(ctx, key)
	if err != nil {
		slog.Warn("inspect uploaded video failed", "video_id", id, "error", err)
		_ = h.minio.DeleteObject(ctx, key)
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read video"})
		return
	}

	video := &models.Video{
		ID:              id,
		Filename:        header.Filename,
		ObjectKey:       key,
		FPS:             meta.FPS,
		TotalFrames:     meta.TotalFrames,
		Width:           meta.Width,
		Height:          meta.Height,
		DurationSeconds: meta.DurationSeconds,
	}
	if err := h.db.CreateVideo(ctx, video); err != nil {
		_ = h.minio.DeleteObject(ctx, key)
		respondError(c, err)
		return
	}

	slog.Info("video uploaded", "video_id", id, "filename", header.Filename, "frames", meta.TotalFrames, "fps", meta.FPS)
	c.JSON(http.StatusCreated, videoResponse(video))
}

func (h *VideoHandler) inspectStored(ctx context.Context, key string) (models.VideoMeta, error) {
	u, err := h.minio.PresignedGetURL(ctx, key, inspectURLExpiry)
	if err != nil {
		return models.VideoMeta{}, err
	}
	return h.inspect(ctx, u)
}

func (h *VideoHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	status := models.VideoStatus(c.Query("status"))

	videos, total, err := h.db.ListVideos(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.VideoResponse, 0, len(videos))
	for i := range videos {
		resp = append(resp, videoResponse(&videos[i]))
	}
	c.JSON(http.StatusOK, dto.VideoListResponse{Videos: resp, Total: total})
}

func (h *VideoHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "video")
	if !ok {
		return
	}

	video, err := h.db.GetVideo(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if video == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}
	c.JSON(http.StatusOK, videoResponse(video))
}

// Delete removes a video that is not being processed, with its stored file
// and frame artifacts.
func (h *VideoHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "video")
	if !ok {
		return
	}

	if err := h.db.DeleteVideo(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	if err := h.minio.DeletePrefix(c.Request.Context(), storage.VideoPrefix(id)); err != nil {
		slog.Warn("delete video objects failed", "video_id", id, "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Process starts a run. By default the run is queued for a worker;
// ?sync=true runs it inline and returns the result.
func (h *VideoHandler) Process(c *gin.Context) {
	id, ok := parseID(c, "id", "video")
	if !ok {
		return
	}

	var req dto.ProcessVideoRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	ctx := c.Request.Context()

	video, err := h.db.GetVideo(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if video == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}
	if !surveillance.CanStart(video.Status) {
		c.JSON(http.StatusConflict, gin.H{"error": "video is " + string(video.Status)})
		return
	}

	if c.Query("sync") == "true" {
		h.runSync(c, id, req)
		return
	}

	job := models.VideoJob{
		VideoID:             id,
		FrameSkip:           req.FrameSkip,
		ConfidenceThreshold: req.ConfidenceThreshold,
		RequestedAt:         time.Now().UTC(),
	}
	if err := h.jobs.PublishVideoJob(ctx, job); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "video_id": id})
}

// runSync reports a failed run with its partial result.
func (h *VideoHandler) runSync(c *gin.Context, id uuid.UUID, req dto.ProcessVideoRequest) {
	if h.pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "synchronous processing disabled"})
		return
	}

	result, err := h.pipeline.Run(c.Request.Context(), id, surveillance.Options{
		FrameSkip:           req.FrameSkip,
		ConfidenceThreshold: req.ConfidenceThreshold,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case result != nil && !errors.Is(err, surveillance.ErrNotPending):
		c.JSON(http.StatusInternalServerError, result)
	default:
		respondError(c, err)
	}
}

// Frames lists the evidence audit trail of a video.
func (h *VideoHandler) Frames(c *gin.Context) {
	id, ok := parseID(c, "id", "video")
	if !ok {
		return
	}
	var q dto.FrameQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	frames, total, err := h.db.ListFrameEvidence(c.Request.Context(), id, q.Matched, q.Limit, q.Offset)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.FrameEvidenceResponse, 0, len(frames))
	for _, f := range frames {
		resp = append(resp, dto.FrameEvidenceResponse{
			ID:            f.ID,
			FrameNumber:   f.FrameNumber,
			Timestamp:     f.Timestamp,
			FacesDetected: f.FacesDetected,
			IdentityID:    f.IdentityID,
			Confidence:    f.Confidence,
			Region:        f.Region,
			FrameKey:      f.FrameKey,
		})
	}
	c.JSON(http.StatusOK, dto.FrameEvidenceListResponse{Frames: resp, Total: total})
}

func videoResponse(v *models.Video) dto.VideoResponse {
	return dto.VideoResponse{
		ID:               v.ID,
		Filename:         v.Filename,
		Status:           string(v.Status),
		FPS:              v.FPS,
		TotalFrames:      v.TotalFrames,
		Width:            v.Width,
		Height:           v.Height,
		DurationSeconds:  v.DurationSeconds,
		FramesProcessed:  v.FramesProcessed,
		Progress:         progress(v),
		TotalFaces:       v.TotalFaces,
		UniqueIdentities: v.UniqueIdentities,
		SummaryReport:    v.SummaryReport,
		ErrorMessage:     v.ErrorMessage,
		StartedAt:        formatTimePtr(v.StartedAt),
		CompletedAt:      formatTimePtr(v.CompletedAt),
		CreatedAt:        formatTime(v.CreatedAt),
	}
}

// progress is the processed share of a video in percent, one decimal.
func progress(v *models.Video) float64 {
	if v.Status == models.VideoCompleted {
		return 100
	}
	if v.TotalFrames <= 0 {
		return 0
	}
	p := float64(v.FramesProcessed) / float64(v.TotalFrames) * 100
	if p > 100 {
		p = 100
	}
	return float64(int(p*10+0.5)) / 10
}
