// Package surveillance scans stored videos for known identities and turns
// per-frame matches into one consolidated summary per run.
package surveillance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/imaging"
	"github.com/your-org/facewatch/internal/matching"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/resolver"
)

const (
	DefaultFrameSkip           = 5
	DefaultConfidenceThreshold = 0.70
	DefaultCheckpointEvery     = 50
	DefaultFPS                 = 30.0

	frameJPEGQuality = 85
)

// Store persists run state and the per-frame audit trail.
//
// BeginRun atomically moves a pending video to processing. started is false
// when the video exists but was not pending; video then holds its current
// state.
type Store interface {
	BeginRun(ctx context.Context, videoID uuid.UUID) (video *models.Video, started bool, err error)
	Checkpoint(ctx context.Context, videoID uuid.UUID, framesProcessed int) error
	AddFrameEvidence(ctx context.Context, ev *models.FrameEvidence) error
	CompleteRun(ctx context.Context, videoID uuid.UUID, stats models.VideoStats) error
	FailRun(ctx context.Context, videoID uuid.UUID, message string) error
}

// GallerySource provides the gallery snapshot used for a whole run.
type GallerySource interface {
	GallerySnapshot(ctx context.Context) (*matching.Gallery, error)
}

// FrameSource yields decoded frames in order. Next returns io.EOF after the
// last frame.
type FrameSource interface {
	Next() (image.Image, error)
	FPS() float64
	Close() error
}

// Opener opens the stored file behind a video.
type Opener interface {
	Open(ctx context.Context, video *models.Video) (FrameSource, error)
}

type ArtifactStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Alerter receives the consolidated summary once per completed run.
type Alerter interface {
	PublishVideoAlert(ctx context.Context, videoID string, data any) error
}

// Options tune a single run. Zero values select the defaults. A nil
// ConfidenceThreshold selects the default; an explicit 0 accepts every
// match the matcher reports.
type Options struct {
	FrameSkip           int
	ConfidenceThreshold *float64
	CheckpointEvery     int
	DefaultFPS          float64
}

func (o Options) withDefaults() Options {
	if o.FrameSkip < 1 {
		o.FrameSkip = DefaultFrameSkip
	}
	if o.ConfidenceThreshold == nil {
		o.ConfidenceThreshold = Threshold(DefaultConfidenceThreshold)
	}
	if o.CheckpointEvery < 1 {
		o.CheckpointEvery = DefaultCheckpointEvery
	}
	if o.DefaultFPS <= 0 {
		o.DefaultFPS = DefaultFPS
	}
	return o
}

// Merge fills zero fields of o from defaults.
func (o Options) Merge(defaults Options) Options {
	if o.FrameSkip == 0 {
		o.FrameSkip = defaults.FrameSkip
	}
	if o.ConfidenceThreshold == nil {
		o.ConfidenceThreshold = defaults.ConfidenceThreshold
	}
	if o.CheckpointEvery == 0 {
		o.CheckpointEvery = defaults.CheckpointEvery
	}
	if o.DefaultFPS == 0 {
		o.DefaultFPS = defaults.DefaultFPS
	}
	return o
}

// Threshold returns a pointer for Options.ConfidenceThreshold.
func Threshold(v float64) *float64 {
	return &v
}

// RunResult is returned for completed and failed runs alike; on failure it
// carries the progress made before the error.
type RunResult struct {
	VideoID          uuid.UUID          `json:"video_id"`
	Status           models.VideoStatus `json:"status"`
	FramesProcessed  int                `json:"frames_processed"`
	FramesSampled    int                `json:"frames_sampled"`
	TotalFaces       int                `json:"total_faces"`
	UniqueIdentities int                `json:"unique_identities"`
	Matches          []SummaryEntry     `json:"matches"`
	Error            string             `json:"error,omitempty"`
}

// Report is the summary persisted with a completed video.
type Report struct {
	TotalFrames      int            `json:"total_frames"`
	FramesProcessed  int            `json:"frames_processed"`
	FramesSampled    int            `json:"frames_sampled"`
	TotalFaces       int            `json:"total_faces"`
	UniqueIdentities int            `json:"unique_identities"`
	Matches          []SummaryEntry `json:"matches"`
}

// VideoAlert is the consolidated alert for one run.
type VideoAlert struct {
	VideoID     uuid.UUID      `json:"video_id"`
	Filename    string         `json:"filename"`
	Identities  []SummaryEntry `json:"identities"`
	CompletedAt time.Time      `json:"completed_at"`
}

type Pipeline struct {
	store     Store
	gallery   GallerySource
	opener    Opener
	artifacts ArtifactStore
	alerter   Alerter
	model     resolver.ModelService
	resolver  *resolver.Resolver
	defaults  Options
}

// NewPipeline wires a pipeline. artifacts and alerter may be nil.
func NewPipeline(
	store Store,
	gallery GallerySource,
	opener Opener,
	artifacts ArtifactStore,
	alerter Alerter,
	model resolver.ModelService,
	res *resolver.Resolver,
	defaults Options,
) *Pipeline {
	return &Pipeline{
		store:     store,
		gallery:   gallery,
		opener:    opener,
		artifacts: artifacts,
		alerter:   alerter,
		model:     model,
		resolver:  res,
		defaults:  defaults.withDefaults(),
	}
}

// Run scans one video. It fails fast with ErrNotPending when the video is
// not pending. Any error after the run started marks the video failed;
// evidence written so far is kept.
func (p *Pipeline) Run(ctx context.Context, videoID uuid.UUID, opts Options) (*RunResult, error) {
	opts = opts.Merge(p.defaults).withDefaults()

	video, started, err := p.store.BeginRun(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	if !started || video == nil {
		status := models.VideoStatus("unknown")
		if video != nil {
			status = video.Status
		}
		return nil, fmt.Errorf("video %s is %s: %w", videoID, status, ErrNotPending)
	}

	observability.ActiveRuns.Inc()
	defer observability.ActiveRuns.Dec()

	log := slog.With("video_id", videoID)
	log.Info("video run started", "frame_skip", opts.FrameSkip, "confidence_threshold", *opts.ConfidenceThreshold)

	r := &run{
		Pipeline: p,
		video:    video,
		opts:     opts,
		summary:  NewSummary(),
		log:      log,
		result:   &RunResult{VideoID: videoID},
	}

	if err := r.scan(ctx); err != nil {
		return r.fail(ctx, err)
	}
	if err := r.complete(ctx); err != nil {
		return r.fail(ctx, err)
	}
	return r.result, nil
}

// run holds the mutable state of one scan.
type run struct {
	*Pipeline
	video    *models.Video
	opts     Options
	snapshot *matching.Gallery
	summary  *Summary
	fps      float64
	log      *slog.Logger
	result   *RunResult
}

func (r *run) scan(ctx context.Context) error {
	gallery, err := r.gallery.GallerySnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load gallery: %w", err)
	}
	r.snapshot = gallery

	src, err := r.opener.Open(ctx, r.video)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	defer src.Close()

	r.fps = src.FPS()
	if r.fps <= 0 {
		r.fps = r.video.FPS
	}
	if r.fps <= 0 {
		r.fps = r.opts.DefaultFPS
	}

	for frame := 1; ; frame++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled at frame %d: %w", frame, err)
		}

		img, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame %d: %w", frame, err)
		}
		r.result.FramesProcessed = frame

		if frame%r.opts.FrameSkip == 0 {
			if err := r.processFrame(ctx, frame, img); err != nil {
				return fmt.Errorf("frame %d: %w", frame, err)
			}
		}

		if frame%r.opts.CheckpointEvery == 0 {
			if err := r.store.Checkpoint(ctx, r.video.ID, frame); err != nil {
				r.log.Warn("checkpoint failed", "frame", frame, "error", err)
			}
		}
	}
}

func (r *run) processFrame(ctx context.Context, frame int, img image.Image) error {
	r.result.FramesSampled++
	observability.FramesSampled.Inc()

	start := time.Now()
	regions, err := r.model.DetectFaces(ctx, img)
	if err != nil {
		r.log.Warn("detect failed, frame skipped", "frame", frame, "error", err)
		return nil
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if len(regions) == 0 {
		return nil
	}
	observability.FacesDetected.WithLabelValues(observability.SourceVideo).Add(float64(len(regions)))

	faces, err := r.resolver.ResolveFaces(ctx, img, regions, r.snapshot)
	if err != nil {
		return err
	}
	r.result.TotalFaces += len(faces)

	accepted := make([]*matching.MatchResult, len(faces))
	anyMatch := false
	for i, f := range faces {
		if best, ok := f.Best(); ok && best.Confidence >= *r.opts.ConfidenceThreshold {
			accepted[i] = &best
			anyMatch = true
		}
	}

	frameKey := ""
	if anyMatch {
		frameKey = r.storeFrame(ctx, frame, img)
	}

	ts := Timestamp(frame, r.fps)
	for i, f := range faces {
		ev := &models.FrameEvidence{
			ID:            uuid.New(),
			VideoID:       r.video.ID,
			FrameNumber:   frame,
			Timestamp:     ts,
			FacesDetected: len(regions),
			Region:        f.Region,
		}
		if m := accepted[i]; m != nil {
			id := m.IdentityID
			ev.IdentityID = &id
			ev.Confidence = m.Confidence
			ev.FrameKey = frameKey
		}
		if err := r.store.AddFrameEvidence(ctx, ev); err != nil {
			return fmt.Errorf("save evidence: %w", err)
		}
	}

	// An identity seen on several faces of one frame counts once, at its
	// best confidence.
	perFrame := make(map[uuid.UUID]*matching.MatchResult)
	var order []uuid.UUID
	for _, m := range accepted {
		if m == nil {
			continue
		}
		observability.FacesMatched.WithLabelValues(observability.SourceVideo).Inc()
		prev, ok := perFrame[m.IdentityID]
		if !ok {
			order = append(order, m.IdentityID)
		}
		if !ok || m.Confidence > prev.Confidence {
			perFrame[m.IdentityID] = m
		}
	}
	for _, id := range order {
		m := perFrame[id]
		r.summary.RecordMatch(m.IdentityID, m.Name, m.Confidence, frame, ts)
	}
	return nil
}

// storeFrame uploads the frame image and returns its key, or "" on failure.
func (r *run) storeFrame(ctx context.Context, frame int, img image.Image) string {
	if r.artifacts == nil {
		return ""
	}
	data, err := imaging.EncodeJPEG(img, frameJPEGQuality)
	if err != nil {
		r.log.Warn("encode frame", "frame", frame, "error", err)
		return ""
	}
	key := FrameKey(r.video.ID, frame)
	if err := r.artifacts.PutObject(ctx, key, data, "image/jpeg"); err != nil {
		r.log.Warn("save frame", "frame", frame, "error", err)
		return ""
	}
	return key
}

func (r *run) complete(ctx context.Context) error {
	entries := r.summary.Entries()
	r.result.Matches = entries
	r.result.UniqueIdentities = len(entries)

	report, err := json.Marshal(Report{
		TotalFrames:      r.video.TotalFrames,
		FramesProcessed:  r.result.FramesProcessed,
		FramesSampled:    r.result.FramesSampled,
		TotalFaces:       r.result.TotalFaces,
		UniqueIdentities: len(entries),
		Matches:          entries,
	})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	err = r.store.CompleteRun(ctx, r.video.ID, models.VideoStats{
		FramesProcessed:  r.result.FramesProcessed,
		TotalFaces:       r.result.TotalFaces,
		UniqueIdentities: len(entries),
		SummaryReport:    report,
	})
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	r.result.Status = models.VideoCompleted
	observability.VideoRuns.WithLabelValues(string(models.VideoCompleted)).Inc()

	r.log.Info("video run completed",
		"frames", r.result.FramesProcessed,
		"sampled", r.result.FramesSampled,
		"faces", r.result.TotalFaces,
		"identities", len(entries),
	)

	if len(entries) == 0 || r.alerter == nil {
		return nil
	}
	alert := VideoAlert{
		VideoID:     r.video.ID,
		Filename:    r.video.Filename,
		Identities:  entries,
		CompletedAt: time.Now().UTC(),
	}
	if err := r.alerter.PublishVideoAlert(ctx, r.video.ID.String(), alert); err != nil {
		r.log.Error("publish video alert", "error", err)
		return nil
	}
	observability.AlertsPublished.WithLabelValues(observability.SourceVideo).Inc()
	return nil
}

func (r *run) fail(ctx context.Context, cause error) (*RunResult, error) {
	r.result.Status = models.VideoFailed
	r.result.Error = cause.Error()
	observability.VideoRuns.WithLabelValues(string(models.VideoFailed)).Inc()
	r.log.Error("video run failed", "frames", r.result.FramesProcessed, "error", cause)

	if err := r.store.FailRun(context.WithoutCancel(ctx), r.video.ID, cause.Error()); err != nil {
		r.log.Error("mark run failed", "error", err)
	}
	return r.result, cause
}

// Timestamp converts a 1-based frame number to seconds, rounded to 10ms.
func Timestamp(frame int, fps float64) float64 {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return math.Round(float64(frame)/fps*100) / 100
}

// FrameKey is the object key of a stored matched frame.
func FrameKey(videoID uuid.UUID, frame int) string {
	return fmt.Sprintf("videos/%s/frames/%06d.jpg", videoID, frame)
}
