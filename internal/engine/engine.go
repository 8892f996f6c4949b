// Package engine assembles the recognition stack from configuration.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/ingest"
	"github.com/your-org/facewatch/internal/matching"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/opencv"
	"github.com/your-org/facewatch/internal/quality"
	"github.com/your-org/facewatch/internal/queue"
	"github.com/your-org/facewatch/internal/resolver"
	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/internal/surveillance"
	"github.com/your-org/facewatch/internal/vision"
)

// Inspector reads container metadata from a URL or path.
type Inspector func(ctx context.Context, src string) (models.VideoMeta, error)

type Engine struct {
	Model    *vision.ONNXService
	Assessor *quality.Assessor
	Matcher  *matching.Matcher
	Resolver *resolver.Resolver
	Pipeline *surveillance.Pipeline
	Inspect  Inspector

	eyes *opencv.CascadeEyeDetector
}

// New loads the models and wires the resolver and the video pipeline. The
// ONNX runtime must already be initialised.
func New(cfg *config.Config, db *storage.PostgresStore, minio *storage.MinIOStore, producer *queue.Producer) (*Engine, error) {
	metric, err := matching.ParseMetric(cfg.Vision.Metric)
	if err != nil {
		return nil, err
	}

	model, err := vision.NewONNXService(cfg.Vision.ModelsDir, cfg.Vision.DetectionThreshold)
	if err != nil {
		return nil, fmt.Errorf("init model service: %w", err)
	}

	e := &Engine{Model: model}

	var eyes quality.EyeDetector
	if d, err := opencv.NewCascadeEyeDetector(cfg.Vision.EyeCascade); err != nil {
		slog.Warn("eye cascade unavailable, frontality will be neutral", "error", err)
	} else {
		e.eyes = d
		eyes = d
	}

	e.Assessor = quality.NewAssessor(opencv.Measurer{}, eyes)
	e.Matcher = matching.NewMatcher(metric, cfg.Vision.BaseThreshold, cfg.Vision.EmbeddingDim)
	e.Resolver = resolver.New(model, e.Matcher, e.Assessor, cfg.Vision.Padding)

	var opener surveillance.Opener
	switch strings.ToLower(cfg.Video.Decoder) {
	case "ffmpeg":
		opener = ingest.NewOpener(minio)
		e.Inspect = ingest.Inspect
	default:
		opener = opencv.NewOpener(minio)
		e.Inspect = func(_ context.Context, src string) (models.VideoMeta, error) {
			return opencv.Inspect(src)
		}
	}

	e.Pipeline = surveillance.NewPipeline(db, db, opener, minio, producer, model, e.Resolver, surveillance.Options{
		FrameSkip:           cfg.Video.FrameSkip,
		ConfidenceThreshold: cfg.Video.ConfidenceThreshold,
		CheckpointEvery:     cfg.Video.CheckpointEvery,
		DefaultFPS:          cfg.Video.DefaultFPS,
	})

	slog.Info("recognition engine ready",
		"metric", metric,
		"base_threshold", e.Matcher.BaseThreshold(),
		"decoder", cfg.Video.Decoder,
	)
	return e, nil
}

func (e *Engine) Close() {
	if e.eyes != nil {
		_ = e.eyes.Close()
	}
	e.Model.Close()
}
