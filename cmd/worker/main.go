package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/engine"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/queue"
	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/internal/surveillance"
	"github.com/your-org/facewatch/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facewatch video worker",
		"workers", cfg.Video.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
	)

	if err := vision.InitRuntime(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer vision.DestroyRuntime()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	eng, err := engine.New(cfg, db, minioStore, producer)
	if err != nil {
		slog.Error("init engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeVideoJobs(ctx, "video-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var job models.VideoJob
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			slog.Error("unmarshal video job", "error", err)
			return nil // Don't retry on unmarshal errors
		}
		return handleJob(ctx, eng.Pipeline, job)
	}, cfg.Video.WorkerCount)
	if err != nil {
		slog.Error("start video job consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}

// handleJob runs one video. Only failures to start a run are retried; a run
// that started and failed is already recorded on the video.
func handleJob(ctx context.Context, p *surveillance.Pipeline, job models.VideoJob) error {
	result, err := p.Run(ctx, job.VideoID, surveillance.Options{
		FrameSkip:           job.FrameSkip,
		ConfidenceThreshold: job.ConfidenceThreshold,
	})
	switch {
	case err == nil:
		slog.Info("video job done",
			"video_id", job.VideoID,
			"frames", result.FramesProcessed,
			"identities", result.UniqueIdentities,
			"queued_for", time.Since(job.RequestedAt).Round(time.Second).String(),
		)
		return nil
	case errors.Is(err, surveillance.ErrNotPending), errors.Is(err, storage.ErrNotFound):
		slog.Info("skip video job", "video_id", job.VideoID, "reason", err)
		return nil
	case result != nil:
		return nil
	default:
		return fmt.Errorf("run video %s: %w", job.VideoID, err)
	}
}
