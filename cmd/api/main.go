package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facewatch/internal/api"
	"github.com/your-org/facewatch/internal/api/handlers"
	"github.com/your-org/facewatch/internal/api/ws"
	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/engine"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/queue"
	"github.com/your-org/facewatch/internal/storage"
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

	slog.Info("starting facewatch API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Relay alerts from the ALERTS stream to WebSocket clients
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create alert consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeAlerts(ctx, "api-alerts", func(ctx context.Context, msg jetstream.Msg) error {
		alert, ok := ws.AlertFromSubject(msg.Subject(), msg.Data())
		if !ok {
			slog.Warn("drop malformed alert", "subject", msg.Subject())
			return nil
		}
		hub.Broadcast(alert)
		return nil
	})
	if err != nil {
		slog.Warn("start alert consumer", "error", err)
	}

	// ONNX Runtime backs reference ingestion, search, resolve and sync runs
	if err := vision.InitRuntime(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer vision.DestroyRuntime()

	eng, err := engine.New(cfg, db, minioStore, producer)
	if err != nil {
		slog.Error("init engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	router := api.NewRouter(api.RouterConfig{
		APIKey: cfg.Server.APIKey,
		System: handlers.NewSystemHandler(db, minioStore, producer),
		Identities: handlers.NewIdentityHandler(
			db, minioStore, eng.Model, eng.Assessor, eng.Matcher, cfg.Vision.Padding,
		),
		Resolve:    handlers.NewResolveHandler(db, minioStore, db, producer, eng.Resolver, cfg.Server.AutoVerifyConf),
		Detections: handlers.NewDetectionHandler(db),
		Videos: handlers.NewVideoHandler(
			db, minioStore, producer, eng.Pipeline, handlers.VideoInspector(eng.Inspect), cfg.Server.MaxUploadMB,
		),
		Artifacts: handlers.NewArtifactHandler(minioStore),
		Hub:       hub,
	})

	// Start HTTP server. Uploads and synchronous runs need a long write window.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
