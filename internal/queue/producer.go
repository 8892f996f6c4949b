package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facewatch/internal/models"
)

const (
	VideosStreamName  = "VIDEOS"
	VideosSubjectBase = "videos"
	AlertsStreamName  = "ALERTS"
	AlertsSubjectBase = "alerts"
)

// Alert kinds, used as the second subject token.
const (
	AlertKindVideo = "video"
	AlertKindImage = "image"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := connect(natsURL)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

func connect(natsURL string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        VideosStreamName,
			Subjects:    []string{VideosSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Duplicates:  10 * time.Minute,
			Description: "Video processing jobs",
		},
		{
			Name:        AlertsStreamName,
			Subjects:    []string{AlertsSubjectBase + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      7 * 24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Description: "Consolidated identity alerts",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// ErrDuplicateJob is returned when a run for the same video was already
// enqueued within the stream's dedupe window.
var ErrDuplicateJob = errors.New("video job already queued")

// PublishVideoJob enqueues a processing run. Repeated requests for the same
// video within the dedupe window collapse into one message and return
// ErrDuplicateJob.
func (p *Producer) PublishVideoJob(ctx context.Context, job models.VideoJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal video job: %w", err)
	}

	subject := VideoSubject(job.VideoID.String())
	ack, err := p.js.Publish(ctx, subject, payload, jetstream.WithMsgID(JobMsgID(job.VideoID.String())))
	if err != nil {
		return fmt.Errorf("publish video job: %w", err)
	}
	if ack.Duplicate {
		return fmt.Errorf("video %s: %w", job.VideoID, ErrDuplicateJob)
	}
	return nil
}

// PublishVideoAlert publishes the consolidated summary of a video run.
func (p *Producer) PublishVideoAlert(ctx context.Context, videoID string, data any) error {
	return p.publishAlert(ctx, AlertKindVideo, videoID, data)
}

// PublishImageAlert publishes the matches of a resolved still image.
func (p *Producer) PublishImageAlert(ctx context.Context, requestID string, data any) error {
	return p.publishAlert(ctx, AlertKindImage, requestID, data)
}

func (p *Producer) publishAlert(ctx context.Context, kind, id string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	_, err = p.js.Publish(ctx, AlertSubject(kind, id), payload, jetstream.WithMsgID(kind+"-"+id))
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending jobs in the VIDEOS stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, VideosStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
