package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

// jobAckWait bounds how long a worker may go silent before the job is
// redelivered; runs in progress send heartbeats well within it.
const (
	jobAckWait   = 2 * time.Minute
	jobHeartbeat = 30 * time.Second
)

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, err := connect(natsURL)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeVideoJobs starts consuming jobs from the VIDEOS stream.
// workerCount determines how many videos are processed concurrently.
// Handlers return an error only for failures worth a retry.
func (c *Consumer) ConsumeVideoJobs(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	stream, err := c.js.Stream(ctx, VideosStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", VideosStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       jobAckWait,
		MaxDeliver:    3,
		MaxAckPending: workerCount,
		FilterSubject: VideosSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount)

	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch video jobs error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				stop := heartbeat(msg)
				err := handler(ctx, msg)
				stop()
				if err != nil {
					slog.Error("process video job error", "worker", workerID, "error", err, "subject", msg.Subject())
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}(i)
	}

	slog.Info("video job consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// heartbeat keeps a long-running message from being redelivered.
func heartbeat(msg jetstream.Msg) (stop func()) {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(jobHeartbeat)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				_ = msg.InProgress()
			}
		}
	}()
	return func() { close(done) }
}

// ConsumeAlerts starts consuming alerts (for the API to broadcast via WebSocket).
func (c *Consumer) ConsumeAlerts(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, AlertsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", AlertsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: AlertsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := handler(ctx, msg); err != nil {
					slog.Error("process alert error", "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("alert consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
