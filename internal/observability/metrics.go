package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "facewatch"

var (
	FramesSampled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_sampled_total",
		Help:      "Total number of video frames handed to face detection",
	})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	}, []string{"source"})

	FacesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "faces_matched_total",
		Help:      "Total number of faces matched to a known identity",
	}, []string{"source"})

	VideoRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "video_runs_total",
		Help:      "Video processing runs by final status",
	}, []string{"status"})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_video_runs",
		Help:      "Number of video runs currently in progress",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "inference_duration_seconds",
		Help:      "Duration of face processing stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	AlertsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_published_total",
		Help:      "Consolidated alerts handed to the alert stream",
	}, []string{"kind"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)

// Metric label values for the source of a face.
const (
	SourceImage = "image"
	SourceVideo = "video"
)
