package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type VideoStatus string

const (
	VideoPending    VideoStatus = "pending"
	VideoProcessing VideoStatus = "processing"
	VideoCompleted  VideoStatus = "completed"
	VideoFailed     VideoStatus = "failed"
)

type Video struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	Filename         string          `json:"filename" db:"filename"`
	ObjectKey        string          `json:"object_key" db:"object_key"`
	Status           VideoStatus     `json:"status" db:"status"`
	FPS              float64         `json:"fps" db:"fps"`
	TotalFrames      int             `json:"total_frames" db:"total_frames"`
	Width            int             `json:"width" db:"width"`
	Height           int             `json:"height" db:"height"`
	DurationSeconds  float64         `json:"duration_seconds" db:"duration_seconds"`
	FramesProcessed  int             `json:"frames_processed" db:"frames_processed"`
	TotalFaces       int             `json:"total_faces" db:"total_faces"`
	UniqueIdentities int             `json:"unique_identities" db:"unique_identities"`
	SummaryReport    json.RawMessage `json:"summary_report,omitempty" db:"summary_report"`
	ErrorMessage     string          `json:"error_message,omitempty" db:"error_message"`
	StartedAt        *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// VideoMeta is what a decoder reports about a video before processing.
type VideoMeta struct {
	FPS             float64 `json:"fps"`
	TotalFrames     int     `json:"total_frames"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// VideoStats are the final counters of a completed run.
type VideoStats struct {
	FramesProcessed  int
	TotalFaces       int
	UniqueIdentities int
	SummaryReport    json.RawMessage
}
