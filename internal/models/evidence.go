package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/imaging"
)

// FrameEvidence is one detected face on one sampled frame. Unmatched faces
// are recorded too and have no identity.
type FrameEvidence struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	VideoID       uuid.UUID      `json:"video_id" db:"video_id"`
	FrameNumber   int            `json:"frame_number" db:"frame_number"`
	Timestamp     float64        `json:"timestamp" db:"timestamp"`
	FacesDetected int            `json:"faces_detected" db:"faces_detected"`
	IdentityID    *uuid.UUID     `json:"identity_id,omitempty" db:"identity_id"`
	Confidence    float64        `json:"confidence" db:"confidence"`
	Region        imaging.Region `json:"region" db:"region"`
	FrameKey      string         `json:"frame_key,omitempty" db:"frame_key"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// VideoJob is the message published to NATS to request a processing run.
type VideoJob struct {
	VideoID             uuid.UUID `json:"video_id"`
	FrameSkip           int       `json:"frame_skip"`
	ConfidenceThreshold *float64  `json:"confidence_threshold,omitempty"`
	RequestedAt         time.Time `json:"requested_at"`
}
