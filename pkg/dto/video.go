package dto

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/imaging"
)

type ProcessVideoRequest struct {
	FrameSkip           int      `json:"frame_skip" binding:"omitempty,min=1"`
	ConfidenceThreshold *float64 `json:"confidence_threshold" binding:"omitempty,gte=0,lte=1"`
}

type VideoResponse struct {
	ID               uuid.UUID       `json:"id"`
	Filename         string          `json:"filename"`
	Status           string          `json:"status"`
	FPS              float64         `json:"fps"`
	TotalFrames      int             `json:"total_frames"`
	Width            int             `json:"width"`
	Height           int             `json:"height"`
	DurationSeconds  float64         `json:"duration_seconds"`
	FramesProcessed  int             `json:"frames_processed"`
	Progress         float64         `json:"progress"`
	TotalFaces       int             `json:"total_faces"`
	UniqueIdentities int             `json:"unique_identities"`
	SummaryReport    json.RawMessage `json:"summary_report,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	StartedAt        string          `json:"started_at,omitempty"`
	CompletedAt      string          `json:"completed_at,omitempty"`
	CreatedAt        string          `json:"created_at"`
}

type VideoListResponse struct {
	Videos []VideoResponse `json:"videos"`
	Total  int             `json:"total"`
}

type FrameEvidenceResponse struct {
	ID            uuid.UUID      `json:"id"`
	FrameNumber   int            `json:"frame_number"`
	Timestamp     float64        `json:"timestamp"`
	FacesDetected int            `json:"faces_detected"`
	IdentityID    *uuid.UUID     `json:"identity_id,omitempty"`
	Confidence    float64        `json:"confidence"`
	Region        imaging.Region `json:"region"`
	FrameKey      string         `json:"frame_key,omitempty"`
}

type FrameEvidenceListResponse struct {
	Frames []FrameEvidenceResponse `json:"frames"`
	Total  int                     `json:"total"`
}

type FrameQuery struct {
	Matched bool `form:"matched"`
	Limit   int  `form:"limit"`
	Offset  int  `form:"offset"`
}
