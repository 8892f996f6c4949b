package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/imaging"
)

type DetectionQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=pending verified false_positive"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

type ReviewDetectionRequest struct {
	Status string `json:"status" binding:"required,oneof=verified false_positive"`
	Notes  string `json:"notes"`
}

type DetectionResponse struct {
	ID           uuid.UUID      `json:"id"`
	RequestID    uuid.UUID      `json:"request_id"`
	FaceIndex    int            `json:"face_index"`
	IdentityID   uuid.UUID      `json:"identity_id"`
	IdentityName string         `json:"identity_name"`
	ReferenceID  uuid.UUID      `json:"reference_id"`
	Confidence   float64        `json:"confidence"`
	Region       imaging.Region `json:"region"`
	Location     string         `json:"location,omitempty"`
	CameraID     string         `json:"camera_id,omitempty"`
	ImageKey     string         `json:"image_key,omitempty"`
	Status       string         `json:"status"`
	Notes        string         `json:"notes,omitempty"`
	DetectedAt   string         `json:"detected_at"`
	UpdatedAt    string         `json:"updated_at"`
}

type DetectionListResponse struct {
	Detections []DetectionResponse `json:"detections"`
	Total      int                 `json:"total"`
}
