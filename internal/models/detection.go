package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/imaging"
)

type DetectionStatus string

const (
	DetectionPending       DetectionStatus = "pending"
	DetectionVerified      DetectionStatus = "verified"
	DetectionFalsePositive DetectionStatus = "false_positive"
)

// Detection records the best match of one face on a resolved still image.
// Matches below the auto-verify confidence start pending and await review.
type Detection struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	RequestID    uuid.UUID       `json:"request_id" db:"request_id"`
	FaceIndex    int             `json:"face_index" db:"face_index"`
	IdentityID   uuid.UUID       `json:"identity_id" db:"identity_id"`
	IdentityName string          `json:"identity_name" db:"identity_name"`
	ReferenceID  uuid.UUID       `json:"reference_id" db:"reference_id"`
	Confidence   float64         `json:"confidence" db:"confidence"`
	Region       imaging.Region  `json:"region" db:"region"`
	Location     string          `json:"location,omitempty" db:"location"`
	CameraID     string          `json:"camera_id,omitempty" db:"camera_id"`
	ImageKey     string          `json:"image_key,omitempty" db:"image_key"`
	Status       DetectionStatus `json:"status" db:"status"`
	Notes        string          `json:"notes,omitempty" db:"notes"`
	DetectedAt   time.Time       `json:"detected_at" db:"detected_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}
