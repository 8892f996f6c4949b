package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/imaging"
	"github.com/your-org/facewatch/internal/matching"
	"github.com/your-org/facewatch/internal/quality"
)

// Verification states of a still-image match.
const (
	VerificationVerified = "verified"
	VerificationPending  = "pending"
)

type FaceResponse struct {
	Index        int                    `json:"face_index"`
	Region       imaging.Region         `json:"region"`
	Quality      quality.Report         `json:"quality"`
	Matches      []matching.MatchResult `json:"matches"`
	Verification string                 `json:"verification,omitempty"`
	DetectionID  *uuid.UUID             `json:"detection_id,omitempty"`
}

type ResolveResponse struct {
	RequestID     uuid.UUID      `json:"request_id"`
	FacesDetected int            `json:"faces_detected"`
	MatchedFaces  int            `json:"matched_faces"`
	TotalMatches  int            `json:"total_matches"`
	Faces         []FaceResponse `json:"faces"`
	AnnotatedKey  string         `json:"annotated_key,omitempty"`
}

// ImageAlert is published for every still image with at least one match.
type ImageAlert struct {
	RequestID    uuid.UUID         `json:"request_id"`
	AnnotatedKey string            `json:"annotated_key,omitempty"`
	Matches      []ImageAlertMatch `json:"matches"`
}

type ImageAlertMatch struct {
	FaceIndex    int       `json:"face_index"`
	IdentityID   uuid.UUID `json:"identity_id"`
	Name         string    `json:"name"`
	Confidence   float64   `json:"confidence"`
	Verification string    `json:"verification"`
}
