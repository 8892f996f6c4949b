package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

type CreateIdentityRequest struct {
	Name     string          `json:"name" binding:"required"`
	Metadata json.RawMessage `json:"metadata"`
}

type UpdateIdentityStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active inactive"`
}

type IdentityResponse struct {
	ID               uuid.UUID          `json:"id"`
	Name             string             `json:"name"`
	Status           string             `json:"status"`
	Metadata         json.RawMessage    `json:"metadata,omitempty"`
	ReferenceCount   int                `json:"reference_count"`
	PrimaryReference *ReferenceResponse `json:"primary_reference,omitempty"`
	CreatedAt        string             `json:"created_at"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}

type ReferenceResponse struct {
	ID              uuid.UUID `json:"id"`
	IdentityID      uuid.UUID `json:"identity_id"`
	Quality         float64   `json:"quality"`
	BlurScore       float64   `json:"blur_score"`
	BrightnessScore float64   `json:"brightness_score"`
	SizeScore       float64   `json:"size_score"`
	FrontalityScore float64   `json:"frontality_score"`
	Pose            string    `json:"pose"`
	PhotoKey        string    `json:"photo_key"`
	CreatedAt       string    `json:"created_at"`
}

// SearchResult is one candidate from POST /v1/search.
type SearchResult struct {
	IdentityID  uuid.UUID `json:"identity_id"`
	Name        string    `json:"name"`
	ReferenceID uuid.UUID `json:"reference_id"`
	Distance    float64   `json:"distance"`
	Threshold   float64   `json:"threshold"`
	Confidence  float64   `json:"confidence"`
	Matched     bool      `json:"matched"`
}
