package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type IdentityStatus string

const (
	IdentityActive   IdentityStatus = "active"
	IdentityInactive IdentityStatus = "inactive"
)

// Identity is a known person in the gallery.
type Identity struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Status    IdentityStatus  `json:"status" db:"status"`
	Metadata  json.RawMessage `json:"metadata" db:"metadata"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Reference is one reference photo of an identity with its embedding and
// quality scores. References are immutable once stored.
type Reference struct {
	ID              uuid.UUID `json:"id" db:"id"`
	IdentityID      uuid.UUID `json:"identity_id" db:"identity_id"`
	Embedding       []float32 `json:"-" db:"embedding"`
	Quality         float64   `json:"quality" db:"quality"`
	BlurScore       float64   `json:"blur_score" db:"blur_score"`
	BrightnessScore float64   `json:"brightness_score" db:"brightness_score"`
	SizeScore       float64   `json:"size_score" db:"size_score"`
	FrontalityScore float64   `json:"frontality_score" db:"frontality_score"`
	Pose            string    `json:"pose" db:"pose"`
	PhotoKey        string    `json:"photo_key" db:"photo_key"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
