package dto

import "encoding/json"

// WS message types.
const (
	WSVideoSummary = "video_summary"
	WSImageMatch   = "image_match"
)

// WSAlert is a WebSocket message for real-time alert delivery.
type WSAlert struct {
	Type      string          `json:"type"`
	VideoID   string          `json:"video_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}
