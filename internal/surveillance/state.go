package surveillance

import (
	"errors"

	"github.com/your-org/facewatch/internal/models"
)

// ErrNotPending is returned when a run is requested for a video that is
// already processing or has finished.
var ErrNotPending = errors.New("video is not pending")

// CanStart reports whether a run may start from status s.
func CanStart(s models.VideoStatus) bool {
	return s == models.VideoPending
}

// IsTerminal reports whether s is a final state.
func IsTerminal(s models.VideoStatus) bool {
	return s == models.VideoCompleted || s == models.VideoFailed
}
