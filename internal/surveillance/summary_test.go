package surveillance

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/internal/models"
)

func TestSummary_Monotonic(t *testing.T) {
	s := NewSummary()
	id := uuid.New()

	confidences := []float64{0.75, 0.92, 0.71, 0.88, 0.95, 0.70}
	prevCount, prevMax := 0, 0.0
	for i, c := range confidences {
		frame := (i + 1) * 5
		s.RecordMatch(id, "alice", c, frame, Timestamp(frame, 30))

		e, ok := s.Get(id)
		require.True(t, ok)
		assert.Greater(t, e.FrameCount, prevCount)
		assert.GreaterOrEqual(t, e.MaxConfidence, prevMax)
		prevCount, prevMax = e.FrameCount, e.MaxConfidence
	}

	e, _ := s.Get(id)
	assert.Equal(t, 6, e.FrameCount)
	assert.Equal(t, 0.95, e.MaxConfidence)
	assert.Equal(t, 5, e.FirstFrame)
	assert.Equal(t, 0.17, e.FirstTimestamp)
	assert.Equal(t, 1, s.Len())
}

func TestSummary_EntriesOrder(t *testing.T) {
	s := NewSummary()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	s.RecordMatch(a, "a", 0.80, 5, 0.17)
	s.RecordMatch(b, "b", 0.90, 10, 0.33)
	s.RecordMatch(c, "c", 0.80, 3, 0.1)

	entries := s.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, b, entries[0].IdentityID)
	assert.Equal(t, c, entries[1].IdentityID)
	assert.Equal(t, a, entries[2].IdentityID)
}

func TestCanStart(t *testing.T) {
	assert.True(t, CanStart(models.VideoPending))
	assert.False(t, CanStart(models.VideoProcessing))
	assert.False(t, CanStart(models.VideoCompleted))
	assert.False(t, CanStart(models.VideoFailed))

	assert.True(t, IsTerminal(models.VideoFailed))
	assert.False(t, IsTerminal(models.VideoProcessing))
}

func TestTimestamp(t *testing.T) {
	assert.Equal(t, 0.17, Timestamp(5, 30))
	assert.Equal(t, 1.0, Timestamp(25, 25))
	assert.Equal(t, 0.33, Timestamp(10, 0))
	assert.Equal(t, 2.0, Timestamp(60, 29.97))
}
