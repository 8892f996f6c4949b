package surveillance

import (
	"sort"

	"github.com/google/uuid"
)

// SummaryEntry aggregates every match of one identity within a video run.
type SummaryEntry struct {
	IdentityID     uuid.UUID `json:"identity_id"`
	Name           string    `json:"name"`
	MaxConfidence  float64   `json:"max_confidence"`
	FrameCount     int       `json:"frame_count"`
	FirstFrame     int       `json:"first_frame_number"`
	FirstTimestamp float64   `json:"first_timestamp"`
}

// Summary is the per-run aggregate keyed by identity. It is owned by a
// single run and is not safe for concurrent use.
type Summary struct {
	entries map[uuid.UUID]*SummaryEntry
	order   []uuid.UUID
}

func NewSummary() *Summary {
	return &Summary{entries: make(map[uuid.UUID]*SummaryEntry)}
}

// RecordMatch adds one matched frame for an identity. The first call fixes
// the first frame and timestamp; FrameCount and MaxConfidence only grow.
func (s *Summary) RecordMatch(identityID uuid.UUID, name string, confidence float64, frame int, timestamp float64) {
	e, ok := s.entries[identityID]
	if !ok {
		e = &SummaryEntry{
			IdentityID:     identityID,
			Name:           name,
			FirstFrame:     frame,
			FirstTimestamp: timestamp,
		}
		s.entries[identityID] = e
		s.order = append(s.order, identityID)
	}
	e.FrameCount++
	if confidence > e.MaxConfidence {
		e.MaxConfidence = confidence
	}
	if e.Name == "" {
		e.Name = name
	}
}

// Get returns a copy of the entry for an identity.
func (s *Summary) Get(identityID uuid.UUID) (SummaryEntry, bool) {
	e, ok := s.entries[identityID]
	if !ok {
		return SummaryEntry{}, false
	}
	return *e, true
}

func (s *Summary) Len() int { return len(s.entries) }

// Entries returns a snapshot ordered by highest confidence, then by first
// appearance.
func (s *Summary) Entries() []SummaryEntry {
	out := make([]SummaryEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.entries[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MaxConfidence != out[j].MaxConfidence {
			return out[i].MaxConfidence > out[j].MaxConfidence
		}
		return out[i].FirstFrame < out[j].FirstFrame
	})
	return out
}
