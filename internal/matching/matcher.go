package matching

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
)

// MatchResult is the outcome of comparing one unknown face against all
// references of one identity.
type MatchResult struct {
	IdentityID         uuid.UUID `json:"identity_id"`
	Name               string    `json:"name,omitempty"`
	ReferenceID        uuid.UUID `json:"reference_id"`
	Confidence         float64   `json:"confidence"`
	Distance           float64   `json:"distance"`
	Threshold          float64   `json:"threshold"`
	ReferencesCompared int       `json:"references_compared"`
	MatchedQuality     float64   `json:"matched_quality"`
}

// Matcher runs ensemble matching with quality-adaptive thresholds.
type Matcher struct {
	metric Metric
	base   float64
	dim    int
}

// NewMatcher creates a matcher. base <= 0 selects the metric default; dim <= 0
// disables the fixed-dimension check and only compares lengths pairwise.
func NewMatcher(metric Metric, base float64, dim int) *Matcher {
	if metric == "" {
		metric = MetricCosine
	}
	if base <= 0 {
		base = DefaultBaseThreshold(metric)
	}
	return &Matcher{metric: metric, base: base, dim: dim}
}

func (m *Matcher) Metric() Metric         { return m.metric }
func (m *Matcher) BaseThreshold() float64 { return m.base }
func (m *Matcher) Dim() int               { return m.dim }

// Match compares unknown with every identity in g. For each identity the
// closest reference wins; the identity matches if that distance is within the
// threshold adapted to the winning reference's quality. Equal distances keep
// the earlier reference. Results are ordered by descending confidence, ties
// in gallery order.
func (m *Matcher) Match(unknown Embedding, g *Gallery) ([]MatchResult, error) {
	if len(unknown) == 0 {
		return nil, fmt.Errorf("match: empty unknown embedding: %w", ErrDimensionMismatch)
	}
	if m.dim > 0 && len(unknown) != m.dim {
		return nil, fmt.Errorf("match: unknown has %d dims, want %d: %w", len(unknown), m.dim, ErrDimensionMismatch)
	}
	if i, ok := firstNonFinite(unknown); ok {
		return nil, fmt.Errorf("match: unknown has non-finite value %v at %d: %w", unknown[i], i, ErrDimensionMismatch)
	}

	var results []MatchResult
	if g == nil {
		return results, nil
	}

	for _, id := range g.Identities {
		var (
			best     *ReferenceEntry
			bestDist float64
			compared int
		)
		for i := range id.Refs {
			ref := &id.Refs[i]
			if len(ref.Embedding) == 0 {
				continue
			}
			if len(ref.Embedding) != len(unknown) {
				return nil, fmt.Errorf("match: reference %s of identity %s has %d dims, unknown has %d: %w",
					ref.ID, id.IdentityID, len(ref.Embedding), len(unknown), ErrDimensionMismatch)
			}
			d := m.metric.Distance(unknown, ref.Embedding)
			if math.IsNaN(d) || math.IsInf(d, 0) {
				continue
			}
			compared++
			if best == nil || d < bestDist {
				best = ref
				bestDist = d
			}
		}
		if best == nil {
			continue
		}

		threshold := AdaptiveThreshold(m.base, best.Quality)
		if bestDist > threshold {
			continue
		}
		results = append(results, MatchResult{
			IdentityID:         id.IdentityID,
			Name:               id.Name,
			ReferenceID:        best.ID,
			Confidence:         m.metric.Confidence(bestDist, m.base),
			Distance:           bestDist,
			Threshold:          threshold,
			ReferencesCompared: compared,
			MatchedQuality:     best.Quality,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results, nil
}

func firstNonFinite(e Embedding) (int, bool) {
	for i, v := range e {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i, true
		}
	}
	return 0, false
}
