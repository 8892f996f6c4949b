// Package matching compares face embeddings against a gallery of known
// identities. Each identity may carry several reference photos; the closest
// photo decides whether the identity matches.
package matching

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrDimensionMismatch means two embeddings of different length reached the
// matcher. It indicates a model/gallery mismatch, not a bad face.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedding is a face vector produced by the recognition model.
type Embedding []float32

// Metric names a distance function between embeddings.
type Metric string

const (
	MetricCosine      Metric = "cosine"
	MetricEuclidean   Metric = "euclidean"
	MetricEuclideanL2 Metric = "euclidean_l2"
)

// ParseMetric accepts a metric name case-insensitively. Empty means cosine.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MetricCosine, nil
	case MetricCosine, MetricEuclidean, MetricEuclideanL2:
		return m, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Distance returns the distance between a and b. Callers must ensure equal
// lengths.
func (m Metric) Distance(a, b Embedding) float64 {
	switch m {
	case MetricEuclidean:
		return euclidean(widen(a), widen(b))
	case MetricEuclideanL2:
		return euclidean(normalize(a), normalize(b))
	default:
		return cosineDistance(a, b)
	}
}

// Confidence converts a distance to a score in [0,1], higher is better.
func (m Metric) Confidence(distance, base float64) float64 {
	var c float64
	switch m {
	case MetricEuclidean, MetricEuclideanL2:
		if base <= 0 {
			return 0
		}
		c = 1 - distance/(2*base)
	default:
		c = 1 - distance
	}
	return math.Max(0, math.Min(1, c))
}

// cosineDistance is 1 - cosine similarity. A zero vector is maximally distant.
func cosineDistance(a, b Embedding) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func widen(e Embedding) []float64 {
	out := make([]float64, len(e))
	for i, v := range e {
		out[i] = float64(v)
	}
	return out
}

func normalize(e Embedding) []float64 {
	out := widen(e)
	var norm float64
	for _, v := range out {
		norm += v * v
	}
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] /= norm
	}
	return out
}

// Normalize returns an L2-normalised copy of e.
func (e Embedding) Normalize() Embedding {
	n := normalize(e)
	out := make(Embedding, len(n))
	for i, v := range n {
		out[i] = float32(v)
	}
	return out
}
