package matching

// Per-metric base thresholds for the ArcFace model family.
var defaultBaseThresholds = map[Metric]float64{
	MetricCosine:      0.40,
	MetricEuclidean:   23.56,
	MetricEuclideanL2: 0.86,
}

// DefaultBaseThreshold returns the base distance threshold for a metric.
func DefaultBaseThreshold(m Metric) float64 {
	if t, ok := defaultBaseThresholds[m]; ok {
		return t
	}
	return defaultBaseThresholds[MetricCosine]
}

// AdaptiveThreshold tightens the threshold for high-quality references and
// loosens it for poor ones.
func AdaptiveThreshold(base, quality float64) float64 {
	switch {
	case quality >= 0.8:
		return base - 0.05
	case quality >= 0.6:
		return base
	case quality >= 0.4:
		return base + 0.05
	default:
		return base + 0.10
	}
}
