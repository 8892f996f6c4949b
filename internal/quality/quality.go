// Package quality scores face crops on sharpness, exposure, size and pose.
//
// Assessment is advisory: any failure yields DefaultReport rather than an
// error so a bad crop never blocks matching.
package quality

import (
	"fmt"
	"image"
	"log/slog"
	"math"
)

// Pose is a coarse head-pose label derived from the frontality score.
type Pose string

const (
	PoseFrontal      Pose = "frontal"
	PoseThreeQuarter Pose = "three_quarter"
	PoseProfile      Pose = "profile"
	PoseUnknown      Pose = "unknown"
)

// Overall score weights.
const (
	weightBlur       = 0.30
	weightBrightness = 0.20
	weightSize       = 0.25
	weightFrontality = 0.25
)

const (
	// Laplacian variance at or above which a crop counts as fully sharp.
	blurCeiling = 200.0

	brightnessLow  = 110.0
	brightnessHigh = 150.0

	minPixels     = 50 * 50
	optimalPixels = 100 * 100
	minSizeScore  = 0.3

	// Eye centres closer than this fraction of crop height count as level.
	eyeAlignment = 0.2

	frontalityLevel      = 1.0
	frontalityTilted     = 0.7
	frontalityOneEye     = 0.5
	frontalityNoEyes     = 0.3
	frontalityUndetected = 0.6
)

// Report holds per-factor scores in [0,1].
type Report struct {
	Blur       float64 `json:"blur_score"`
	Brightness float64 `json:"brightness_score"`
	Size       float64 `json:"size_score"`
	Frontality float64 `json:"frontality_score"`
	Overall    float64 `json:"overall_score"`
	Pose       Pose    `json:"pose"`
}

// DefaultReport is returned whenever a crop cannot be assessed.
func DefaultReport() Report {
	return Report{
		Blur:       0.5,
		Brightness: 0.5,
		Size:       0.5,
		Frontality: 0.5,
		Overall:    0.5,
		Pose:       PoseFromFrontality(0.5),
	}
}

// EyeDetector finds eye regions inside a face crop.
type EyeDetector interface {
	DetectEyes(img image.Image) ([]image.Rectangle, error)
}

// Measurer computes the grayscale statistics of a crop: the variance of its
// Laplacian response and its mean intensity (0-255).
type Measurer interface {
	Measure(img image.Image) (lapVar, mean float64, err error)
}

// Assessor scores face crops. Without a measurer every crop gets
// DefaultReport; a nil eye detector makes frontality neutral.
type Assessor struct {
	measurer Measurer
	eyes     EyeDetector
}

func NewAssessor(measurer Measurer, eyes EyeDetector) *Assessor {
	return &Assessor{measurer: measurer, eyes: eyes}
}

// Assess scores a face crop. It never fails.
func (a *Assessor) Assess(crop image.Image) (r Report) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("quality assessment panicked", "panic", rec)
			r = DefaultReport()
		}
	}()

	if crop == nil || crop.Bounds().Empty() || a.measurer == nil {
		return DefaultReport()
	}

	lapVar, mean, err := a.measurer.Measure(crop)
	if err == nil && (!finite(lapVar) || !finite(mean)) {
		err = fmt.Errorf("non-finite measurement (laplacian variance %v, mean %v)", lapVar, mean)
	}
	if err != nil {
		slog.Debug("measure crop failed", "error", err)
		return DefaultReport()
	}

	blur := BlurScore(lapVar)
	brightness := BrightnessScore(mean)
	size := SizeScore(crop.Bounds().Dx(), crop.Bounds().Dy())
	frontality := a.frontality(crop)

	overall := weightBlur*blur +
		weightBrightness*brightness +
		weightSize*size +
		weightFrontality*frontality

	return Report{
		Blur:       round3(blur),
		Brightness: round3(brightness),
		Size:       round3(size),
		Frontality: round3(frontality),
		Overall:    round3(overall),
		Pose:       PoseFromFrontality(frontality),
	}
}

func (a *Assessor) frontality(crop image.Image) float64 {
	if a.eyes == nil {
		return frontalityUndetected
	}
	eyes, err := a.eyes.DetectEyes(crop)
	if err != nil {
		slog.Debug("eye detection failed", "error", err)
		return frontalityUndetected
	}
	return FrontalityScore(eyes, crop.Bounds().Dy())
}

// PoseFromFrontality maps a frontality score to a pose label.
func PoseFromFrontality(f float64) Pose {
	switch {
	case f >= 0.8:
		return PoseFrontal
	case f >= 0.6:
		return PoseThreeQuarter
	case f >= 0.4:
		return PoseProfile
	default:
		return PoseUnknown
	}
}

// BlurScore normalises a Laplacian variance against the sharpness ceiling.
func BlurScore(lapVar float64) float64 {
	return math.Max(0, math.Min(lapVar/blurCeiling, 1.0))
}

// BrightnessScore rates a mean intensity (0-255) against the optimal band.
func BrightnessScore(mean float64) float64 {
	switch {
	case mean >= brightnessLow && mean <= brightnessHigh:
		return 1.0
	case mean < brightnessLow:
		return math.Max(0, mean/brightnessLow)
	default:
		return math.Max(0, 1.0-(mean-brightnessHigh)/(255-brightnessHigh))
	}
}

// SizeScore rates crop area between the minimum and optimal pixel counts.
func SizeScore(w, h int) float64 {
	pixels := w * h
	switch {
	case pixels >= optimalPixels:
		return 1.0
	case pixels < minPixels:
		return minSizeScore
	default:
		return minSizeScore + (1-minSizeScore)*float64(pixels-minPixels)/float64(optimalPixels-minPixels)
	}
}

// FrontalityScore rates pose from detected eye rectangles.
func FrontalityScore(eyes []image.Rectangle, height int) float64 {
	switch {
	case len(eyes) >= 2:
		y1 := eyes[0].Min.Y + eyes[0].Dy()/2
		y2 := eyes[1].Min.Y + eyes[1].Dy()/2
		diff := math.Abs(float64(y1 - y2))
		if diff < float64(height)*eyeAlignment {
			return frontalityLevel
		}
		return frontalityTilted
	case len(eyes) == 1:
		return frontalityOneEye
	default:
		return frontalityNoEyes
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
