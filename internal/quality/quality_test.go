package quality

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeEyes struct {
	eyes []image.Rectangle
	err  error
}

func (f fakeEyes) DetectEyes(image.Image) ([]image.Rectangle, error) {
	return f.eyes, f.err
}

type panickyEyes struct{}

func (panickyEyes) DetectEyes(image.Image) ([]image.Rectangle, error) {
	panic("cascade not loaded")
}

type fakeMeasurer struct {
	lapVar, mean float64
	err          error
	calls        int
}

func (f *fakeMeasurer) Measure(image.Image) (float64, float64, error) {
	f.calls++
	return f.lapVar, f.mean, f.err
}

func crop(w, h int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, w, h))
}

var levelEyes = []image.Rectangle{image.Rect(20, 30, 40, 50), image.Rect(60, 32, 80, 52)}

func TestAssess_SharpFrontalFace(t *testing.T) {
	a := NewAssessor(&fakeMeasurer{lapVar: 1e6, mean: 127.5}, fakeEyes{eyes: levelEyes})

	r := a.Assess(crop(100, 100))

	assert.Equal(t, 1.0, r.Blur)
	assert.Equal(t, 1.0, r.Brightness)
	assert.Equal(t, 1.0, r.Size)
	assert.Equal(t, 1.0, r.Frontality)
	assert.Equal(t, 1.0, r.Overall)
	assert.Equal(t, PoseFrontal, r.Pose)
}

func TestAssess_FlatCropNoEyes(t *testing.T) {
	a := NewAssessor(&fakeMeasurer{mean: 128}, fakeEyes{})

	r := a.Assess(crop(100, 100))

	assert.Equal(t, 0.0, r.Blur)
	assert.Equal(t, 1.0, r.Brightness)
	assert.Equal(t, 0.3, r.Frontality)
	assert.InDelta(t, 0.525, r.Overall, 1e-9)
	assert.Equal(t, PoseUnknown, r.Pose)
}

func TestAssess_DefaultsOnFailure(t *testing.T) {
	m := &fakeMeasurer{lapVar: 50, mean: 120}
	a := NewAssessor(m, panickyEyes{})

	assert.Equal(t, DefaultReport(), a.Assess(nil))
	assert.Equal(t, DefaultReport(), a.Assess(crop(0, 0)))
	assert.Equal(t, 0, m.calls)
	assert.Equal(t, DefaultReport(), a.Assess(crop(60, 60)))
}

func TestAssess_MeasureFailureDefaults(t *testing.T) {
	tests := []struct {
		name string
		m    Measurer
	}{
		{"no measurer", nil},
		{"error", &fakeMeasurer{err: errors.New("opencv unavailable")}},
		{"nan variance", &fakeMeasurer{lapVar: math.NaN(), mean: 130}},
		{"infinite mean", &fakeMeasurer{lapVar: 10, mean: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssessor(tt.m, fakeEyes{eyes: levelEyes})
			assert.Equal(t, DefaultReport(), a.Assess(crop(100, 100)))
		})
	}
}

func TestAssess_EyeDetectorErrorIsNeutral(t *testing.T) {
	a := NewAssessor(&fakeMeasurer{mean: 128}, fakeEyes{err: errors.New("boom")})

	r := a.Assess(crop(100, 100))
	assert.Equal(t, 0.6, r.Frontality)
	assert.Equal(t, PoseThreeQuarter, r.Pose)
}

func TestBrightnessScore(t *testing.T) {
	tests := []struct {
		mean float64
		want float64
	}{
		{110, 1.0},
		{130, 1.0},
		{150, 1.0},
		{55, 0.5},
		{0, 0.0},
		{255, 0.0},
		{202.5, 0.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, BrightnessScore(tt.mean), 1e-9, "mean=%v", tt.mean)
	}
}

func TestSizeScore(t *testing.T) {
	assert.Equal(t, 1.0, SizeScore(100, 100))
	assert.Equal(t, 1.0, SizeScore(300, 200))
	assert.Equal(t, 0.3, SizeScore(40, 40))
	assert.Equal(t, 0.3, SizeScore(0, 0))
	assert.InDelta(t, 0.3, SizeScore(50, 50), 1e-9)
	assert.InDelta(t, 0.3+0.7*3125.0/7500.0, SizeScore(75, 75), 1e-9)
}

func TestFrontalityScore(t *testing.T) {
	assert.Equal(t, 1.0, FrontalityScore(levelEyes, 100))
	tilted := []image.Rectangle{image.Rect(20, 10, 40, 30), image.Rect(60, 60, 80, 80)}
	assert.Equal(t, 0.7, FrontalityScore(tilted, 100))
	assert.Equal(t, 0.5, FrontalityScore(levelEyes[:1], 100))
	assert.Equal(t, 0.3, FrontalityScore(nil, 100))
}

func TestBlurScore(t *testing.T) {
	assert.Equal(t, 0.0, BlurScore(0))
	assert.Equal(t, 0.5, BlurScore(100))
	assert.Equal(t, 1.0, BlurScore(200))
	assert.Equal(t, 1.0, BlurScore(1e6))
}

func TestPoseFromFrontality(t *testing.T) {
	tests := []struct {
		f    float64
		want Pose
	}{
		{1.0, PoseFrontal},
		{0.8, PoseFrontal},
		{0.79, PoseThreeQuarter},
		{0.6, PoseThreeQuarter},
		{0.5, PoseProfile},
		{0.4, PoseProfile},
		{0.39, PoseUnknown},
		{0.0, PoseUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PoseFromFrontality(tt.f), "f=%v", tt.f)
	}
}
