// Package opencv adapts gocv for eye detection and video decoding.
package opencv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// CascadeEyeDetector finds eyes in face crops with a Haar cascade.
type CascadeEyeDetector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

// NewCascadeEyeDetector loads the cascade XML (haarcascade_eye.xml).
func NewCascadeEyeDetector(path string) (*CascadeEyeDetector, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("eye cascade %s: %w", path, err)
	}
	c := gocv.NewCascadeClassifier()
	if !c.Load(path) {
		c.Close()
		return nil, fmt.Errorf("load eye cascade %s", path)
	}
	return &CascadeEyeDetector{classifier: c}, nil
}

func (d *CascadeEyeDetector) DetectEyes(img image.Image) ([]image.Rectangle, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.DetectMultiScaleWithParams(gray, 1.1, 5, 0, image.Pt(20, 20), image.Pt(0, 0)), nil
}

func (d *CascadeEyeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
