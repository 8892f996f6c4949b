package opencv

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Measurer computes crop statistics for quality scoring.
type Measurer struct{}

func (Measurer) Measure(img image.Image) (lapVar, mean float64, err error) {
	return Measure(img)
}

// Measure returns the variance of the 4-neighbour Laplacian response and the
// mean intensity of img converted to grayscale.
func Measure(img image.Image) (lapVar, mean float64, err error) {
	if img == nil || img.Bounds().Empty() {
		return 0, 0, errors.New("empty image")
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return 0, 0, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	mean, _, err = meanStdDev(gray)
	if err != nil {
		return 0, 0, fmt.Errorf("gray mean: %w", err)
	}

	laplacian := gocv.NewMat()
	defer laplacian.Close()
	gocv.Laplacian(gray, &laplacian, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	_, stddev, err := meanStdDev(laplacian)
	if err != nil {
		return 0, 0, fmt.Errorf("laplacian variance: %w", err)
	}
	return stddev * stddev, mean, nil
}

func meanStdDev(m gocv.Mat) (mean, stddev float64, err error) {
	if m.Empty() {
		return 0, 0, errors.New("empty mat")
	}
	meanMat := gocv.NewMat()
	defer meanMat.Close()
	stdMat := gocv.NewMat()
	defer stdMat.Close()

	gocv.MeanStdDev(m, &meanMat, &stdMat)
	if meanMat.Empty() || stdMat.Empty() {
		return 0, 0, errors.New("no statistics")
	}
	return meanMat.GetDoubleAt(0, 0), stdMat.GetDoubleAt(0, 0), nil
}
