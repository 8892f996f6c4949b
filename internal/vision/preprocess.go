package vision

import (
	"image"

	"github.com/nfnt/resize"
)

var (
	detMean = [3]float32{127.5, 127.5, 127.5}
	detStd  = [3]float32{128, 128, 128}
	embMean = [3]float32{127.5, 127.5, 127.5}
	embStd  = [3]float32{127.5, 127.5, 127.5}
)

// toCHW resizes img to w x h and lays it out as normalised planar RGB:
// (pixel - mean) / std.
func toCHW(img image.Image, w, h int, mean, std [3]float32) []float32 {
	resized := resize.Resize(uint(w), uint(h), img, resize.Bilinear)
	b := resized.Bounds()

	plane := w * h
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			data[i] = (float32(r>>8) - mean[0]) / std[0]
			data[plane+i] = (float32(g>>8) - mean[1]) / std[1]
			data[2*plane+i] = (float32(bl>>8) - mean[2]) / std[2]
		}
	}
	return data
}
