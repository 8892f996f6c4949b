// Package imaging holds the pixel-level helpers shared by the resolver and
// the video pipeline: face regions, padded crops and JPEG round-tripping.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	// Decoders for uploaded stills.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Region is a face rectangle in source-image pixel coordinates.
type Region struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	W          int     `json:"w"`
	H          int     `json:"h"`
	Confidence float32 `json:"confidence,omitempty"`
}

// Rect converts the region to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Area returns the region area in pixels.
func (r Region) Area() int {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// RegionFromRect builds a Region from a rectangle.
func RegionFromRect(rect image.Rectangle, confidence float32) Region {
	return Region{X: rect.Min.X, Y: rect.Min.Y, W: rect.Dx(), H: rect.Dy(), Confidence: confidence}
}

// Largest returns the index of the region with the biggest area, or -1.
func Largest(regions []Region) int {
	best := -1
	for i, r := range regions {
		if best < 0 || r.Area() > regions[best].Area() {
			best = i
		}
	}
	return best
}

// CropPadded copies the region grown by pad pixels on every side, clamped to
// the image bounds. It returns nil when the clamped region is empty.
func CropPadded(img image.Image, r Region, pad int) *image.RGBA {
	if img == nil {
		return nil
	}
	bounds := img.Bounds()

	rect := image.Rect(r.X-pad, r.Y-pad, r.X+r.W+pad, r.Y+r.H+pad).Intersect(bounds)
	if r.W <= 0 || r.H <= 0 || rect.Empty() {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(crop, crop.Bounds(), img, rect.Min, draw.Src)
	return crop
}

// Clone returns an RGBA copy of img with the same bounds.
func Clone(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// Decode decodes any registered image format.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes an image as JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
