package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStride(t *testing.T) {
	// 64x64 input at stride 32: 2x2 cells, 2 anchors each.
	scores := make([]float32, 8)
	boxes := make([]float32, 32)

	// Anchor 0 of cell (1,0): ax=32, ay=0.
	idx := 2
	scores[idx] = 0.9
	copy(boxes[idx*4:], []float32{0.5, 0, 0.5, 1})

	scores[5] = 0.2 // below threshold

	dets := decodeStride(scores, boxes, 32, 64, 64, 0.5, 1, 1, image.Rect(0, 0, 64, 64))
	require.Len(t, dets, 1)
	assert.Equal(t, [4]float32{16, 0, 48, 32}, dets[0].BBox)
	assert.Equal(t, float32(0.9), dets[0].Confidence)
}

func TestDecodeStride_ScalesAndClamps(t *testing.T) {
	scores := []float32{0.8, 0, 0, 0, 0, 0, 0, 0}
	boxes := make([]float32, 32)
	copy(boxes, []float32{1, 1, 1, 1})

	// Source image is twice the model input.
	dets := decodeStride(scores, boxes, 32, 64, 64, 0.5, 2, 2, image.Rect(0, 0, 128, 128))
	require.Len(t, dets, 1)
	assert.Equal(t, [4]float32{0, 0, 64, 64}, dets[0].BBox)
}

func TestNMS(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.7},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.9},
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.8},
	}

	kept := nms(dets, 0.4)
	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Confidence)
	assert.Equal(t, float32(0.8), kept[1].Confidence)

	assert.Empty(t, nms(nil, 0.4))
}

func TestIoU(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}
	assert.InDelta(t, 1.0, iou(a, a), 1e-6)
	assert.InDelta(t, 0.0, iou(a, [4]float32{20, 20, 30, 30}), 1e-6)
	assert.InDelta(t, 25.0/175.0, iou(a, [4]float32{5, 5, 15, 15}), 1e-6)
}

func TestDetectionRegion(t *testing.T) {
	d := Detection{BBox: [4]float32{10.4, 20.6, 50.2, 80.1}, Confidence: 0.95}
	r := d.Region()
	assert.Equal(t, 10, r.X)
	assert.Equal(t, 20, r.Y)
	assert.Equal(t, 41, r.W)
	assert.Equal(t, 61, r.H)
	assert.Equal(t, float32(0.95), r.Confidence)
}

func TestToCHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 127, B: 0, A: 255})
		}
	}

	data := toCHW(img, 2, 2, embMean, embStd)
	require.Len(t, data, 12)
	assert.InDelta(t, 1.0, data[0], 1e-3)
	assert.InDelta(t, -0.004, data[4], 1e-2)
	assert.InDelta(t, -1.0, data[8], 1e-3)
}
