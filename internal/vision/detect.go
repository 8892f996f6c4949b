package vision

import (
	"fmt"
	"image"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facewatch/internal/imaging"
)

// Detection is a face box in source-image pixels.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
}

// Region converts the box to an integer region.
func (d Detection) Region() imaging.Region {
	x1 := int(math.Floor(float64(d.BBox[0])))
	y1 := int(math.Floor(float64(d.BBox[1])))
	x2 := int(math.Ceil(float64(d.BBox[2])))
	y2 := int(math.Ceil(float64(d.BBox[3])))
	return imaging.Region{X: x1, Y: y1, W: x2 - x1, H: y2 - y1, Confidence: d.Confidence}
}

// Detector runs RetinaFace (det_10g) face detection using ONNX Runtime.
type Detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

var strides = []int{8, 16, 32}

const (
	anchorsPerStride = 2
	nmsIoU           = 0.4
)

// NewDetector loads the RetinaFace ONNX model.
// opts may be nil (ORT defaults) or a pre-configured *ort.SessionOptions.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	inputW, inputH := 640, 640

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Outputs per stride 8/16/32: scores [N,1], boxes [N,4], landmarks [N,10]
	// with N = (640/stride)^2 * 2.
	outputs := []struct {
		name  string
		shape ort.Shape
	}{
		{"448", ort.NewShape(12800, 1)},
		{"471", ort.NewShape(3200, 1)},
		{"494", ort.NewShape(800, 1)},
		{"451", ort.NewShape(12800, 4)},
		{"474", ort.NewShape(3200, 4)},
		{"497", ort.NewShape(800, 4)},
		{"454", ort.NewShape(12800, 10)},
		{"477", ort.NewShape(3200, 10)},
		{"500", ort.NewShape(800, 10)},
	}

	d := &Detector{inputTensor: inputTensor, threshold: threshold, inputW: inputW, inputH: inputH}

	outputNames := make([]string, len(outputs))
	outputValues := make([]ort.Value, len(outputs))
	for i, o := range outputs {
		t, err := ort.NewEmptyTensor[float32](o.shape)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create output tensor %s: %w", o.name, err)
		}
		outputNames[i] = o.name
		outputValues[i] = t
		d.outputTensors = append(d.outputTensors, t)
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// Detect finds faces in img. Not safe for concurrent use.
func (d *Detector) Detect(img image.Image) ([]Detection, error) {
	b := img.Bounds()
	copy(d.inputTensor.GetData(), toCHW(img, d.inputW, d.inputH, detMean, detStd))

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	scaleW := float32(b.Dx()) / float32(d.inputW)
	scaleH := float32(b.Dy()) / float32(d.inputH)

	var dets []Detection
	for si, stride := range strides {
		dets = append(dets, decodeStride(
			d.outputTensors[si].GetData(),
			d.outputTensors[si+3].GetData(),
			stride, d.inputW, d.inputH, d.threshold, scaleW, scaleH, b,
		)...)
	}
	return nms(dets, nmsIoU), nil
}

// decodeStride turns one stride's anchor outputs into boxes in source pixels,
// clamped to bounds.
func decodeStride(scores, boxes []float32, stride, inputW, inputH int, threshold, scaleW, scaleH float32, bounds image.Rectangle) []Detection {
	var out []Detection
	fmW, fmH := inputW/stride, inputH/stride
	st := float32(stride)

	idx := 0
	for cy := 0; cy < fmH; cy++ {
		for cx := 0; cx < fmW; cx++ {
			for a := 0; a < anchorsPerStride; a++ {
				if idx >= len(scores) || idx*4+3 >= len(boxes) {
					return out
				}
				if score := scores[idx]; score >= threshold {
					ax, ay := float32(cx)*st, float32(cy)*st
					out = append(out, Detection{
						BBox: [4]float32{
							clampF((ax-boxes[idx*4+0]*st)*scaleW+float32(bounds.Min.X), float32(bounds.Min.X), float32(bounds.Max.X)),
							clampF((ay-boxes[idx*4+1]*st)*scaleH+float32(bounds.Min.Y), float32(bounds.Min.Y), float32(bounds.Max.Y)),
							clampF((ax+boxes[idx*4+2]*st)*scaleW+float32(bounds.Min.X), float32(bounds.Min.X), float32(bounds.Max.X)),
							clampF((ay+boxes[idx*4+3]*st)*scaleH+float32(bounds.Min.Y), float32(bounds.Min.Y), float32(bounds.Max.Y)),
						},
						Confidence: score,
					})
				}
				idx++
			}
		}
	}
	return out
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms keeps the highest-scoring box of every overlapping group.
func nms(dets []Detection, iouThreshold float32) []Detection {
	if len(dets) == 0 {
		return dets
	}
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	var kept []Detection
	for _, d := range dets {
		suppressed := false
		for _, k := range kept {
			if iou(k.BBox, d.BBox) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])

	inter := max(0, x2-x1) * max(0, y2-y1)
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
