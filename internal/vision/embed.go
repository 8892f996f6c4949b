package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facewatch/internal/matching"
)

// Embedder extracts ArcFace (w600k_r50) embeddings from face crops.
type Embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	dim          int
}

func NewEmbedder(modelPath string, opts *ort.SessionOptions) (*Embedder, error) {
	e := &Embedder{inputW: 112, inputH: 112, dim: 512}

	var err error
	e.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(e.inputH), int64(e.inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	e.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.dim)))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{e.inputTensor},
		[]ort.Value{e.outputTensor},
		opts,
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}
	return e, nil
}

// Extract returns the L2-normalised embedding of a face crop. Not safe for
// concurrent use.
func (e *Embedder) Extract(crop image.Image) (matching.Embedding, error) {
	copy(e.inputTensor.GetData(), toCHW(crop, e.inputW, e.inputH, embMean, embStd))

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	out := make(matching.Embedding, e.dim)
	copy(out, e.outputTensor.GetData())
	return out.Normalize(), nil
}

func (e *Embedder) Dim() int { return e.dim }

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}
