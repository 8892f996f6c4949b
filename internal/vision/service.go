// Package vision wraps the ONNX face detection and embedding models behind
// the ModelService used by the resolver and the video pipeline.
package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facewatch/internal/imaging"
	"github.com/your-org/facewatch/internal/matching"
)

const (
	DetectionModel = "det_10g.onnx"
	EmbeddingModel = "w600k_r50.onnx"

	// Crops smaller than this on either side carry no usable face.
	minCropSide = 16
)

// ONNXService runs detection and embedding. Sessions share tensors, so calls
// are serialised.
type ONNXService struct {
	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

// NewONNXService loads both models from modelsDir.
func NewONNXService(modelsDir string, detectionThreshold float64) (*ONNXService, error) {
	detPath := filepath.Join(modelsDir, DetectionModel)
	embPath := filepath.Join(modelsDir, EmbeddingModel)

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(detectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	slog.Info("vision models ready", "embedding_dim", emb.Dim())
	return &ONNXService{detector: det, embedder: emb}, nil
}

func (s *ONNXService) DetectFaces(ctx context.Context, img image.Image) ([]imaging.Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	dets, err := s.detector.Detect(img)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	regions := make([]imaging.Region, 0, len(dets))
	for _, d := range dets {
		if r := d.Region(); r.W > 0 && r.H > 0 {
			regions = append(regions, r)
		}
	}
	return regions, nil
}

// ExtractEmbedding returns nil for crops too small to hold a face.
func (s *ONNXService) ExtractEmbedding(ctx context.Context, crop image.Image) (matching.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if crop == nil || crop.Bounds().Dx() < minCropSide || crop.Bounds().Dy() < minCropSide {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embedder.Extract(crop)
}

func (s *ONNXService) EmbeddingDim() int { return s.embedder.Dim() }

func (s *ONNXService) Close() {
	if s.detector != nil {
		s.detector.Close()
	}
	if s.embedder != nil {
		s.embedder.Close()
	}
}

// InitRuntime loads the ONNX Runtime shared library. Call DestroyRuntime on
// shutdown.
func InitRuntime() error {
	ort.SetSharedLibraryPath(libraryPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

func DestroyRuntime() {
	_ = ort.DestroyEnvironment()
}

func libraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
