// Package resolver matches every face in a still image against the gallery
// and renders an annotated copy of the image.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/imaging"
	"github.com/your-org/facewatch/internal/matching"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/quality"
)

// DefaultPadding is the number of pixels added around each face before
// embedding extraction.
const DefaultPadding = 20

// ModelService is the face detection and embedding backend.
//
// ExtractEmbedding returns a nil embedding and no error when the crop holds
// no usable face.
type ModelService interface {
	DetectFaces(ctx context.Context, img image.Image) ([]imaging.Region, error)
	ExtractEmbedding(ctx context.Context, crop image.Image) (matching.Embedding, error)
}

// FaceResult is the outcome for a single detected face.
type FaceResult struct {
	Index   int                    `json:"index"`
	Region  imaging.Region         `json:"region"`
	Quality quality.Report         `json:"quality"`
	Matches []matching.MatchResult `json:"matches"`
}

// Best returns the top-ranked match.
func (f FaceResult) Best() (matching.MatchResult, bool) {
	if len(f.Matches) == 0 {
		return matching.MatchResult{}, false
	}
	return f.Matches[0], true
}

// Result holds per-face outcomes and the annotated image.
type Result struct {
	Faces         []FaceResult
	Annotated     *image.RGBA
	FacesDetected int
	MatchedFaces  int
	TotalMatches  int
}

// Alert is the best match of one resolved face.
type Alert struct {
	FaceIndex  int       `json:"face_index"`
	IdentityID uuid.UUID `json:"identity_id"`
	Name       string    `json:"name,omitempty"`
	Confidence float64   `json:"confidence"`
}

// Alerts returns one entry per matched face.
func (r *Result) Alerts() []Alert {
	var out []Alert
	for _, f := range r.Faces {
		if best, ok := f.Best(); ok {
			out = append(out, Alert{
				FaceIndex:  f.Index,
				IdentityID: best.IdentityID,
				Name:       best.Name,
				Confidence: best.Confidence,
			})
		}
	}
	return out
}

type Resolver struct {
	model    ModelService
	matcher  *matching.Matcher
	assessor *quality.Assessor
	padding  int
}

func New(model ModelService, matcher *matching.Matcher, assessor *quality.Assessor, padding int) *Resolver {
	if padding < 0 {
		padding = DefaultPadding
	}
	if assessor == nil {
		assessor = quality.NewAssessor(nil, nil)
	}
	return &Resolver{model: model, matcher: matcher, assessor: assessor, padding: padding}
}

// ResolveImage detects faces in img and resolves them. An image without
// faces yields an empty result without touching the gallery.
func (r *Resolver) ResolveImage(ctx context.Context, img image.Image, gallery *matching.Gallery) (*Result, error) {
	start := time.Now()
	regions, err := r.model.DetectFaces(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	if len(regions) == 0 {
		return &Result{Annotated: imaging.Clone(img)}, nil
	}
	observability.FacesDetected.WithLabelValues(observability.SourceImage).Add(float64(len(regions)))

	res, err := r.Resolve(ctx, img, regions, gallery)
	if err != nil {
		return nil, err
	}
	observability.FacesMatched.WithLabelValues(observability.SourceImage).Add(float64(res.MatchedFaces))
	return res, nil
}

// Resolve matches each region and annotates a copy of img.
func (r *Resolver) Resolve(ctx context.Context, img image.Image, regions []imaging.Region, gallery *matching.Gallery) (*Result, error) {
	faces, err := r.ResolveFaces(ctx, img, regions, gallery)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Faces:         faces,
		Annotated:     Annotate(img, faces),
		FacesDetected: len(faces),
	}
	for _, f := range faces {
		if len(f.Matches) > 0 {
			res.MatchedFaces++
		}
		res.TotalMatches += len(f.Matches)
	}
	return res, nil
}

// ResolveFaces crops, embeds and matches each region independently. A face
// that yields no embedding gets no matches; only a dimension mismatch or a
// cancelled context aborts the whole image.
func (r *Resolver) ResolveFaces(ctx context.Context, img image.Image, regions []imaging.Region, gallery *matching.Gallery) ([]FaceResult, error) {
	faces := make([]FaceResult, 0, len(regions))
	for i, region := range regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		matches, report, err := r.matchRegion(ctx, img, region, gallery)
		if err != nil {
			if errors.Is(err, matching.ErrDimensionMismatch) {
				return nil, err
			}
			slog.Warn("face skipped", "face", i+1, "error", err)
		}
		faces = append(faces, FaceResult{Index: i + 1, Region: region, Quality: report, Matches: matches})
	}
	return faces, nil
}

func (r *Resolver) matchRegion(ctx context.Context, img image.Image, region imaging.Region, gallery *matching.Gallery) ([]matching.MatchResult, quality.Report, error) {
	crop := imaging.CropPadded(img, region, r.padding)
	if crop == nil {
		return nil, quality.DefaultReport(), errors.New("degenerate face region")
	}
	report := r.assessor.Assess(crop)

	start := time.Now()
	emb, err := r.model.ExtractEmbedding(ctx, crop)
	if err != nil {
		return nil, report, fmt.Errorf("extract embedding: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if emb == nil {
		return nil, report, nil
	}

	start = time.Now()
	matches, err := r.matcher.Match(emb, gallery)
	if err != nil {
		return nil, report, err
	}
	observability.InferenceDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())
	return matches, report, nil
}
