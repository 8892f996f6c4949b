package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/imaging"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/resolver"
	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/internal/surveillance"
	"github.com/your-org/facewatch/pkg/dto"
)

const annotatedJPEGQuality = 90

// DetectionRecorder keeps the reviewable log of still-image matches.
type DetectionRecorder interface {
	RecordDetections(ctx context.Context, detections []models.Detection) error
}

// ImageAlerter publishes the matches of a resolved still image.
type ImageAlerter interface {
	PublishImageAlert(ctx context.Context, requestID string, data any) error
}

type ResolveHandler struct {
	gallery    surveillance.GallerySource
	artifacts  surveillance.ArtifactStore
	detections DetectionRecorder
	alerter    ImageAlerter
	resolver   *resolver.Resolver
	autoVerify float64
}

// NewResolveHandler wires the still-image endpoint. artifacts, detections
// and alerter may be nil.
func NewResolveHandler(
	gallery surveillance.GallerySource,
	artifacts surveillance.ArtifactStore,
	detections DetectionRecorder,
	alerter ImageAlerter,
	res *resolver.Resolver,
	autoVerify float64,
) *ResolveHandler {
	return &ResolveHandler{
		gallery:    gallery,
		artifacts:  artifacts,
		detections: detections,
		alerter:    alerter,
		resolver:   res,
		autoVerify: autoVerify,
	}
}

// Resolve matches every face of an uploaded image against the gallery and
// stores an annotated copy. The best match of every matched face is logged
// as a detection; optional form fields "location" and "camera_id" are kept
// with it.
func (h *ResolveHandler) Resolve(c *gin.Context) {
	img, ok := readImage(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	gallery, err := h.gallery.GallerySnapshot(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.resolver.ResolveImage(ctx, img, gallery)
	if err != nil {
		respondError(c, err)
		return
	}

	requestID := uuid.New()
	resp := dto.ResolveResponse{
		RequestID:     requestID,
		FacesDetected: result.FacesDetected,
		MatchedFaces:  result.MatchedFaces,
		TotalMatches:  result.TotalMatches,
		Faces:         make([]dto.FaceResponse, 0, len(result.Faces)),
	}

	if h.artifacts != nil && result.Annotated != nil {
		key := storage.ResolvedKey(requestID)
		if err := h.storeAnnotated(ctx, key, result); err != nil {
			slog.Warn("store annotated image failed", "request_id", requestID, "error", err)
		} else {
			resp.AnnotatedKey = key
		}
	}

	location, cameraID := c.PostForm("location"), c.PostForm("camera_id")

	var detections []models.Detection
	alert := dto.ImageAlert{RequestID: requestID, AnnotatedKey: resp.AnnotatedKey}
	for _, f := range result.Faces {
		face := dto.FaceResponse{Index: f.Index, Region: f.Region, Quality: f.Quality, Matches: f.Matches}
		if best, ok := f.Best(); ok {
			status := h.verification(best.Confidence)
			face.Verification = string(status)
			detections = append(detections, models.Detection{
				ID:           uuid.New(),
				RequestID:    requestID,
				FaceIndex:    f.Index,
				IdentityID:   best.IdentityID,
				IdentityName: best.Name,
				ReferenceID:  best.ReferenceID,
				Confidence:   best.Confidence,
				Region:       f.Region,
				Location:     location,
				CameraID:     cameraID,
				ImageKey:     resp.AnnotatedKey,
				Status:       status,
			})
			id := detections[len(detections)-1].ID
			face.DetectionID = &id
			alert.Matches = append(alert.Matches, dto.ImageAlertMatch{
				FaceIndex:    f.Index,
				IdentityID:   best.IdentityID,
				Name:         best.Name,
				Confidence:   best.Confidence,
				Verification: face.Verification,
			})
		}
		resp.Faces = append(resp.Faces, face)
	}

	if h.detections != nil && len(detections) > 0 {
		if err := h.detections.RecordDetections(ctx, detections); err != nil {
			slog.Error("record detections failed", "request_id", requestID, "error", err)
			respondError(c, err)
			return
		}
	} else {
		for i := range resp.Faces {
			resp.Faces[i].DetectionID = nil
		}
	}

	if h.alerter != nil && len(alert.Matches) > 0 {
		if err := h.alerter.PublishImageAlert(ctx, requestID.String(), alert); err != nil {
			slog.Error("publish image alert failed", "request_id", requestID, "error", err)
		} else {
			observability.AlertsPublished.WithLabelValues(observability.SourceImage).Inc()
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ResolveHandler) storeAnnotated(ctx context.Context, key string, result *resolver.Result) error {
	data, err := imaging.EncodeJPEG(result.Annotated, annotatedJPEGQuality)
	if err != nil {
		return err
	}
	return h.artifacts.PutObject(ctx, key, data, "image/jpeg")
}

func (h *ResolveHandler) verification(confidence float64) models.DetectionStatus {
	if confidence >= h.autoVerify {
		return models.DetectionVerified
	}
	return models.DetectionPending
}
