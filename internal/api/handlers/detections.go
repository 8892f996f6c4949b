package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/pkg/dto"
)

type DetectionStore interface {
	GetDetection(ctx context.Context, id uuid.UUID) (*models.Detection, error)
	ListDetections(ctx context.Context, status models.DetectionStatus, limit, offset int) ([]models.Detection, int, error)
	ReviewDetection(ctx context.Context, id uuid.UUID, status models.DetectionStatus, notes string) error
}

// DetectionHandler serves the still-image detection log and its review.
type DetectionHandler struct {
	db DetectionStore
}

func NewDetectionHandler(db DetectionStore) *DetectionHandler {
	return &DetectionHandler{db: db}
}

func (h *DetectionHandler) List(c *gin.Context) {
	var q dto.DetectionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list, total, err := h.db.ListDetections(c.Request.Context(), models.DetectionStatus(q.Status), q.Limit, q.Offset)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.DetectionResponse, 0, len(list))
	for i := range list {
		resp = append(resp, detectionResponse(&list[i]))
	}
	c.JSON(http.StatusOK, dto.DetectionListResponse{Detections: resp, Total: total})
}

func (h *DetectionHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "detection")
	if !ok {
		return
	}
	d, err := h.db.GetDetection(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "detection not found"})
		return
	}
	c.JSON(http.StatusOK, detectionResponse(d))
}

// Review confirms a detection or marks it a false positive.
func (h *DetectionHandler) Review(c *gin.Context) {
	id, ok := parseID(c, "id", "detection")
	if !ok {
		return
	}
	var req dto.ReviewDetectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.db.ReviewDetection(ctx, id, models.DetectionStatus(req.Status), req.Notes); err != nil {
		respondError(c, err)
		return
	}
	d, err := h.db.GetDetection(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "detection not found"})
		return
	}
	c.JSON(http.StatusOK, detectionResponse(d))
}

func detectionResponse(d *models.Detection) dto.DetectionResponse {
	return dto.DetectionResponse{
		ID:           d.ID,
		RequestID:    d.RequestID,
		FaceIndex:    d.FaceIndex,
		IdentityID:   d.IdentityID,
		IdentityName: d.IdentityName,
		ReferenceID:  d.ReferenceID,
		Confidence:   d.Confidence,
		Region:       d.Region,
		Location:     d.Location,
		CameraID:     d.CameraID,
		ImageKey:     d.ImageKey,
		Status:       string(d.Status),
		Notes:        d.Notes,
		DetectedAt:   formatTime(d.DetectedAt),
		UpdatedAt:    formatTime(d.UpdatedAt),
	}
}
