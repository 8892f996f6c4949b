package handlers

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/imaging"
	"github.com/your-org/facewatch/internal/matching"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/quality"
	"github.com/your-org/facewatch/internal/resolver"
	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/pkg/dto"
)

// referenceJPEGQuality is used when re-encoding reference crops.
const referenceJPEGQuality = 92

type IdentityHandler struct {
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	model    resolver.ModelService
	assessor *quality.Assessor
	matcher  *matching.Matcher
	padding  int
}

func NewIdentityHandler(
	db *storage.PostgresStore,
	minio *storage.MinIOStore,
	model resolver.ModelService,
	assessor *quality.Assessor,
	matcher *matching.Matcher,
	padding int,
) *IdentityHandler {
	return &IdentityHandler{db: db, minio: minio, model: model, assessor: assessor, matcher: matcher, padding: padding}
}

func (h *IdentityHandler) Create(c *gin.Context) {
	var req dto.CreateIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, err := h.db.CreateIdentity(c.Request.Context(), req.Name, req.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, identityResponse(identity, nil))
}

func (h *IdentityHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	identities, total, err := h.db.ListIdentities(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.IdentityResponse, 0, len(identities))
	for i := range identities {
		refs, err := h.db.ListReferences(c.Request.Context(), identities[i].ID)
		if err != nil {
			respondError(c, err)
			return
		}
		resp = append(resp, identityResponse(&identities[i], refs))
	}

	c.JSON(http.StatusOK, dto.IdentityListResponse{Identities: resp, Total: total})
}

func (h *IdentityHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "identity")
	if !ok {
		return
	}

	identity, refs, ok := h.load(c, id)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, identityResponse(identity, refs))
}

func (h *IdentityHandler) SetStatus(c *gin.Context) {
	id, ok := parseID(c, "id", "identity")
	if !ok {
		return
	}
	var req dto.UpdateIdentityStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.SetIdentityStatus(c.Request.Context(), id, models.IdentityStatus(req.Status)); err != nil {
		respondError(c, err)
		return
	}

	identity, refs, ok := h.load(c, id)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, identityResponse(identity, refs))
}

// Delete removes the identity, its references and their stored photos.
func (h *IdentityHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "identity")
	if !ok {
		return
	}

	if err := h.db.DeleteIdentity(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	if err := h.minio.DeletePrefix(c.Request.Context(), storage.PrefixReferences+id.String()+"/"); err != nil {
		slog.Warn("delete reference photos failed", "identity_id", id, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// AddReference accepts a multipart image upload, embeds its largest face and
// stores it as a new reference.
func (h *IdentityHandler) AddReference(c *gin.Context) {
	identityID, ok := parseID(c, "id", "identity")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	identity, err := h.db.GetIdentity(ctx, identityID)
	if err != nil {
		respondError(c, err)
		return
	}
	if identity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	img, ok := readImage(c)
	if !ok {
		return
	}

	ref, crop, status, err := h.buildReference(ctx, identityID, img)
	if err != nil {
		if status == 0 {
			respondError(c, err)
		} else {
			c.JSON(status, gin.H{"error": err.Error()})
		}
		return
	}

	photo, err := imaging.EncodeJPEG(crop, referenceJPEGQuality)
	if err != nil {
		respondError(c, err)
		return
	}
	ref.PhotoKey = storage.ReferenceKey(identityID, ref.ID)
	if err := h.minio.PutObject(ctx, ref.PhotoKey, photo, "image/jpeg"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store photo failed"})
		return
	}

	if err := h.db.AddReference(ctx, ref); err != nil {
		_ = h.minio.DeleteObject(ctx, ref.PhotoKey)
		respondError(c, err)
		return
	}

	slog.Info("reference added", "identity_id", identityID, "reference_id", ref.ID, "quality", ref.Quality, "pose", ref.Pose)
	c.JSON(http.StatusCreated, referenceResponse(ref))
}

// buildReference runs detect, crop, assess and embed. A non-zero status marks
// a client-side failure.
func (h *IdentityHandler) buildReference(ctx context.Context, identityID uuid.UUID, img image.Image) (*models.Reference, *image.RGBA, int, error) {
	regions, err := h.model.DetectFaces(ctx, img)
	if err != nil {
		return nil, nil, 0, err
	}
	largest := imaging.Largest(regions)
	if largest < 0 {
		return nil, nil, http.StatusUnprocessableEntity, errNoFace
	}

	crop := imaging.CropPadded(img, regions[largest], h.padding)
	if crop == nil {
		return nil, nil, http.StatusUnprocessableEntity, errNoFace
	}

	report := h.assessor.Assess(crop)

	emb, err := h.model.ExtractEmbedding(ctx, crop)
	if err != nil {
		return nil, nil, 0, err
	}
	if emb == nil {
		return nil, nil, http.StatusUnprocessableEntity, errNoFace
	}
	if dim := h.matcher.Dim(); dim > 0 && len(emb) != dim {
		return nil, nil, 0, fmt.Errorf("reference has %d dims, want %d: %w", len(emb), dim, matching.ErrDimensionMismatch)
	}

	return &models.Reference{
		ID:              uuid.New(),
		IdentityID:      identityID,
		Embedding:       emb,
		Quality:         report.Overall,
		BlurScore:       report.Blur,
		BrightnessScore: report.Brightness,
		SizeScore:       report.Size,
		FrontalityScore: report.Frontality,
		Pose:            string(report.Pose),
	}, crop, 0, nil
}

func (h *IdentityHandler) ListReferences(c *gin.Context) {
	identityID, ok := parseID(c, "id", "identity")
	if !ok {
		return
	}

	refs, err := h.db.ListReferences(c.Request.Context(), identityID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.ReferenceResponse, 0, len(refs))
	for i := range refs {
		resp = append(resp, referenceResponse(&refs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"references": resp, "total": len(resp)})
}

func (h *IdentityHandler) DeleteReference(c *gin.Context) {
	identityID, ok := parseID(c, "id", "identity")
	if !ok {
		return
	}
	refID, ok := parseID(c, "refId", "reference")
	if !ok {
		return
	}

	key, err := h.db.DeleteReference(c.Request.Context(), identityID, refID)
	if err != nil {
		respondError(c, err)
		return
	}
	if key != "" {
		if err := h.minio.DeleteObject(c.Request.Context(), key); err != nil {
			slog.Warn("delete reference photo failed", "key", key, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Search embeds the largest face of an uploaded image and returns the nearest
// identities from the vector index, each judged against its reference's
// adaptive threshold.
func (h *IdentityHandler) Search(c *gin.Context) {
	img, ok := readImage(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	ctx := c.Request.Context()

	ref, _, status, err := h.buildReference(ctx, uuid.Nil, img)
	if err != nil {
		if status == 0 {
			respondError(c, err)
		} else {
			c.JSON(status, gin.H{"error": err.Error()})
		}
		return
	}

	matches, err := h.db.SearchReferences(ctx, ref.Embedding, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	// The index orders by cosine distance regardless of the matcher metric.
	base := h.matcher.BaseThreshold()
	if h.matcher.Metric() != matching.MetricCosine {
		base = matching.DefaultBaseThreshold(matching.MetricCosine)
	}

	results := make([]dto.SearchResult, 0, len(matches))
	for _, m := range matches {
		threshold := matching.AdaptiveThreshold(base, m.Quality)
		results = append(results, dto.SearchResult{
			IdentityID:  m.IdentityID,
			Name:        m.Name,
			ReferenceID: m.ReferenceID,
			Distance:    m.Distance,
			Threshold:   threshold,
			Confidence:  matching.MetricCosine.Confidence(m.Distance, base),
			Matched:     m.Distance <= threshold,
		})
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "query_quality": ref.Quality})
}

func (h *IdentityHandler) load(c *gin.Context, id uuid.UUID) (*models.Identity, []models.Reference, bool) {
	identity, err := h.db.GetIdentity(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, nil, false
	}
	if identity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return nil, nil, false
	}
	refs, err := h.db.ListReferences(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, nil, false
	}
	return identity, refs, true
}

// readImage reads the "image" multipart field.
func readImage(c *gin.Context) (image.Image, bool) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return nil, false
	}
	defer file.Close()

	if !allowedImage(header.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type"})
		return nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return nil, false
	}

	img, err := imaging.Decode(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return img, true
}

func identityResponse(i *models.Identity, refs []models.Reference) dto.IdentityResponse {
	resp := dto.IdentityResponse{
		ID:             i.ID,
		Name:           i.Name,
		Status:         string(i.Status),
		Metadata:       i.Metadata,
		ReferenceCount: len(refs),
		CreatedAt:      formatTime(i.CreatedAt),
	}
	if p := primaryReference(refs); p != nil {
		r := referenceResponse(p)
		resp.PrimaryReference = &r
	}
	return resp
}

// primaryReference applies the gallery's primary rule to stored references.
func primaryReference(refs []models.Reference) *models.Reference {
	entries := make([]matching.ReferenceEntry, len(refs))
	for i, r := range refs {
		entries[i] = matching.ReferenceEntry{ID: r.ID, IdentityID: r.IdentityID, Quality: r.Quality}
	}
	best, ok := matching.PrimaryReference(entries)
	if !ok {
		return nil
	}
	for i := range refs {
		if refs[i].ID == best.ID {
			return &refs[i]
		}
	}
	return nil
}

func referenceResponse(r *models.Reference) dto.ReferenceResponse {
	return dto.ReferenceResponse{
		ID:              r.ID,
		IdentityID:      r.IdentityID,
		Quality:         r.Quality,
		BlurScore:       r.BlurScore,
		BrightnessScore: r.BrightnessScore,
		SizeScore:       r.SizeScore,
		FrontalityScore: r.FrontalityScore,
		Pose:            r.Pose,
		PhotoKey:        r.PhotoKey,
		CreatedAt:       formatTime(r.CreatedAt),
	}
}
