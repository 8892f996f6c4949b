package handlers

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facewatch/internal/storage"
)

const artifactURLExpiry = 10 * time.Minute

type ArtifactHandler struct {
	minio *storage.MinIOStore
}

func NewArtifactHandler(minio *storage.MinIOStore) *ArtifactHandler {
	return &ArtifactHandler{minio: minio}
}

// Get serves a stored image: annotated stills, matched frames and reference
// photos. ?redirect=true answers with a presigned URL instead.
func (h *ArtifactHandler) Get(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if !storage.IsArtifactKey(key) || path.Ext(key) != ".jpg" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid artifact key"})
		return
	}

	if c.Query("redirect") == "true" {
		u, err := h.minio.PresignedGetURL(c.Request.Context(), key, artifactURLExpiry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, u)
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
