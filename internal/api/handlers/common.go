package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/matching"
	"github.com/your-org/facewatch/internal/queue"
	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/internal/surveillance"
)

const timeFormat = "2006-01-02T15:04:05Z"

var errNoFace = errors.New("no face detected")

var (
	imageExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".flv": true, ".wmv": true, ".webm": true,
	}
)

func allowedImage(filename string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(filename))]
}

func allowedVideo(filename string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(filename))]
}

func parseID(c *gin.Context, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps domain errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, surveillance.ErrNotPending), errors.Is(err, queue.ErrDuplicateJob):
		status = http.StatusConflict
	case errors.Is(err, matching.ErrDimensionMismatch):
		slog.Error("embedding dimension mismatch", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
