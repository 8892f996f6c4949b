package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// VideoKey is where an uploaded video is stored.
func VideoKey(id uuid.UUID, filename string) string {
	return fmt.Sprintf("%s%s/source%s", PrefixVideos, id, strings.ToLower(path.Ext(filename)))
}

// VideoPrefix holds the source file and matched frames of a video.
func VideoPrefix(id uuid.UUID) string {
	return PrefixVideos + id.String() + "/"
}

// ReferenceKey is where a reference photo is stored.
func ReferenceKey(identityID, refID uuid.UUID) string {
	return fmt.Sprintf("%s%s/%s.jpg", PrefixReferences, identityID, refID)
}

// ResolvedKey is where an annotated still image is stored.
func ResolvedKey(id uuid.UUID) string {
	return fmt.Sprintf("%s%s.jpg", PrefixResolved, id)
}

// IsArtifactKey reports whether key may be served through the artifact
// endpoint.
func IsArtifactKey(key string) bool {
	if strings.Contains(key, "..") {
		return false
	}
	for _, p := range []string{PrefixVideos, PrefixReferences, PrefixResolved} {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
