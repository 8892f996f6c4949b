package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	ref := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")

	assert.Equal(t, "videos/11111111-2222-3333-4444-555555555555/source.mp4", VideoKey(id, "Lobby.MP4"))
	assert.Equal(t, "videos/11111111-2222-3333-4444-555555555555/", VideoPrefix(id))
	assert.Equal(t, "references/11111111-2222-3333-4444-555555555555/aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee.jpg", ReferenceKey(id, ref))
	assert.Equal(t, "resolved/11111111-2222-3333-4444-555555555555.jpg", ResolvedKey(id))
}

func TestIsArtifactKey(t *testing.T) {
	assert.True(t, IsArtifactKey("videos/x/frames/000005.jpg"))
	assert.True(t, IsArtifactKey("resolved/x.jpg"))
	assert.False(t, IsArtifactKey("secrets/x"))
	assert.False(t, IsArtifactKey("videos/../secrets"))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0))
	assert.Equal(t, 10, clampLimit(10))
	assert.Equal(t, 500, clampLimit(10000))
}
