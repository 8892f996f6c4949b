package vision

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEmbedding_TinyCrop(t *testing.T) {
	s := &ONNXService{}

	emb, err := s.ExtractEmbedding(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 40)))
	require.NoError(t, err)
	assert.Nil(t, emb)

	emb, err = s.ExtractEmbedding(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, emb)
}

func TestServiceHonoursCancelledContext(t *testing.T) {
	s := &ONNXService{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.DetectFaces(ctx, image.NewRGBA(image.Rect(0, 0, 32, 32)))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.ExtractEmbedding(ctx, image.NewRGBA(image.Rect(0, 0, 32, 32)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLibraryPath(t *testing.T) {
	assert.NotEmpty(t, libraryPath())
}
