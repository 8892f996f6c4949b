package ingest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30000/1001", 30000.0 / 1001.0},
		{"25/1", 25},
		{"24", 24},
		{"0/0", 0},
		{"", 0},
		{"abc/1", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, parseRate(tt.in), 1e-9, "rate=%q", tt.in)
	}
}

func TestParseMeta(t *testing.T) {
	out := []byte(`{
		"streams": [{"width": 1920, "height": 1080, "r_frame_rate": "30000/1001",
			"avg_frame_rate": "30000/1001", "nb_frames": "300"}],
		"format": {"duration": "10.010000"}
	}`)

	meta, err := parseMeta(out)
	require.NoError(t, err)
	assert.Equal(t, 1920, meta.Width)
	assert.Equal(t, 1080, meta.Height)
	assert.Equal(t, 300, meta.TotalFrames)
	assert.InDelta(t, 29.97, meta.FPS, 0.01)
	assert.Equal(t, 10.01, meta.DurationSeconds)
}

func TestParseMeta_EstimatesFrameCount(t *testing.T) {
	out := []byte(`{"streams": [{"avg_frame_rate": "0/0", "r_frame_rate": "25/1"}],
		"format": {"duration": "4.0"}}`)

	meta, err := parseMeta(out)
	require.NoError(t, err)
	assert.Equal(t, 25.0, meta.FPS)
	assert.Equal(t, 100, meta.TotalFrames)
}

func TestParseMeta_NoStream(t *testing.T) {
	_, err := parseMeta([]byte(`{"streams": []}`))
	assert.Error(t, err)

	_, err = parseMeta([]byte(`not json`))
	assert.Error(t, err)
}

func TestReadJPEGFrames(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x11}) // junk before the first frame
	stream.Write([]byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9})
	stream.Write([]byte{0xFF, 0xD8, 0x03, 0xFF, 0xD9})

	var frames [][]byte
	err := readJPEGFrames(context.Background(), &stream, func(f []byte) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}, frames[0])
	assert.Equal(t, []byte{0xFF, 0xD8, 0x03, 0xFF, 0xD9}, frames[1])
}

func TestReadJPEGFrames_CallbackErrorStops(t *testing.T) {
	stream := bytes.NewReader([]byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9, 0xFF, 0xD8, 0x02, 0xFF, 0xD9})
	stop := errors.New("stop")

	calls := 0
	err := readJPEGFrames(context.Background(), stream, func([]byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestReadJPEGFrames_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := readJPEGFrames(ctx, bytes.NewReader(nil), func([]byte) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
