package opencv

import (
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestRedact(t *testing.T) {
	assert.Equal(t, "http://minio:9000/facewatch/videos/a.mp4",
		redact("http://minio:9000/facewatch/videos/a.mp4?X-Amz-Signature=abc"))
	assert.Equal(t, "/tmp/a.mp4", redact("/tmp/a.mp4"))
}

func TestEndOfStream(t *testing.T) {
	tests := []struct {
		name        string
		read, total int
		truncated   bool
	}{
		{"unknown count", 10, 0, false},
		{"exact", 120, 120, false},
		{"header overestimates by one", 119, 120, false},
		{"within one percent", 995, 1000, false},
		{"more frames than declared", 130, 120, false},
		{"stopped halfway", 60, 120, true},
		{"nothing decoded", 0, 120, true},
		{"just past tolerance", 989, 1000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := endOfStream(tt.read, tt.total)
			if tt.truncated {
				assert.ErrorIs(t, err, ErrTruncated)
				assert.NotErrorIs(t, err, io.EOF)
			} else {
				assert.ErrorIs(t, err, io.EOF)
			}
		})
	}
}

// writeMJPEG encodes n solid frames into an AVI file. It skips the test when
// the local OpenCV build has no MJPEG writer.
func writeMJPEG(t *testing.T, path string, n int) {
	t.Helper()
	w, err := gocv.VideoWriterFile(path, "MJPG", 25, 64, 64, true)
	if err != nil || !w.IsOpened() {
		t.Skipf("mjpeg writer unavailable: %v", err)
	}
	defer w.Close()

	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 64, 64))
		shade := uint8(i * 4)
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = shade, 255-shade, 128, 255
		}
		mat, err := gocv.ImageToMatRGB(img)
		require.NoError(t, err)
		require.NoError(t, w.Write(mat))
		mat.Close()
	}
}

func drain(c *Capture) (int, error) {
	n := 0
	for {
		if _, err := c.Next(); err != nil {
			return n, err
		}
		n++
	}
}

func TestCapture_CompleteFileEndsWithEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "full.avi")
	writeMJPEG(t, path, 60)

	c, err := OpenCapture(path)
	require.NoError(t, err)
	defer c.Close()

	n, err := drain(c)
	assert.ErrorIs(t, err, io.EOF)
	assert.InDelta(t, 60, n, 2)
}

func TestCapture_TruncatedFileFails(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.avi")
	writeMJPEG(t, full, 60)

	data, err := os.ReadFile(full)
	require.NoError(t, err)
	cut := filepath.Join(dir, "cut.avi")
	require.NoError(t, os.WriteFile(cut, data[:len(data)/2], 0o644))

	c, err := OpenCapture(cut)
	if err != nil {
		// Refusing to open is a failure too.
		return
	}
	defer c.Close()
	if c.total == 0 {
		t.Skip("backend reports no frame count for the truncated file")
	}

	n, err := drain(c)
	if c.total-n <= max(2, c.total/100) {
		t.Skipf("backend re-estimated the count (%d of %d decoded)", n, c.total)
	}
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTruncated), "got %v after %d of %d frames", err, n, c.total)
}

func TestMeasure(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 40, 40))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	lapVar, mean, err := Measure(flat)
	require.NoError(t, err)
	assert.InDelta(t, 0, lapVar, 1e-6)
	assert.InDelta(t, 128, mean, 0.5)

	board := image.NewGray(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			if (x+y)%2 == 0 {
				board.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	lapVar, mean, err = Measure(board)
	require.NoError(t, err)
	assert.InDelta(t, 1020*1020, lapVar, 1)
	assert.InDelta(t, 127.5, mean, 0.5)

	_, _, err = Measure(image.NewGray(image.Rect(0, 0, 0, 0)))
	assert.Error(t, err)
}
