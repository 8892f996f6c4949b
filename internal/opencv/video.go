package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/surveillance"
)

// URLSigner hands out short-lived read URLs for stored objects.
type URLSigner interface {
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

const urlExpiry = 2 * time.Hour

// Opener decodes stored videos straight from object storage.
type Opener struct {
	signer URLSigner
}

func NewOpener(signer URLSigner) *Opener {
	return &Opener{signer: signer}
}

func (o *Opener) Open(ctx context.Context, video *models.Video) (surveillance.FrameSource, error) {
	u, err := o.signer.PresignedGetURL(ctx, video.ObjectKey, urlExpiry)
	if err != nil {
		return nil, err
	}
	return OpenCapture(u)
}

// ErrTruncated reports a stream that stopped decoding well before the frame
// count its container declares.
var ErrTruncated = errors.New("video ended before its declared frame count")

// Capture is a FrameSource over a gocv VideoCapture.
type Capture struct {
	vc    *gocv.VideoCapture
	mat   gocv.Mat
	total int
	read  int
}

// OpenCapture opens a file path or URL.
func OpenCapture(src string) (*Capture, error) {
	vc, err := gocv.OpenVideoCapture(src)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open video: cannot read %s", redact(src))
	}
	c := &Capture{vc: vc, mat: gocv.NewMat()}
	c.total = c.frameCount()
	return c, nil
}

// Next returns io.EOF once the stream is exhausted. A read failure well short
// of the declared frame count is a decode error, not the end of the video.
func (c *Capture) Next() (image.Image, error) {
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, endOfStream(c.read, c.total)
	}
	c.read++
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// endOfStream decides whether stopping after read frames is a clean end.
// total <= 0 means the container gave no count and any stop is accepted.
// Frame counts in headers are estimates, so a small shortfall is tolerated.
func endOfStream(read, total int) error {
	if total <= 0 {
		return io.EOF
	}
	tolerance := max(2, total/100)
	if total-read > tolerance {
		return fmt.Errorf("decode frame %d of %d: %w", read+1, total, ErrTruncated)
	}
	return io.EOF
}

// frameCount returns 0 when the container does not report a count.
func (c *Capture) frameCount() int {
	n := c.vc.Get(gocv.VideoCaptureFrameCount)
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return 0
	}
	return int(n)
}

// FPS returns 0 when the container does not report a rate.
func (c *Capture) FPS() float64 {
	fps := c.vc.Get(gocv.VideoCaptureFPS)
	if math.IsNaN(fps) || fps <= 0 {
		return 0
	}
	return fps
}

func (c *Capture) Meta() models.VideoMeta {
	meta := models.VideoMeta{
		FPS:         c.FPS(),
		TotalFrames: c.total,
		Width:       int(c.vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:      int(c.vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	if meta.FPS > 0 && meta.TotalFrames > 0 {
		meta.DurationSeconds = math.Round(float64(meta.TotalFrames)/meta.FPS*100) / 100
	}
	return meta
}

func (c *Capture) Close() error {
	c.mat.Close()
	return c.vc.Close()
}

// Inspect reads container metadata without decoding frames.
func Inspect(src string) (models.VideoMeta, error) {
	c, err := OpenCapture(src)
	if err != nil {
		return models.VideoMeta{}, err
	}
	defer c.Close()
	return c.Meta(), nil
}

// redact drops the query string so presigned credentials stay out of logs.
func redact(src string) string {
	base, _, _ := strings.Cut(src, "?")
	return base
}
