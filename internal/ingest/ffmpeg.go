// Package ingest decodes stored videos by piping them through FFmpeg.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/your-org/facewatch/internal/imaging"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/surveillance"
)

// URLSigner hands out short-lived read URLs for stored objects.
type URLSigner interface {
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

const urlExpiry = 2 * time.Hour

// Opener starts an FFmpeg decode for each stored video.
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
	fps := video.FPS
	if fps <= 0 {
		if meta, err := Inspect(ctx, u); err == nil {
			fps = meta.FPS
		} else {
			slog.Warn("ffprobe failed, using default fps", "video_id", video.ID, "error", err)
		}
	}
	return StartSource(ctx, u, fps)
}

// FFmpegSource yields every decoded frame of a video, in order.
type FFmpegSource struct {
	fps    float64
	frames chan []byte
	errc   chan error
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

// StartSource launches FFmpeg on src. The process is stopped by Close or by
// cancelling ctx.
func StartSource(ctx context.Context, src string, fps float64) (*FFmpegSource, error) {
	ctx, cancel := context.WithCancel(ctx)

	args := []string{"-hide_banner", "-loglevel", "warning"}
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000", // 10s (microseconds)
		)
	}
	args = append(args,
		"-i", src,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	s := &FFmpegSource{
		fps:    fps,
		frames: make(chan []byte, 4),
		errc:   make(chan error, 1),
		cancel: cancel,
	}

	go func() {
		defer close(s.frames)
		err := readJPEGFrames(ctx, stdout, func(frame []byte) error {
			select {
			case s.frames <- frame:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if waitErr := cmd.Wait(); err == nil && waitErr != nil && ctx.Err() == nil {
			err = fmt.Errorf("ffmpeg exited: %w", waitErr)
		}
		s.errc <- err
	}()

	return s, nil
}

// Next returns io.EOF after the last frame, or the decoder failure.
func (s *FFmpegSource) Next() (image.Image, error) {
	frame, ok := <-s.frames
	if !ok {
		s.once.Do(func() { s.err = <-s.errc })
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	return imaging.Decode(frame)
}

func (s *FFmpegSource) FPS() float64 { return s.fps }

func (s *FFmpegSource) Close() error {
	s.cancel()
	for range s.frames {
	}
	return nil
}

var errNoFrames = errors.New("no frames received from ffmpeg")

// readJPEGFrames splits a stream of concatenated JPEG images.
// Tolerates initial EOF while ffmpeg is still connecting (up to 5 seconds).
func readJPEGFrames(ctx context.Context, r io.Reader, callback func([]byte) error) error {
	reader := bufio.NewReaderSize(r, 512*1024) // 512KB buffer
	framesRead := 0
	const maxStartupRetries = 50 // 50 * 100ms = 5s max wait for first frame
	startupRetries := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// JPEG start marker: FF D8
		err := findJPEGStart(reader)
		if err != nil {
			if err == io.EOF {
				if framesRead == 0 && startupRetries < maxStartupRetries {
					startupRetries++
					time.Sleep(100 * time.Millisecond)
					continue
				}
				if framesRead > 0 {
					return nil
				}
				return errNoFrames
			}
			return err
		}

		// JPEG end marker: FF D9
		frameData, err := readUntilJPEGEnd(reader)
		if err != nil {
			if err == io.EOF && framesRead > 0 {
				return nil // stream ended mid-frame
			}
			return err
		}

		framesRead++
		if err := callback(frameData); err != nil {
			return err
		}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		// Safety: max 10MB per frame
		if len(data) > 10*1024*1024 {
			return nil, fmt.Errorf("jpeg frame too large: %s bytes", strconv.Itoa(len(data)))
		}
	}
}
