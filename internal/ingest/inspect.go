package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/your-org/facewatch/internal/models"
)

type metaOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Inspect runs ffprobe against src and reports the first video stream.
func Inspect(ctx context.Context, src string) (models.VideoMeta, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames:format=duration",
		"-of", "json",
		src,
	).Output()
	if err != nil {
		return models.VideoMeta{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseMeta(out)
}

func parseMeta(data []byte) (models.VideoMeta, error) {
	var p metaOutput
	if err := json.Unmarshal(data, &p); err != nil {
		return models.VideoMeta{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(p.Streams) == 0 {
		return models.VideoMeta{}, fmt.Errorf("ffprobe: no video stream")
	}
	st := p.Streams[0]

	meta := models.VideoMeta{Width: st.Width, Height: st.Height}
	meta.FPS = parseRate(st.AvgFrameRate)
	if meta.FPS == 0 {
		meta.FPS = parseRate(st.RFrameRate)
	}
	meta.DurationSeconds, _ = strconv.ParseFloat(p.Format.Duration, 64)
	meta.DurationSeconds = math.Round(meta.DurationSeconds*100) / 100
	if n, err := strconv.Atoi(st.NbFrames); err == nil {
		meta.TotalFrames = n
	} else if meta.FPS > 0 {
		meta.TotalFrames = int(math.Round(meta.DurationSeconds * meta.FPS))
	}
	return meta, nil
}

// parseRate reads ffprobe rates such as "30000/1001" or "25". Unknown rates
// ("0/0") give 0.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
