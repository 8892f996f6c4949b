package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  host: db\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, "cosine", cfg.Vision.Metric)
	assert.Equal(t, 0.40, cfg.Vision.BaseThreshold)
	assert.Equal(t, 512, cfg.Vision.EmbeddingDim)
	assert.Equal(t, 20, cfg.Vision.Padding)
	assert.Equal(t, 5, cfg.Video.FrameSkip)
	require.NotNil(t, cfg.Video.ConfidenceThreshold)
	assert.Equal(t, 0.70, *cfg.Video.ConfidenceThreshold)
	assert.Equal(t, 50, cfg.Video.CheckpointEvery)
	assert.Equal(t, "gocv", cfg.Video.Decoder)
	assert.Equal(t, 0.80, cfg.Server.AutoVerifyConf)
}

func TestParse_ZeroConfidenceThresholdKept(t *testing.T) {
	cfg, err := Parse([]byte("video:\n  confidence_threshold: 0\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Video.ConfidenceThreshold)
	assert.Equal(t, 0.0, *cfg.Video.ConfidenceThreshold)
}

func TestParse_MetricSelectsBaseThreshold(t *testing.T) {
	cfg, err := Parse([]byte("vision:\n  metric: euclidean\n"))
	require.NoError(t, err)
	assert.Equal(t, 23.56, cfg.Vision.BaseThreshold)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("FACEWATCH_FRAME_SKIP", "10")
	t.Setenv("FACEWATCH_METRIC", "euclidean_l2")
	t.Setenv("FACEWATCH_API_KEY", "secret")
	t.Setenv("FACEWATCH_SERVER_PORT", "not-a-number")

	cfg, err := Parse([]byte("video:\n  frame_skip: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Video.FrameSkip)
	assert.Equal(t, "euclidean_l2", cfg.Vision.Metric)
	assert.Equal(t, 0.86, cfg.Vision.BaseThreshold)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"metric":     "vision:\n  metric: manhattan\n",
		"frame skip": "video:\n  frame_skip: -1\n",
		"confidence": "video:\n  confidence_threshold: 1.5\n",
		"decoder":    "video:\n  decoder: vlc\n",
		"yaml":       "video: [",
	}
	for name, doc := range tests {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, Name: "n", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@h:5432/n?sslmode=disable", d.DSN())
}
