package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/your-org/facewatch/internal/matching"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Video    VideoConfig    `yaml:"video"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port           int     `yaml:"port"`
	APIKey         string  `yaml:"api_key"`
	MaxUploadMB    int     `yaml:"max_upload_mb"`
	AutoVerifyConf float64 `yaml:"auto_verify_confidence"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	Metric             string  `yaml:"metric"`
	BaseThreshold      float64 `yaml:"base_threshold"`
	EmbeddingDim       int     `yaml:"embedding_dim"`
	Padding            int     `yaml:"padding"`
	EyeCascade         string  `yaml:"eye_cascade"`
}

type VideoConfig struct {
	FrameSkip           int      `yaml:"frame_skip"`
	ConfidenceThreshold *float64 `yaml:"confidence_threshold"`
	CheckpointEvery     int      `yaml:"checkpoint_every"`
	DefaultFPS          float64  `yaml:"default_fps"`
	Decoder             string   `yaml:"decoder"`
	WorkerCount         int      `yaml:"worker_count"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies FACEWATCH_* overrides and defaults, and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 512
	}
	if cfg.Server.AutoVerifyConf == 0 {
		cfg.Server.AutoVerifyConf = 0.80
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "facewatch"
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.Metric == "" {
		cfg.Vision.Metric = string(matching.MetricCosine)
	}
	if cfg.Vision.BaseThreshold == 0 {
		if m, err := matching.ParseMetric(cfg.Vision.Metric); err == nil {
			cfg.Vision.BaseThreshold = matching.DefaultBaseThreshold(m)
		}
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 512
	}
	if cfg.Vision.Padding == 0 {
		cfg.Vision.Padding = 20
	}
	if cfg.Vision.EyeCascade == "" {
		cfg.Vision.EyeCascade = "models/haarcascade_eye.xml"
	}
	if cfg.Video.FrameSkip == 0 {
		cfg.Video.FrameSkip = 5
	}
	if cfg.Video.ConfidenceThreshold == nil {
		v := 0.70
		cfg.Video.ConfidenceThreshold = &v
	}
	if cfg.Video.CheckpointEvery == 0 {
		cfg.Video.CheckpointEvery = 50
	}
	if cfg.Video.DefaultFPS == 0 {
		cfg.Video.DefaultFPS = 30
	}
	if cfg.Video.Decoder == "" {
		cfg.Video.Decoder = "gocv"
	}
	if cfg.Video.WorkerCount == 0 {
		cfg.Video.WorkerCount = 2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := matching.ParseMetric(c.Vision.Metric); err != nil {
		errs = append(errs, fmt.Errorf("vision.metric: %w", err))
	}
	if c.Vision.BaseThreshold <= 0 {
		errs = append(errs, errors.New("vision.base_threshold must be positive"))
	}
	if c.Vision.EmbeddingDim < 0 {
		errs = append(errs, errors.New("vision.embedding_dim must not be negative"))
	}
	if c.Vision.Padding < 0 {
		errs = append(errs, errors.New("vision.padding must not be negative"))
	}
	if c.Vision.DetectionThreshold <= 0 || c.Vision.DetectionThreshold > 1 {
		errs = append(errs, errors.New("vision.detection_threshold must be in (0,1]"))
	}
	if c.Video.FrameSkip < 1 {
		errs = append(errs, errors.New("video.frame_skip must be at least 1"))
	}
	if t := c.Video.ConfidenceThreshold; t != nil && (*t < 0 || *t > 1) {
		errs = append(errs, errors.New("video.confidence_threshold must be in [0,1]"))
	}
	if c.Video.CheckpointEvery < 1 {
		errs = append(errs, errors.New("video.checkpoint_every must be at least 1"))
	}
	switch strings.ToLower(c.Video.Decoder) {
	case "gocv", "ffmpeg":
	default:
		errs = append(errs, fmt.Errorf("video.decoder: unknown decoder %q", c.Video.Decoder))
	}
	return errors.Join(errs...)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACEWATCH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACEWATCH_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FACEWATCH_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACEWATCH_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACEWATCH_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACEWATCH_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACEWATCH_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACEWATCH_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FACEWATCH_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACEWATCH_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACEWATCH_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACEWATCH_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FACEWATCH_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FACEWATCH_METRIC"); v != "" {
		cfg.Vision.Metric = v
	}
	if v := os.Getenv("FACEWATCH_BASE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Vision.BaseThreshold = f
		}
	}
	if v := os.Getenv("FACEWATCH_FRAME_SKIP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Video.FrameSkip = n
		}
	}
	if v := os.Getenv("FACEWATCH_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Video.ConfidenceThreshold = &f
		}
	}
	if v := os.Getenv("FACEWATCH_VIDEO_DECODER"); v != "" {
		cfg.Video.Decoder = v
	}
	if v := os.Getenv("FACEWATCH_VIDEO_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Video.WorkerCount = n
		}
	}
	if v := os.Getenv("FACEWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
