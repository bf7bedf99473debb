// Package config loads service settings from the environment and blur task
// lists from YAML or JSON files.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Validation errors. Validate may return several joined together.
var (
	ErrInvalidPort           = errors.New("config: PORT must be between 1 and 65535")
	ErrInvalidFrameWorkers   = errors.New("config: FRAME_WORKERS must not be negative")
	ErrInvalidFrameBatchSize = errors.New("config: FRAME_BATCH_SIZE must be positive")
	ErrInvalidMaxUpload      = errors.New("config: MAX_UPLOAD_MB must be positive")
	ErrS3RegionRequired      = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

// Config holds all service settings.
type Config struct {
	Port        int    `env:"PORT, default=8080" json:"port"`
	MaxUploadMB int    `env:"MAX_UPLOAD_MB, default=512" json:"max_upload_mb"`
	TempDir     string `env:"TEMP_DIR, default=/tmp/regionblur" json:"temp_dir"`

	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	KeepAudio   bool   `env:"KEEP_AUDIO, default=true" json:"keep_audio"`

	// FrameWorkers is the blur worker count; 0 means one per CPU.
	FrameWorkers   int  `env:"FRAME_WORKERS, default=0" json:"frame_workers"`
	FrameBatchSize int  `env:"FRAME_BATCH_SIZE, default=32" json:"frame_batch_size"`
	DebugOverlay   bool `env:"DEBUG_OVERLAY, default=false" json:"debug_overlay"`
	// JobTimeout bounds one job end to end; 0 means no limit.
	JobTimeout time.Duration `env:"JOB_TIMEOUT, default=0s" json:"job_timeout"`

	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"`

	RedisAddr     string        `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword string        `env:"REDIS_PASSWORD" json:"-"`
	RedisDB       int           `env:"REDIS_DB, default=0" json:"redis_db"`
	JobTTL        time.Duration `env:"JOB_TTL, default=24h" json:"job_ttl"`

	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // json | text
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // debug | info | warn | error
}

// S3Enabled reports whether finished videos can be uploaded to S3.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// RedisEnabled reports whether jobs are persisted in Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// Load reads the process environment and validates the result.
func Load() (*Config, error) {
	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom reads settings from l and validates the result.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every unusable setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidPort, c.Port))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidMaxUpload, c.MaxUploadMB))
	}
	if c.FrameWorkers < 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidFrameWorkers, c.FrameWorkers))
	}
	if c.FrameBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidFrameBatchSize, c.FrameBatchSize))
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		errs = append(errs, ErrS3RegionRequired)
	}
	return errors.Join(errs...)
}

// NewLogger returns a logger writing to stdout in the configured format and level.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger writing to w.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// LogValue groups the non-secret settings for structured logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("port", c.Port),
		slog.Int("max_upload_mb", c.MaxUploadMB),
		slog.String("temp_dir", c.TempDir),
		slog.String("ffmpeg_path", c.FFmpegPath),
		slog.Int("frame_workers", c.FrameWorkers),
		slog.Int("frame_batch_size", c.FrameBatchSize),
		slog.Bool("debug_overlay", c.DebugOverlay),
		slog.Bool("keep_audio", c.KeepAudio),
		slog.Duration("job_timeout", c.JobTimeout),
		slog.String("s3_bucket", c.S3Bucket),
		slog.String("s3_region", c.S3Region),
		slog.String("redis_addr", c.RedisAddr),
		slog.Duration("job_ttl", c.JobTTL),
		slog.String("log_format", c.LogFormat),
		slog.String("log_level", c.LogLevel),
	)
}

// String renders the non-secret settings.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	for i, a := range c.LogValue().Group() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", a.Key, a.Value)
	}
	b.WriteString("}")
	return b.String()
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
