// Package bootstrap assembles the job service from configuration: storage,
// repository, media processor and processing options.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/maauso/regionblur/internal/config"
	"github.com/maauso/regionblur/internal/job"
	"github.com/maauso/regionblur/internal/media"
	"github.com/maauso/regionblur/internal/storage"
)

// Dependencies are the long-lived objects shared by the API server.
type Dependencies struct {
	VideoService *job.BlurVideoService
	Repository   job.Repository

	closers []io.Closer
}

// Close releases connections held by the dependencies.
func (d *Dependencies) Close() error {
	errs := make([]error, 0, len(d.closers))
	for _, c := range d.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// NewDependencies connects to the configured backends. Call Close when done.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	store, err := NewStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	repo, err := initRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Repository = repo
	if c, ok := repo.(io.Closer); ok {
		deps.closers = append(deps.closers, c)
	}

	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, media.WithFFprobePath(cfg.FFprobePath))

	deps.VideoService = NewVideoService(cfg, repo, processor, store, logger)
	return deps, nil
}

// NewVideoService builds a BlurVideoService with the processing options from cfg.
func NewVideoService(
	cfg *config.Config,
	repo job.Repository,
	processor media.Processor,
	store storage.Storage,
	logger *slog.Logger,
) *job.BlurVideoService {
	return job.NewBlurVideoService(
		repo,
		processor,
		store,
		logger,
		job.WithWorkers(cfg.FrameWorkers),
		job.WithBatchSize(cfg.FrameBatchSize),
		job.WithDebugOverlay(cfg.DebugOverlay),
		job.WithKeepAudio(cfg.KeepAudio),
		job.WithJobTimeout(cfg.JobTimeout),
	)
}

// initRepository selects Redis when configured and falls back to memory.
func initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (job.Repository, error) {
	if !cfg.RedisEnabled() {
		logger.Info("in-memory job repository configured")
		return job.NewMemoryRepository(job.WithMemoryTTL(cfg.JobTTL)), nil
	}

	repo, err := job.NewRedisRepository(ctx, job.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.JobTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis repository: %w", err)
	}
	logger.Info("redis job repository configured",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
		slog.Duration("ttl", cfg.JobTTL),
	)
	return repo, nil
}

// NewStorage creates the appropriate storage backend based on configuration.
func NewStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
