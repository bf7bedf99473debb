// Package pipeline streams frames from a source through a frame processor
// into a sink, processing each batch in parallel while preserving order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize is the number of frames held in memory per batch.
	DefaultBatchSize = 32
)

// Source yields frames in presentation order. ReadFrame returns io.EOF
// once the stream is exhausted.
type Source interface {
	ReadFrame(ctx context.Context) (*image.RGBA, error)
}

// Sink consumes frames in presentation order.
type Sink interface {
	WriteFrame(ctx context.Context, frame *image.RGBA) error
}

// FrameProcessor modifies a frame in place and reports how many regions it touched.
// Process must be safe for concurrent use on distinct frames.
type FrameProcessor interface {
	Process(frame *image.RGBA, frameIndex int) int
}

// ProgressFunc is called after each batch has been written.
type ProgressFunc func(framesDone int)

// Stats summarizes a completed run.
type Stats struct {
	Frames         int
	RegionsApplied int
	Elapsed        time.Duration
}

// Runner drives frames from a Source through a FrameProcessor into a Sink.
type Runner struct {
	processor FrameProcessor
	workers   int
	batchSize int
	logger    *slog.Logger
	progress  ProgressFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the number of frames processed concurrently.
// Values below 1 select runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithBatchSize sets how many frames are read before processing starts.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithLogger sets the logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithProgress registers a callback invoked after each written batch.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) {
		r.progress = fn
	}
}

// NewRunner creates a Runner around processor.
func NewRunner(processor FrameProcessor, opts ...Option) *Runner {
	r := &Runner{
		processor: processor,
		workers:   runtime.NumCPU(),
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads every frame from src, processes it and writes it to dst.
// Frames are written in the order they were read.
func (r *Runner) Run(ctx context.Context, src Source, dst Sink) (Stats, error) {
	start := time.Now()
	stats := Stats{}
	batch := make([]*image.RGBA, 0, r.batchSize)

	for {
		batch = batch[:0]
		done := false
		for len(batch) < r.batchSize {
			frame, err := src.ReadFrame(ctx)
			if errors.Is(err, io.EOF) {
				done = true
				break
			}
			if err != nil {
				return stats, fmt.Errorf("read frame %d: %w", stats.Frames+len(batch), err)
			}
			batch = append(batch, frame)
		}

		if len(batch) > 0 {
			applied, err := r.processBatch(ctx, batch, stats.Frames)
			if err != nil {
				return stats, err
			}
			stats.RegionsApplied += applied

			for i, frame := range batch {
				if err := dst.WriteFrame(ctx, frame); err != nil {
					return stats, fmt.Errorf("write frame %d: %w", stats.Frames+i, err)
				}
			}
			stats.Frames += len(batch)

			if r.progress != nil {
				r.progress(stats.Frames)
			}
			r.logger.Debug("batch written", "frames_done", stats.Frames, "batch", len(batch))
		}

		if done {
			break
		}
	}

	stats.Elapsed = time.Since(start)
	r.logger.Info("frames processed",
		"frames", stats.Frames,
		"regions_applied", stats.RegionsApplied,
		"elapsed", stats.Elapsed,
	)
	return stats, nil
}

// processBatch runs the processor over batch, where batch[0] has index base.
func (r *Runner) processBatch(ctx context.Context, batch []*image.RGBA, base int) (int, error) {
	applied := make([]int, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, frame := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("context cancelled: %w", err)
			}
			applied[i] = r.processor.Process(frame, base+i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range applied {
		total += n
	}
	return total, nil
}
