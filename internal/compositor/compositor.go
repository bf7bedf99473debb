package compositor

import (
	"fmt"
	"image"
	"log/slog"
)

// ProcessFrame applies tasks to frame in list order at time frameIndex/fps
// and returns how many tasks wrote to the frame.
//
// Tasks are composited sequentially: where two footprints intersect, the
// later task blurs and overwrites the output of the earlier one. Nothing is
// carried between calls, so frames may be processed in any order. A
// non-positive fps leaves the frame untouched.
func ProcessFrame(frame *image.RGBA, frameIndex int, fps float64, tasks []RegionTask) int {
	if !(fps > 0) {
		return 0
	}
	t := float64(frameIndex) / fps
	applied := 0
	for _, task := range tasks {
		if ApplyRegionBlur(frame, task, task.AlphaAt(t)) {
			applied++
		}
	}
	return applied
}

// Compositor applies a fixed, validated task list to frames of one video.
// It is safe for concurrent use on distinct frames.
type Compositor struct {
	tasks  []RegionTask
	fps    float64
	logger *slog.Logger
	debug  bool
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compositor) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebugOverlay outlines every blurred region in red and logs per-task
// alpha and kernel size at debug level.
func WithDebugOverlay(enabled bool) Option {
	return func(c *Compositor) {
		c.debug = enabled
	}
}

// New validates tasks and fps and returns a Compositor over a private copy of tasks.
func New(tasks []RegionTask, fps float64, opts ...Option) (*Compositor, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("%w: got %.3f", ErrInvalidFrameRate, fps)
	}
	if err := ValidateTasks(tasks); err != nil {
		return nil, err
	}

	c := &Compositor{
		tasks:  append([]RegionTask(nil), tasks...),
		fps:    fps,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FPS returns the frame rate used to convert frame indices to time.
func (c *Compositor) FPS() float64 {
	return c.fps
}

// Tasks returns a copy of the configured tasks.
func (c *Compositor) Tasks() []RegionTask {
	return append([]RegionTask(nil), c.tasks...)
}

// Process blurs frame in place and returns how many tasks were applied.
func (c *Compositor) Process(frame *image.RGBA, frameIndex int) int {
	if !c.debug {
		return ProcessFrame(frame, frameIndex, c.fps, c.tasks)
	}

	t := float64(frameIndex) / c.fps
	applied := 0
	for i, task := range c.tasks {
		alpha := task.AlphaAt(t)
		if !ApplyRegionBlur(frame, task, alpha) {
			if alpha > 0 {
				c.logger.Debug("region outside frame, skipped",
					slog.Int("frame", frameIndex),
					slog.Int("task", i),
					slog.String("region", task.Region.String()),
				)
			}
			continue
		}
		applied++

		inner, _ := ClampRegion(task.Region, frame.Bounds())
		drawRegionOutline(frame, inner)
		c.logger.Debug("region blurred",
			slog.Int("frame", frameIndex),
			slog.Float64("t", t),
			slog.Int("task", i),
			slog.String("region", task.Region.String()),
			slog.Float64("alpha", alpha),
			slog.Int("kernel", KernelSize(alpha, task.KernelMax)),
		)
	}
	return applied
}
