// Package compositor blurs rectangular regions of video frames over time windows.
//
// Each RegionTask is active between its start and end time, fades in and out
// over FadeDuration, and feathers its blur into the surrounding pixels over
// FeatherMargin. Tasks are applied to a frame in list order; where the
// footprints of two tasks intersect, the later task overwrites the earlier one.
package compositor

import (
	"errors"
	"fmt"
)

// Default task parameters.
const (
	DefaultFadeDuration  = 0.5
	DefaultKernelMax     = 41
	DefaultFeatherMargin = 60
)

// Static errors for task validation.
var (
	// ErrInvalidRegion is returned when a region has x2 <= x1 or y2 <= y1.
	ErrInvalidRegion = errors.New("compositor: region must satisfy x1 < x2 and y1 < y2")
	// ErrInvalidTimeWindow is returned when end time is not after start time.
	ErrInvalidTimeWindow = errors.New("compositor: end time must be after start time")
	// ErrInvalidFade is returned when the fade duration is not positive.
	ErrInvalidFade = errors.New("compositor: fade duration must be positive")
	// ErrInvalidKernelMax is returned when the maximum kernel size is not positive.
	ErrInvalidKernelMax = errors.New("compositor: kernel max must be positive")
	// ErrInvalidFeatherMargin is returned when the feather margin is negative.
	ErrInvalidFeatherMargin = errors.New("compositor: feather margin must not be negative")
	// ErrInvalidFrameRate is returned when fps is not positive.
	ErrInvalidFrameRate = errors.New("compositor: fps must be positive")
)

// Region is a rectangle in pixel coordinates. X2 and Y2 are exclusive.
type Region struct {
	X1 int `json:"x1" yaml:"x1"`
	Y1 int `json:"y1" yaml:"y1"`
	X2 int `json:"x2" yaml:"x2"`
	Y2 int `json:"y2" yaml:"y2"`
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}

// RegionTask describes one blurred region and the time window it is active in.
// Tasks are read-only once processing starts.
type RegionTask struct {
	Region        Region  `json:"region"`
	StartTime     float64 `json:"start_time"`
	EndTime       float64 `json:"end_time"`
	FadeDuration  float64 `json:"fade_duration"`
	KernelMax     int     `json:"kernel_max"`
	FeatherMargin int     `json:"feather_margin"`
}

// TaskOption overrides a default RegionTask parameter.
type TaskOption func(*RegionTask)

// WithFade sets the fade-in and fade-out duration in seconds.
func WithFade(seconds float64) TaskOption {
	return func(t *RegionTask) {
		t.FadeDuration = seconds
	}
}

// WithKernelMax sets the kernel size used at full strength.
func WithKernelMax(size int) TaskOption {
	return func(t *RegionTask) {
		t.KernelMax = size
	}
}

// WithFeatherMargin sets the width in pixels of the transition band around the region.
func WithFeatherMargin(px int) TaskOption {
	return func(t *RegionTask) {
		t.FeatherMargin = px
	}
}

// NewRegionTask creates a task with default fade, kernel and margin, then applies opts.
func NewRegionTask(region Region, start, end float64, opts ...TaskOption) RegionTask {
	t := RegionTask{
		Region:        region,
		StartTime:     start,
		EndTime:       end,
		FadeDuration:  DefaultFadeDuration,
		KernelMax:     DefaultKernelMax,
		FeatherMargin: DefaultFeatherMargin,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Validate checks the task configuration.
func (t RegionTask) Validate() error {
	if t.Region.X2 <= t.Region.X1 || t.Region.Y2 <= t.Region.Y1 {
		return fmt.Errorf("%w: got %s", ErrInvalidRegion, t.Region)
	}
	if t.EndTime <= t.StartTime {
		return fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidTimeWindow, t.StartTime, t.EndTime)
	}
	if t.FadeDuration <= 0 {
		return fmt.Errorf("%w: got %.3f", ErrInvalidFade, t.FadeDuration)
	}
	if t.KernelMax <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidKernelMax, t.KernelMax)
	}
	if t.FeatherMargin < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidFeatherMargin, t.FeatherMargin)
	}
	return nil
}

// ValidateTasks validates every task, reporting the index of the first invalid one.
func ValidateTasks(tasks []RegionTask) error {
	for i, t := range tasks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
	}
	return nil
}
