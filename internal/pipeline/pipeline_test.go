package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource yields frames from memory.
type sliceSource struct {
	frames []*image.RGBA
	next   int
	failAt int
}

func (s *sliceSource) ReadFrame(_ context.Context) (*image.RGBA, error) {
	if s.failAt > 0 && s.next == s.failAt {
		return nil, errors.New("decoder died")
	}
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

// sliceSink collects frames in memory.
type sliceSink struct {
	frames []*image.RGBA
	err    error
}

func (s *sliceSink) WriteFrame(_ context.Context, frame *image.RGBA) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

// stampProcessor writes the frame index into the first pixel.
type stampProcessor struct {
	mu      sync.Mutex
	indices []int
	calls   atomic.Int64
}

func (p *stampProcessor) Process(frame *image.RGBA, frameIndex int) int {
	frame.Pix[0] = uint8(frameIndex)
	p.calls.Add(1)
	p.mu.Lock()
	p.indices = append(p.indices, frameIndex)
	p.mu.Unlock()
	if frameIndex%2 == 0 {
		return 1
	}
	return 0
}

func newFrames(n int) []*image.RGBA {
	frames := make([]*image.RGBA, n)
	for i := range frames {
		frames[i] = image.NewRGBA(image.Rect(0, 0, 4, 4))
		frames[i].Pix[1] = uint8(i)
	}
	return frames
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(&stampProcessor{})
	assert.Greater(t, r.workers, 0)
	assert.Equal(t, DefaultBatchSize, r.batchSize)
	assert.NotNil(t, r.logger)

	r = NewRunner(&stampProcessor{}, WithWorkers(3), WithBatchSize(7), WithWorkers(0), WithBatchSize(-1))
	assert.Equal(t, 3, r.workers)
	assert.Equal(t, 7, r.batchSize)
}

func TestRunner_Run_PreservesOrder(t *testing.T) {
	for _, tc := range []struct {
		name      string
		frames    int
		workers   int
		batchSize int
	}{
		{"single worker", 10, 1, 4},
		{"parallel uneven batches", 37, 8, 5},
		{"batch larger than stream", 3, 4, 32},
		{"empty stream", 0, 4, 8},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := &sliceSource{frames: newFrames(tc.frames)}
			dst := &sliceSink{}
			proc := &stampProcessor{}

			var progress []int
			r := NewRunner(proc,
				WithWorkers(tc.workers),
				WithBatchSize(tc.batchSize),
				WithProgress(func(done int) { progress = append(progress, done) }),
			)

			stats, err := r.Run(context.Background(), src, dst)
			require.NoError(t, err)

			assert.Equal(t, tc.frames, stats.Frames)
			assert.Equal(t, (tc.frames+1)/2, stats.RegionsApplied)
			assert.Equal(t, int64(tc.frames), proc.calls.Load())
			require.Len(t, dst.frames, tc.frames)
			for i, f := range dst.frames {
				assert.Equal(t, uint8(i), f.Pix[0], "frame %d stamped with its index", i)
				assert.Equal(t, uint8(i), f.Pix[1], "frame %d written in order", i)
			}
			if tc.frames > 0 {
				assert.Equal(t, tc.frames, progress[len(progress)-1])
			} else {
				assert.Empty(t, progress)
			}
		})
	}
}

func TestRunner_Run_ReadError(t *testing.T) {
	src := &sliceSource{frames: newFrames(10), failAt: 6}
	dst := &sliceSink{}
	r := NewRunner(&stampProcessor{}, WithBatchSize(4))

	stats, err := r.Run(context.Background(), src, dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read frame 6")
	assert.Equal(t, 4, stats.Frames)
	assert.Len(t, dst.frames, 4)
}

func TestRunner_Run_WriteError(t *testing.T) {
	sinkErr := errors.New("disk full")
	r := NewRunner(&stampProcessor{}, WithBatchSize(4))

	_, err := r.Run(context.Background(), &sliceSource{frames: newFrames(5)}, &sliceSink{err: sinkErr})
	assert.ErrorIs(t, err, sinkErr)
}

func TestRunner_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc := &stampProcessor{}
	r := NewRunner(proc, WithWorkers(2), WithBatchSize(4))

	_, err := r.Run(ctx, &sliceSource{frames: newFrames(8)}, &sliceSink{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), proc.calls.Load())
}
