// Package media decodes videos into RGBA frames and encodes frames back into videos.
package media

import (
	"context"
	"image"
)

// VideoInfo describes the video stream of a media file.
// Width and Height are display dimensions, after Rotation is applied.
type VideoInfo struct {
	Width    int
	Height   int
	// Rotation is the clockwise display rotation in degrees: 0, 90, 180 or 270.
	Rotation int
	FPS      float64
	Duration float64
	HasAudio bool
}

// WriterOpts configures video encoding.
type WriterOpts struct {
	// AudioSource, when set, is a media file whose first audio stream (if any)
	// is muxed into the output.
	AudioSource string
	// CRF is the x264 quality setting (lower = better). Default: 23.
	CRF int
	// Preset is the x264 speed preset. Default: "fast".
	Preset string
}

// FrameReader yields decoded frames in presentation order.
type FrameReader interface {
	// ReadFrame returns the next frame, or io.EOF once the stream is exhausted.
	ReadFrame(ctx context.Context) (*image.RGBA, error)
	Close() error
}

// FrameWriter encodes frames in the order they are written.
type FrameWriter interface {
	WriteFrame(ctx context.Context, frame *image.RGBA) error
	// Close flushes the encoder and finalizes the output file.
	Close() error
}

// Processor probes, decodes and encodes video files.
type Processor interface {
	// Probe returns the dimensions, frame rate and duration of the first
	// video stream in path.
	Probe(ctx context.Context, path string) (VideoInfo, error)

	// OpenReader starts decoding path into frames of info's dimensions.
	OpenReader(ctx context.Context, path string, info VideoInfo) (FrameReader, error)

	// OpenWriter starts encoding frames of info's dimensions and frame rate to output.
	OpenWriter(ctx context.Context, output string, info VideoInfo, opts WriterOpts) (FrameWriter, error)
}
