package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrInvalidDimensions is returned when the provided dimensions are not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")
	// ErrInvalidFrameRate is returned when a frame rate is missing or not positive.
	ErrInvalidFrameRate = errors.New("invalid frame rate")
	// ErrNoVideoStream is returned when a file has no video stream.
	ErrNoVideoStream = errors.New("no video stream found")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrTruncatedFrame is returned when the decoder stops in the middle of a frame.
	ErrTruncatedFrame = errors.New("truncated frame")
	// ErrFrameSize is returned when a frame does not match the encoder dimensions.
	ErrFrameSize = errors.New("frame size does not match output")
)

const (
	defaultCRF    = 23
	defaultPreset = "fast"
)

// Compile-time check that FFmpegProcessor implements Processor.
var _ Processor = (*FFmpegProcessor)(nil)

// FFmpegProcessor implements Processor using the ffmpeg and ffprobe CLIs.
// Frames travel through pipes as raw RGBA.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// ProcessorOption configures an FFmpegProcessor.
type ProcessorOption func(*FFmpegProcessor)

// WithFFprobePath overrides the ffprobe binary.
func WithFFprobePath(path string) ProcessorOption {
	return func(p *FFmpegProcessor) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string, opts ...ProcessorOption) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &FFmpegProcessor{ffmpegPath: ffmpegPath, ffprobePath: "ffprobe"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// probeOutput mirrors the parts of `ffprobe -of json` we read.
type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation *float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe implements Processor.Probe using ffprobe's JSON output.
func (p *FFmpegProcessor) Probe(ctx context.Context, path string) (VideoInfo, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height,avg_frame_rate,r_frame_rate:stream_tags=rotate:stream_side_data=rotation",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return VideoInfo{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return VideoInfo{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	return parseProbeOutput(stdout.Bytes())
}

// parseProbeOutput extracts VideoInfo from ffprobe JSON.
func parseProbeOutput(data []byte) (VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info VideoInfo
	found := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if found {
				continue
			}
			found = true
			info.Width, info.Height = s.Width, s.Height

			// The display matrix rotation is counter-clockwise; the legacy
			// rotate tag is clockwise.
			rotation := 0.0
			if r, err := strconv.ParseFloat(strings.TrimSpace(s.Tags.Rotate), 64); err == nil {
				rotation = r
			}
			for _, sd := range s.SideDataList {
				if sd.Rotation != nil {
					rotation = -*sd.Rotation
					break
				}
			}
			info.Rotation = normalizeRotation(rotation)
			if info.Rotation == 90 || info.Rotation == 270 {
				info.Width, info.Height = info.Height, info.Width
			}

			fps, err := parseFrameRate(s.AvgFrameRate)
			if err != nil {
				fps, err = parseFrameRate(s.RFrameRate)
			}
			if err != nil {
				return VideoInfo{}, err
			}
			info.FPS = fps
		case "audio":
			info.HasAudio = true
		}
	}
	if !found {
		return VideoInfo{}, ErrNoVideoStream
	}
	if info.Width <= 0 || info.Height <= 0 {
		return VideoInfo{}, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, info.Width, info.Height)
	}

	if d := strings.TrimSpace(out.Format.Duration); d != "" && d != "N/A" {
		duration, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return VideoInfo{}, fmt.Errorf("parse duration: %w", err)
		}
		info.Duration = duration
	}

	return info, nil
}

// normalizeRotation maps degrees to the nearest of 0, 90, 180 and 270.
func normalizeRotation(deg float64) int {
	r := int(math.Round(deg/90)) * 90
	return ((r % 360) + 360) % 360
}

// parseFrameRate parses ffprobe rates such as "30/1", "30000/1001" or "25".
func parseFrameRate(rate string) (float64, error) {
	rate = strings.TrimSpace(rate)
	num, den, isFraction := strings.Cut(rate, "/")

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrameRate, rate)
	}
	d := 1.0
	if isFraction {
		d, err = strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFrameRate, rate)
		}
	}
	if n <= 0 || d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrameRate, rate)
	}
	return n / d, nil
}

// OpenReader implements Processor.OpenReader.
func (p *FFmpegProcessor) OpenReader(ctx context.Context, path string, info VideoInfo) (FrameReader, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, info.Width, info.Height)
	}

	args := readerArgs(path)
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &ffmpegReader{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		args:   args,
		width:  info.Width,
		height: info.Height,
	}, nil
}

// readerArgs leaves ffmpeg's autorotation on, so frames come out in display
// orientation and match the dimensions reported by Probe.
func readerArgs(path string) []string {
	return []string{
		"-v", "error",
		"-i", path,
		"-map", "0:v:0", // First video stream only
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
}

// OpenWriter implements Processor.OpenWriter.
func (p *FFmpegProcessor) OpenWriter(ctx context.Context, output string, info VideoInfo, opts WriterOpts) (FrameWriter, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, info.Width, info.Height)
	}
	if info.FPS <= 0 {
		return nil, fmt.Errorf("%w: %.3f", ErrInvalidFrameRate, info.FPS)
	}

	args := writerArgs(output, info, opts)
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin pipe: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &ffmpegWriter{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		args:   args,
		width:  info.Width,
		height: info.Height,
	}, nil
}

func writerArgs(output string, info VideoInfo, opts WriterOpts) []string {
	crf := opts.CRF
	if crf <= 0 {
		crf = defaultCRF
	}
	preset := opts.Preset
	if preset == "" {
		preset = defaultPreset
	}

	args := []string{
		"-y", // Overwrite output file without asking
		"-v", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"-r", strconv.FormatFloat(info.FPS, 'f', -1, 64),
		"-i", "pipe:0",
	}
	if opts.AudioSource != "" {
		args = append(args,
			"-i", opts.AudioSource,
			"-map", "0:v:0",
			"-map", "1:a:0?", // Optional: sources without audio still encode
			"-c:a", "aac",
			"-b:a", "128k",
			"-shortest",
		)
	}
	args = append(args,
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2", // yuv420p needs even dimensions
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", "yuv420p",
		output,
	)
	return args
}

// ffmpegReader reads raw RGBA frames from an ffmpeg decode process.
type ffmpegReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	args   []string
	width  int
	height int
	eof    bool
	closed bool
}

func (r *ffmpegReader) ReadFrame(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if r.eof {
		return nil, io.EOF
	}

	frame := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	if _, err := io.ReadFull(r.stdout, frame.Pix); err != nil {
		r.eof = true
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %w", ErrTruncatedFrame, err)
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return frame, nil
}

// Close stops the decoder. Errors from ffmpeg are only reported when the
// whole stream was consumed; closing early always kills the process.
// Close is idempotent.
func (r *ffmpegReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	if !r.eof && r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
		_ = r.cmd.Wait()
		return nil
	}
	if err := r.cmd.Wait(); err != nil {
		return &FFmpegError{Args: r.args, Stderr: r.stderr.String(), Err: err}
	}
	return nil
}

// ffmpegWriter pipes raw RGBA frames into an ffmpeg encode process.
type ffmpegWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	args   []string
	width  int
	height int
	closed bool
}

func (w *ffmpegWriter) WriteFrame(ctx context.Context, frame *image.RGBA) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if w.closed {
		return fmt.Errorf("write frame: %w", io.ErrClosedPipe)
	}

	b := frame.Bounds()
	if b.Dx() != w.width || b.Dy() != w.height {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameSize, b.Dx(), b.Dy(), w.width, w.height)
	}

	rowLen := w.width * 4
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := frame.PixOffset(b.Min.X, y)
		if _, err := w.stdin.Write(frame.Pix[off : off+rowLen]); err != nil {
			// The encoder exited; reap it so stderr is complete.
			w.closed = true
			_ = w.stdin.Close()
			_ = w.cmd.Wait()
			return &FFmpegError{Args: w.args, Stderr: w.stderr.String(), Err: err}
		}
	}
	return nil
}

func (w *ffmpegWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	closeErr := w.stdin.Close()
	if err := w.cmd.Wait(); err != nil {
		return &FFmpegError{Args: w.args, Stderr: w.stderr.String(), Err: err}
	}
	if closeErr != nil {
		return fmt.Errorf("close ffmpeg stdin: %w", closeErr)
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
