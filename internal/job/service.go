package job

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/maauso/regionblur/internal/compositor"
	"github.com/maauso/regionblur/internal/media"
	"github.com/maauso/regionblur/internal/pipeline"
	"github.com/maauso/regionblur/internal/storage"
)

// Service errors.
var (
	// ErrNoInput is returned when neither an uploaded video nor a local path is given.
	ErrNoInput = errors.New("no input video provided")
	// ErrInvalidVideoData is returned when the uploaded video is not valid base64.
	ErrInvalidVideoData = errors.New("invalid base64 video data")
	// ErrNoTasks is returned when a job has no blur tasks.
	ErrNoTasks = errors.New("at least one blur task is required")
	// ErrJobNotCancellable is returned when cancelling a finished job, or a running
	// job that another worker owns.
	ErrJobNotCancellable = errors.New("job is not cancellable")
)

// BlurVideoInput contains the input parameters for a region blur job.
type BlurVideoInput struct {
	// VideoBase64 is the base64-encoded source video. Takes precedence over VideoPath.
	VideoBase64 string
	// VideoPath is a local source video path.
	VideoPath string
	// Tasks are the region blur tasks applied to every frame, in order.
	Tasks []compositor.RegionTask
	// OutputPath, when set, is where the result is written instead of a temp file.
	OutputPath string
	// PushToS3 indicates whether to upload the final video to S3.
	PushToS3 bool
}

// BlurVideoOutput contains the result of a region blur job.
type BlurVideoOutput struct {
	// JobID is the unique identifier for the created job.
	JobID string
	// Status is the final job status.
	Status Status
	// VideoPath is the local path to the output video.
	VideoPath string
	// VideoURL is the S3 URL of the output video (if pushed to S3).
	VideoURL string
	// Frames is the number of frames written.
	Frames int
	// Error contains any error message if processing failed.
	Error string
}

// BlurVideoService orchestrates the region blur workflow:
// probe the input, decode frames, blur regions, encode the result and
// optionally push it to S3, persisting job state along the way.
type BlurVideoService struct {
	repo      Repository
	processor media.Processor
	storage   storage.Storage
	logger    *slog.Logger

	workers      int
	batchSize    int
	debugOverlay bool
	keepAudio    bool
	timeout      time.Duration

	// mu serializes claiming a job for processing with cancelling a job
	// that has no worker, so neither overwrites the other's saved status.
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// ServiceOption configures a BlurVideoService.
type ServiceOption func(*BlurVideoService)

// WithWorkers sets how many frames are blurred concurrently.
func WithWorkers(n int) ServiceOption {
	return func(s *BlurVideoService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithBatchSize sets how many decoded frames are held in memory at once.
func WithBatchSize(n int) ServiceOption {
	return func(s *BlurVideoService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithDebugOverlay outlines each blurred region in the output and logs per-frame details.
func WithDebugOverlay(enabled bool) ServiceOption {
	return func(s *BlurVideoService) {
		s.debugOverlay = enabled
	}
}

// WithKeepAudio copies the input audio stream into the output.
func WithKeepAudio(enabled bool) ServiceOption {
	return func(s *BlurVideoService) {
		s.keepAudio = enabled
	}
}

// WithJobTimeout bounds the processing time of a single job. Zero disables the limit.
func WithJobTimeout(d time.Duration) ServiceOption {
	return func(s *BlurVideoService) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// NewBlurVideoService creates a new BlurVideoService.
func NewBlurVideoService(
	repo Repository,
	processor media.Processor,
	store storage.Storage,
	logger *slog.Logger,
	opts ...ServiceOption,
) *BlurVideoService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &BlurVideoService{
		repo:      repo,
		processor: processor,
		storage:   store,
		logger:    logger,
		batchSize: pipeline.DefaultBatchSize,
		keepAudio: true,
		cancels:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob validates the input, stores the uploaded video if any and
// persists a new job in IN_QUEUE status.
func (s *BlurVideoService) CreateJob(ctx context.Context, input BlurVideoInput) (*Job, error) {
	if len(input.Tasks) == 0 {
		return nil, ErrNoTasks
	}
	if err := compositor.ValidateTasks(input.Tasks); err != nil {
		return nil, err
	}

	job := New()
	job.SetTasks(input.Tasks)
	job.PushToS3 = input.PushToS3
	job.OutputVideoPath = input.OutputPath

	switch {
	case input.VideoBase64 != "":
		data, err := base64.StdEncoding.DecodeString(input.VideoBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidVideoData, err)
		}
		path, err := s.storage.SaveTemp(ctx, "input_"+job.ID, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("save input video: %w", err)
		}
		job.InputVideoPath = path
		job.OwnsInput = true
	case input.VideoPath != "":
		job.InputVideoPath = input.VideoPath
	default:
		return nil, ErrNoInput
	}

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.Int("tasks", len(input.Tasks)),
		slog.Bool("push_to_s3", input.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		if job.OwnsInput {
			_ = s.storage.CleanupTemp(ctx, []string{job.InputVideoPath})
		}
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *BlurVideoService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all known jobs, newest first.
func (s *BlurVideoService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// CancelJob stops a queued or running job. A RUNNING job without a worker
// in this service cannot be cancelled here.
func (s *BlurVideoService) CancelJob(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, ErrJobNotCancellable
	}

	if cancel, running := s.cancels[id]; running {
		// The worker observes the cancellation and records CANCELLED itself.
		cancel()
		s.logger.Info("cancellation requested", slog.String("job_id", id))
		return job, nil
	}
	if job.Status != StatusInQueue {
		return nil, ErrJobNotCancellable
	}

	if err := job.Cancel(); err != nil {
		return nil, ErrJobNotCancellable
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("job cancelled", slog.String("job_id", id))
	return job, nil
}

// DeleteJob removes a finished job and its local files.
func (s *BlurVideoService) DeleteJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return fmt.Errorf("delete job %s: %w", id, ErrInvalidTransition)
	}

	var paths []string
	if job.OutputVideoPath != "" {
		paths = append(paths, job.OutputVideoPath)
	}
	if job.OwnsInput {
		paths = append(paths, job.InputVideoPath)
	}
	if err := s.storage.CleanupTemp(ctx, paths); err != nil {
		s.logger.Warn("failed to remove job files",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
	}
	return s.repo.Delete(ctx, id)
}

// Process creates a job and runs it to completion synchronously.
func (s *BlurVideoService) Process(ctx context.Context, input BlurVideoInput) (*BlurVideoOutput, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}

	processErr := s.ProcessExistingJob(ctx, job.ID)

	final, err := s.repo.FindByID(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	out := &BlurVideoOutput{
		JobID:     final.ID,
		Status:    final.Status,
		VideoPath: final.OutputVideoPath,
		VideoURL:  final.VideoURL,
		Frames:    final.FramesDone,
		Error:     final.Error,
	}
	return out, processErr
}

// ProcessExistingJob runs a queued job: it decodes the input, blurs every
// frame and encodes the result. The job ends COMPLETED, FAILED, CANCELLED or
// TIMED_OUT; the returned error explains any outcome other than COMPLETED.
func (s *BlurVideoService) ProcessExistingJob(ctx context.Context, jobID string) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	job, err := s.claim(ctx, jobID, cancel)
	if err != nil {
		return err
	}
	defer func() {
		s.mu.Lock()
		delete(s.cancels, jobID)
		s.mu.Unlock()
	}()

	logger := s.logger.With(slog.String("job_id", jobID))
	logger.Info("processing job", slog.String("input", job.InputVideoPath), slog.Int("tasks", len(job.Tasks)))

	requestedOutput := job.OutputVideoPath
	runErr := s.run(runCtx, job, logger)

	// Persist the final state even if the caller's context is gone.
	saveCtx := context.WithoutCancel(ctx)
	var leftovers []string
	if job.OwnsInput {
		leftovers = append(leftovers, job.InputVideoPath)
	}
	if runErr != nil && requestedOutput == "" && job.OutputVideoPath != "" {
		leftovers = append(leftovers, job.OutputVideoPath)
		job.ClearOutput()
	}
	if err := s.storage.CleanupTemp(saveCtx, leftovers); err != nil {
		logger.Warn("failed to remove temporary files", slog.String("error", err.Error()))
	}

	switch {
	case runErr == nil:
		_ = job.Complete()
		logger.Info("job completed",
			slog.Int("frames", job.FramesDone),
			slog.String("output", job.OutputVideoPath),
			slog.String("video_url", job.VideoURL),
		)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		_ = job.Timeout()
		job.Error = fmt.Sprintf("job exceeded timeout of %s", s.timeout)
		logger.Warn("job timed out", slog.Duration("timeout", s.timeout))
	case errors.Is(runCtx.Err(), context.Canceled):
		_ = job.Cancel()
		logger.Info("job cancelled")
	default:
		_ = job.Fail(runErr.Error())
		logger.Error("job failed", slog.String("error", runErr.Error()))
	}

	if err := s.repo.Save(saveCtx, job); err != nil {
		logger.Error("failed to save job", slog.String("error", err.Error()))
		if runErr == nil {
			return err
		}
	}
	return runErr
}

// claim moves a queued job to RUNNING and registers cancel for it. The
// status is saved and cancel registered under s.mu, so CancelJob sees either
// a queued job or a running one it can stop.
func (s *BlurVideoService) claim(ctx context.Context, jobID string, cancel context.CancelFunc) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.cancels[jobID]; running {
		return nil, fmt.Errorf("start job %s: %w", jobID, ErrInvalidTransition)
	}
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", jobID, err)
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, err
	}
	s.cancels[jobID] = cancel
	return job, nil
}

// run performs the decode, blur, encode and upload steps for job.
func (s *BlurVideoService) run(ctx context.Context, job *Job, logger *slog.Logger) error {
	info, err := s.processor.Probe(ctx, job.InputVideoPath)
	if err != nil {
		return fmt.Errorf("probe input: %w", err)
	}
	logger.Info("input probed",
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
		slog.Float64("fps", info.FPS),
		slog.Float64("duration", info.Duration),
		slog.Bool("has_audio", info.HasAudio),
	)

	comp, err := compositor.New(job.Tasks, info.FPS,
		compositor.WithLogger(logger),
		compositor.WithDebugOverlay(s.debugOverlay),
	)
	if err != nil {
		return err
	}

	job.SetFramesTotal(int(math.Round(info.Duration * info.FPS)))

	output := job.OutputVideoPath
	if output == "" {
		output, err = s.storage.CreateTemp(ctx, "output_"+job.ID, ".mp4")
		if err != nil {
			return fmt.Errorf("reserve output: %w", err)
		}
	}
	job.SetOutput(output, "")
	if err := s.repo.Save(ctx, job); err != nil {
		return err
	}

	reader, err := s.processor.OpenReader(ctx, job.InputVideoPath, info)
	if err != nil {
		return fmt.Errorf("open decoder: %w", err)
	}
	defer func() { _ = reader.Close() }()

	var writerOpts media.WriterOpts
	if s.keepAudio && info.HasAudio {
		writerOpts.AudioSource = job.InputVideoPath
	}
	writer, err := s.processor.OpenWriter(ctx, output, info, writerOpts)
	if err != nil {
		return fmt.Errorf("open encoder: %w", err)
	}

	runner := pipeline.NewRunner(comp,
		pipeline.WithWorkers(s.workers),
		pipeline.WithBatchSize(s.batchSize),
		pipeline.WithLogger(logger),
		pipeline.WithProgress(func(done int) {
			job.UpdateFrames(done)
			if err := s.repo.Save(ctx, job); err != nil {
				logger.Warn("failed to save progress", slog.String("error", err.Error()))
			}
		}),
	)

	stats, runErr := runner.Run(ctx, reader, writer)
	closeErr := writer.Close()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("finalize output: %w", closeErr)
	}
	if err := reader.Close(); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	job.UpdateFrames(stats.Frames)

	if job.PushToS3 {
		url, err := s.upload(ctx, job.ID, output)
		if err != nil {
			return err
		}
		job.SetOutput(output, url)
	}
	return nil
}

func (s *BlurVideoService) upload(ctx context.Context, jobID, path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path is produced by this service
	if err != nil {
		return "", fmt.Errorf("open output for upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	url, err := s.storage.UploadToS3(ctx, "videos/"+jobID+".mp4", f)
	if err != nil {
		return "", fmt.Errorf("push to S3: %w", err)
	}
	return url, nil
}
