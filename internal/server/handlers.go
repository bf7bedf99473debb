package server

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/regionblur/internal/compositor"
	"github.com/maauso/regionblur/internal/config"
	"github.com/maauso/regionblur/internal/job"
)

// Handlers serves the job and preview endpoints.
type Handlers struct {
	service   *job.BlurVideoService
	validator *validator.Validate
	logger    *slog.Logger
	async     bool
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithAsyncProcessing controls whether CreateJob starts processing in the
// background. With it off, jobs stay IN_QUEUE until processed elsewhere.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.async = enabled
	}
}

// NewHandlers wires handlers to service. A nil logger uses slog.Default().
func NewHandlers(service *job.BlurVideoService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
		async:     true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// requestLogger tags log lines with the request ID.
func (h *Handlers) requestLogger(r *http.Request) *slog.Logger {
	if id := RequestIDFromContext(r.Context()); id != "" {
		return h.logger.With(slog.String("request_id", id))
	}
	return h.logger
}

// Health answers GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob answers POST /jobs. The upload is stored and the job queued
// before responding; blurring runs after the response is sent.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !h.decode(w, r, &req) {
		return
	}
	log := h.requestLogger(r)

	created, err := h.service.CreateJob(r.Context(), job.BlurVideoInput{
		VideoBase64: req.VideoBase64,
		Tasks:       config.ToRegionTasks(req.Tasks),
		PushToS3:    req.PushToS3,
	})
	switch {
	case err == nil:
	case errors.Is(err, job.ErrInvalidVideoData):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_VIDEO")
		return
	case isTaskError(err):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	default:
		log.Error("create job", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	if h.async {
		// The request context ends with the response; processing must not.
		go h.process(context.WithoutCancel(r.Context()), log, created.ID)
	}

	log.Info("job queued",
		slog.String("job_id", created.ID),
		slog.Int("tasks", len(req.Tasks)),
		slog.Bool("push_to_s3", req.PushToS3),
	)
	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

func (h *Handlers) process(ctx context.Context, log *slog.Logger, jobID string) {
	if err := h.service.ProcessExistingJob(ctx, jobID); err != nil {
		log.Error("job processing failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// ListJobs answers GET /jobs, newest first.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.requestLogger(r).Error("list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob answers GET /jobs/{id}. A completed job carries its S3 URL, or
// the encoded video inline when it was not pushed to S3.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	found, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, r, jobID, err, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	resp := toJobResponse(found)
	if found.Status == job.StatusCompleted {
		h.attachOutput(r, found, &resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

// attachOutput fills the result fields of resp. An unreadable output file
// is logged and left out rather than failing the request.
func (h *Handlers) attachOutput(r *http.Request, j *job.Job, resp *JobResponse) {
	switch {
	case j.PushToS3 && j.VideoURL != "":
		resp.VideoURL = j.VideoURL
	case j.OutputVideoPath != "":
		data, err := os.ReadFile(j.OutputVideoPath)
		if err != nil {
			h.requestLogger(r).Error("read output video",
				slog.String("job_id", j.ID),
				slog.String("path", j.OutputVideoPath),
				slog.String("error", err.Error()),
			)
			return
		}
		resp.VideoBase64 = base64.StdEncoding.EncodeToString(data)
	}
}

// CancelJob answers POST /jobs/{id}/cancel.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	cancelled, err := h.service.CancelJob(r.Context(), jobID)
	if errors.Is(err, job.ErrJobNotCancellable) {
		writeError(w, http.StatusConflict, "job cannot be cancelled", "JOB_NOT_CANCELLABLE")
		return
	}
	if err != nil {
		h.writeJobError(w, r, jobID, err, "failed to cancel job", "JOB_CANCEL_FAILED")
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(cancelled))
}

// DeleteJob answers DELETE /jobs/{id}. Active jobs must be cancelled first.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	err := h.service.DeleteJob(r.Context(), jobID)
	if errors.Is(err, job.ErrInvalidTransition) {
		writeError(w, http.StatusConflict, "job is still active", "JOB_ACTIVE")
		return
	}
	if err != nil {
		h.writeJobError(w, r, jobID, err, "failed to delete job", "JOB_DELETE_FAILED")
		return
	}

	h.requestLogger(r).Info("job deleted", slog.String("job_id", jobID))
	w.WriteHeader(http.StatusNoContent)
}

func toJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:          j.ID,
		Status:      string(j.Status),
		Progress:    j.Progress,
		FramesDone:  j.FramesDone,
		FramesTotal: j.FramesTotal,
		Tasks:       len(j.Tasks),
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

var taskErrors = []error{
	job.ErrNoTasks,
	compositor.ErrInvalidRegion,
	compositor.ErrInvalidTimeWindow,
	compositor.ErrInvalidFade,
	compositor.ErrInvalidKernelMax,
	compositor.ErrInvalidFeatherMargin,
}

// isTaskError reports whether err came from task validation.
func isTaskError(err error) bool {
	for _, target := range taskErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
