// Package server exposes region blur jobs and single-frame previews over
// HTTP. Request and response bodies are defined here, apart from the job
// domain types.
package server

import (
	"time"

	"github.com/maauso/regionblur/internal/config"
)

// CreateJobRequest is the body of POST /jobs.
type CreateJobRequest struct {
	VideoBase64 string `json:"video_base64" validate:"required,base64"`
	// Tasks are applied to every frame in order.
	Tasks    []config.TaskSpec `json:"tasks" validate:"required,min=1,dive"`
	PushToS3 bool              `json:"push_to_s3"`
}

// CreateJobResponse acknowledges a queued job.
type CreateJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobResponse describes one job. Exactly one of VideoBase64 and VideoURL
// is set once the job is COMPLETED.
type JobResponse struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"` // 0-100
	FramesDone  int       `json:"frames_done"`
	FramesTotal int       `json:"frames_total"` // estimate
	Tasks       int       `json:"tasks"`
	Error       string    `json:"error,omitempty"`
	VideoBase64 string    `json:"video_base64,omitempty"`
	VideoURL    string    `json:"video_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListJobsResponse is the body of GET /jobs. Videos are never inlined.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// PreviewRequest is the body of POST /preview.
type PreviewRequest struct {
	// ImageBase64 is a PNG or JPEG frame.
	ImageBase64 string            `json:"image_base64" validate:"required,base64"`
	Tasks       []config.TaskSpec `json:"tasks" validate:"required,min=1,dive"`
	FPS         float64           `json:"fps" validate:"required,gt=0"`
	// Time locates the frame in seconds; FrameIndex overrides it when set.
	Time       float64 `json:"time" validate:"gte=0"`
	FrameIndex *int    `json:"frame_index,omitempty" validate:"omitempty,gte=0"`
}

// PreviewResponse carries the blurred frame as PNG.
type PreviewResponse struct {
	PNGBase64  string `json:"png_base64"`
	FrameIndex int    `json:"frame_index"`
	// RegionsApplied counts tasks that changed the frame.
	RegionsApplied int `json:"regions_applied"`
}

// ErrorResponse is returned with every 4xx and 5xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	// Code is a stable machine-readable identifier such as JOB_NOT_FOUND.
	Code string `json:"code"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
