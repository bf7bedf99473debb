// Package job runs region blur jobs. A Job records one source video, the
// blur tasks applied to it, frame progress and the result; repositories
// persist job snapshots and BlurVideoService drives a job from upload to
// delivered video.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/regionblur/internal/compositor"
	"github.com/maauso/regionblur/internal/job/id"
)

// Status is a job lifecycle state.
type Status string

// Job states. IN_QUEUE and RUNNING are active; the rest are terminal.
const (
	StatusInQueue   Status = "IN_QUEUE"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusTimedOut  Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when a status change is not allowed from
// the job's current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// transitions lists the states reachable from each active state.
// Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusInQueue: {StatusRunning, StatusCancelled, StatusTimedOut},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
}

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	_, active := transitions[s]
	return !active
}

// Job is the region blur job aggregate. Exported fields are safe to read
// directly only on a snapshot returned by Clone or a repository.
type Job struct {
	mu sync.RWMutex

	ID     string                  `json:"id"`
	Status Status                  `json:"status"`
	Tasks  []compositor.RegionTask `json:"tasks"`

	// Progress is 0-100. It is derived from FramesDone/FramesTotal while
	// running and only reaches 100 on completion.
	Progress    int    `json:"progress"`
	FramesTotal int    `json:"frames_total"` // estimate from probe
	FramesDone  int    `json:"frames_done"`
	Error       string `json:"error,omitempty"`

	InputVideoPath string `json:"input_video_path"`
	// OwnsInput marks an uploaded input that is removed after processing.
	OwnsInput       bool   `json:"owns_input,omitempty"`
	OutputVideoPath string `json:"output_video_path,omitempty"`
	PushToS3        bool   `json:"push_to_s3"`
	VideoURL        string `json:"video_url,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// New returns a queued job with a generated ID.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID returns a queued job with the given ID.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		Tasks:     []compositor.RegionTask{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// update runs fn under the write lock and stamps UpdatedAt.
func (j *Job) update(fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn()
	j.UpdatedAt = time.Now()
}

// TransitionTo moves the job to status, recording start and completion
// times. It returns ErrInvalidTransition when status is not reachable.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !slices.Contains(transitions[j.Status], status) {
		return ErrInvalidTransition
	}

	now := time.Now()
	j.Status = status
	j.UpdatedAt = now
	switch {
	case status == StatusRunning:
		j.StartedAt = now
	case status.Terminal():
		j.CompletedAt = now
		if status == StatusCompleted {
			j.Progress = 100
		}
	}
	return nil
}

// Start moves a queued job to RUNNING.
func (j *Job) Start() error { return j.TransitionTo(StatusRunning) }

// Complete moves a running job to COMPLETED.
func (j *Job) Complete() error { return j.TransitionTo(StatusCompleted) }

// Cancel moves an active job to CANCELLED.
func (j *Job) Cancel() error { return j.TransitionTo(StatusCancelled) }

// Timeout moves an active job to TIMED_OUT.
func (j *Job) Timeout() error { return j.TransitionTo(StatusTimedOut) }

// Fail moves a running job to FAILED and records errMsg.
// The message is only stored when the transition succeeds.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// GetStatus returns the current status.
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal reports whether the job has finished.
func (j *Job) IsTerminal() bool {
	return j.GetStatus().Terminal()
}

// SetTasks stores a copy of tasks.
func (j *Job) SetTasks(tasks []compositor.RegionTask) {
	j.update(func() {
		j.Tasks = slices.Clone(tasks)
		if j.Tasks == nil {
			j.Tasks = []compositor.RegionTask{}
		}
	})
}

// SetFramesTotal records the estimated frame count. Negative values mean unknown.
func (j *Job) SetFramesTotal(total int) {
	j.update(func() {
		j.FramesTotal = max(total, 0)
	})
}

// UpdateFrames records frames written and derives Progress, capped at 99
// because FramesTotal is only an estimate.
func (j *Job) UpdateFrames(done int) {
	j.update(func() {
		j.FramesDone = done
		if j.FramesTotal > 0 {
			j.Progress = min(max(done*100/j.FramesTotal, 0), 99)
		}
	})
}

// UpdateProgress sets Progress, clamped to 0-100.
func (j *Job) UpdateProgress(progress int) {
	j.update(func() {
		j.Progress = min(max(progress, 0), 100)
	})
}

// SetOutput records the encoded video path and its S3 URL, if any.
func (j *Job) SetOutput(videoPath, videoURL string) {
	j.update(func() {
		j.OutputVideoPath = videoPath
		j.VideoURL = videoURL
	})
}

// ClearOutput forgets the output after its file has been removed.
func (j *Job) ClearOutput() {
	j.SetOutput("", "")
}

// Clone returns a deep copy that can be read without locking.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	c := &Job{
		ID:              j.ID,
		Status:          j.Status,
		Tasks:           slices.Clone(j.Tasks),
		Progress:        j.Progress,
		FramesTotal:     j.FramesTotal,
		FramesDone:      j.FramesDone,
		Error:           j.Error,
		InputVideoPath:  j.InputVideoPath,
		OwnsInput:       j.OwnsInput,
		OutputVideoPath: j.OutputVideoPath,
		PushToS3:        j.PushToS3,
		VideoURL:        j.VideoURL,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
	if c.Tasks == nil {
		c.Tasks = []compositor.RegionTask{}
	}
	return c
}
