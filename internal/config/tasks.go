package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/maauso/regionblur/internal/compositor"
)

// ErrInvalidTaskFile is returned when a task file cannot be parsed or validated.
var ErrInvalidTaskFile = errors.New("config: invalid task file")

// TaskSpec is the wire form of a blur task, shared by task files and the HTTP API.
// Region is [x1, y1, x2, y2]. Unset optional fields take the compositor defaults.
type TaskSpec struct {
	Region       []int    `yaml:"region" json:"region" validate:"required,len=4"`
	StartTime    float64  `yaml:"start_time" json:"start_time" validate:"gte=0"`
	EndTime      float64  `yaml:"end_time" json:"end_time" validate:"gtfield=StartTime"`
	FadeDuration *float64 `yaml:"fade_duration,omitempty" json:"fade_duration,omitempty" validate:"omitempty,gt=0"`
	KernelMax    *int     `yaml:"ksize_max,omitempty" json:"ksize_max,omitempty" validate:"omitempty,gt=0"`
	FadeMargin   *int     `yaml:"fade_margin,omitempty" json:"fade_margin,omitempty" validate:"omitempty,gte=0"`
}

// ToRegionTask converts the spec into a compositor task.
// s must have passed validation so that Region has four elements.
func (s TaskSpec) ToRegionTask() compositor.RegionTask {
	region := compositor.Region{X1: s.Region[0], Y1: s.Region[1], X2: s.Region[2], Y2: s.Region[3]}

	var opts []compositor.TaskOption
	if s.FadeDuration != nil {
		opts = append(opts, compositor.WithFade(*s.FadeDuration))
	}
	if s.KernelMax != nil {
		opts = append(opts, compositor.WithKernelMax(*s.KernelMax))
	}
	if s.FadeMargin != nil {
		opts = append(opts, compositor.WithFeatherMargin(*s.FadeMargin))
	}
	return compositor.NewRegionTask(region, s.StartTime, s.EndTime, opts...)
}

// TaskFile is the document layout of a task file.
type TaskFile struct {
	Tasks []TaskSpec `yaml:"tasks" json:"tasks" validate:"required,min=1,dive"`
}

// ToRegionTasks converts parsed tasks in order.
func ToRegionTasks(specs []TaskSpec) []compositor.RegionTask {
	tasks := make([]compositor.RegionTask, len(specs))
	for i, s := range specs {
		tasks[i] = s.ToRegionTask()
	}
	return tasks
}

// LoadTasks reads and validates a YAML (or JSON) task file.
func LoadTasks(path string) ([]compositor.RegionTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file %s: %w", path, err)
	}
	tasks, err := ParseTasks(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tasks, nil
}

// ParseTasks decodes a task document. The document is either a mapping with a
// "tasks" key or a bare list of tasks. Unknown keys are rejected.
func ParseTasks(data []byte) ([]compositor.RegionTask, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTaskFile, err)
	}

	var file TaskFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var err error
	if isSequence(&root) {
		err = dec.Decode(&file.Tasks)
	} else {
		err = dec.Decode(&file)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTaskFile, err)
	}

	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTaskFile, err)
	}

	tasks := ToRegionTasks(file.Tasks)
	if err := compositor.ValidateTasks(tasks); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTaskFile, err)
	}
	return tasks, nil
}

func isSequence(root *yaml.Node) bool {
	return root.Kind == yaml.DocumentNode && len(root.Content) > 0 && root.Content[0].Kind == yaml.SequenceNode
}
