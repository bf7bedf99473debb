package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/regionblur/internal/compositor"
)

func TestParseTasks_Mapping(t *testing.T) {
	data := []byte(`
tasks:
  - region: [100, 100, 200, 150]
    start_time: 1
    end_time: 5
  - region: [0, 0, 50, 50]
    start_time: 2.5
    end_time: 4
    fade_duration: 0.25
    ksize_max: 21
    fade_margin: 10
`)

	tasks, err := ParseTasks(data)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, compositor.Region{X1: 100, Y1: 100, X2: 200, Y2: 150}, tasks[0].Region)
	assert.Equal(t, 1.0, tasks[0].StartTime)
	assert.Equal(t, 5.0, tasks[0].EndTime)
	assert.Equal(t, compositor.DefaultFadeDuration, tasks[0].FadeDuration)
	assert.Equal(t, compositor.DefaultKernelMax, tasks[0].KernelMax)
	assert.Equal(t, compositor.DefaultFeatherMargin, tasks[0].FeatherMargin)

	assert.Equal(t, 0.25, tasks[1].FadeDuration)
	assert.Equal(t, 21, tasks[1].KernelMax)
	assert.Equal(t, 10, tasks[1].FeatherMargin)
}

func TestParseTasks_BareList(t *testing.T) {
	data := []byte(`
- region: [10, 20, 30, 40]
  start_time: 0
  end_time: 2
`)

	tasks, err := ParseTasks(data)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, compositor.Region{X1: 10, Y1: 20, X2: 30, Y2: 40}, tasks[0].Region)
}

func TestParseTasks_JSON(t *testing.T) {
	data := []byte(`{"tasks": [{"region": [1, 2, 3, 4], "start_time": 0, "end_time": 1, "fade_margin": 0}]}`)

	tasks, err := ParseTasks(data)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 0, tasks[0].FeatherMargin)
}

func TestParseTasks_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty document", ``},
		{"malformed yaml", "tasks: [region: ["},
		{"no tasks", "tasks: []"},
		{"unknown key", "tasks:\n  - region: [0, 0, 10, 10]\n    start_time: 0\n    end_time: 1\n    blur: 3\n"},
		{"short region", "tasks:\n  - region: [0, 0, 10]\n    start_time: 0\n    end_time: 1\n"},
		{"end before start", "tasks:\n  - region: [0, 0, 10, 10]\n    start_time: 3\n    end_time: 1\n"},
		{"negative start", "tasks:\n  - region: [0, 0, 10, 10]\n    start_time: -1\n    end_time: 1\n"},
		{"zero fade", "tasks:\n  - region: [0, 0, 10, 10]\n    start_time: 0\n    end_time: 1\n    fade_duration: 0\n"},
		{"zero kernel", "tasks:\n  - region: [0, 0, 10, 10]\n    start_time: 0\n    end_time: 1\n    ksize_max: 0\n"},
		{"negative margin", "tasks:\n  - region: [0, 0, 10, 10]\n    start_time: 0\n    end_time: 1\n    fade_margin: -5\n"},
		{"inverted region", "tasks:\n  - region: [10, 10, 0, 0]\n    start_time: 0\n    end_time: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTasks([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidTaskFile)
		})
	}
}

func TestParseTasks_InvertedRegionWrapsCompositorError(t *testing.T) {
	_, err := ParseTasks([]byte("- region: [10, 10, 0, 0]\n  start_time: 0\n  end_time: 1\n"))
	assert.ErrorIs(t, err, compositor.ErrInvalidRegion)
}

func TestLoadTasks(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "tasks.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tasks:\n  - region: [0, 0, 8, 8]\n    start_time: 0\n    end_time: 1\n"), 0o600))

		tasks, err := LoadTasks(path)
		require.NoError(t, err)
		assert.Len(t, tasks, 1)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTasks(filepath.Join(dir, "missing.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tasks: []\n"), 0o600))

		_, err := LoadTasks(path)
		assert.ErrorIs(t, err, ErrInvalidTaskFile)
	})
}

func TestTaskSpec_ToRegionTask(t *testing.T) {
	fade := 1.5
	spec := TaskSpec{Region: []int{5, 6, 7, 8}, StartTime: 1, EndTime: 2, FadeDuration: &fade}

	task := spec.ToRegionTask()
	assert.Equal(t, compositor.Region{X1: 5, Y1: 6, X2: 7, Y2: 8}, task.Region)
	assert.Equal(t, 1.5, task.FadeDuration)
	assert.Equal(t, compositor.DefaultKernelMax, task.KernelMax)
}
