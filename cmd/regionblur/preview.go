package main

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"log/slog"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/maauso/regionblur/internal/compositor"
	"github.com/maauso/regionblur/internal/config"
)

var errInvalidFPS = errors.New("--fps must be positive")

type previewOptions struct {
	input     string
	output    string
	tasksPath string
	fps       float64
	time      float64
	frame     int
}

func newPreviewCmd(logger func() *slog.Logger) *cobra.Command {
	var opts previewOptions

	cmd := &cobra.Command{
		Use:     "preview",
		Short:   "Blur a single still frame to check task parameters",
		Example: `  regionblur preview --in frame.png --out preview.png --tasks tasks.yaml --fps 30 --time 2.5`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.fps <= 0 {
				return errInvalidFPS
			}
			tasks, err := config.LoadTasks(opts.tasksPath)
			if err != nil {
				return err
			}

			frame, err := readImage(opts.input)
			if err != nil {
				return err
			}

			frameIndex := int(math.Round(opts.time * opts.fps))
			if cmd.Flags().Changed("frame") {
				frameIndex = opts.frame
			}
			applied := compositor.ProcessFrame(frame, frameIndex, opts.fps, tasks)
			logger().Debug("preview rendered",
				slog.Int("frame", frameIndex),
				slog.Int("regions_applied", applied),
			)

			if err := writePNG(opts.output, frame); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "frame %d: %d of %d regions applied, wrote %s\n",
				frameIndex, applied, len(tasks), opts.output)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "in", "i", "", "input PNG or JPEG frame")
	flags.StringVarP(&opts.output, "out", "o", "", "output PNG")
	flags.StringVarP(&opts.tasksPath, "tasks", "t", "", "YAML or JSON task file")
	flags.Float64Var(&opts.fps, "fps", 0, "frame rate of the source video")
	flags.Float64Var(&opts.time, "time", 0, "timestamp of the frame in seconds")
	flags.IntVar(&opts.frame, "frame", 0, "zero-based frame index (overrides --time)")
	for _, name := range []string{"in", "out", "tasks", "fps"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func readImage(path string) (*image.RGBA, error) {
	f, err := os.Open(path) // #nosec G304 - path is supplied by the user on the command line
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return compositor.ToRGBA(img), nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path) // #nosec G304 - path is supplied by the user on the command line
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}
