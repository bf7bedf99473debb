package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maauso/regionblur/internal/bootstrap"
	"github.com/maauso/regionblur/internal/config"
	"github.com/maauso/regionblur/internal/job"
	"github.com/maauso/regionblur/internal/media"
)

type blurOptions struct {
	input     string
	output    string
	tasksPath string
	pushToS3  bool
}

func newBlurCmd(cfg *config.Config, logger func() *slog.Logger) *cobra.Command {
	var opts blurOptions

	cmd := &cobra.Command{
		Use:   "blur",
		Short: "Blur the regions listed in a task file and write a new video",
		Example: `  regionblur blur --in input.mp4 --out blurred.mp4 --tasks tasks.yaml
  regionblur blur --in input.mp4 --out blurred.mp4 --tasks tasks.yaml --workers 4 --debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tasks, err := config.LoadTasks(opts.tasksPath)
			if err != nil {
				return err
			}

			store, err := bootstrap.NewStorage(cmd.Context(), cfg, logger())
			if err != nil {
				return err
			}
			processor := media.NewFFmpegProcessor(cfg.FFmpegPath, media.WithFFprobePath(cfg.FFprobePath))
			svc := bootstrap.NewVideoService(cfg, job.NewMemoryRepository(), processor, store, logger())

			out, err := svc.Process(cmd.Context(), job.BlurVideoInput{
				VideoPath:  opts.input,
				Tasks:      tasks,
				OutputPath: opts.output,
				PushToS3:   opts.pushToS3,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames to %s\n", out.Frames, out.VideoPath)
			if out.VideoURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded to %s\n", out.VideoURL)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "in", "i", "", "input video")
	flags.StringVarP(&opts.output, "out", "o", "", "output video")
	flags.StringVarP(&opts.tasksPath, "tasks", "t", "", "YAML or JSON task file")
	flags.BoolVar(&opts.pushToS3, "push-to-s3", false, "upload the result to the configured S3 bucket")
	flags.IntVarP(&cfg.FrameWorkers, "workers", "w", cfg.FrameWorkers, "frames blurred in parallel (0 = one per CPU)")
	flags.IntVar(&cfg.FrameBatchSize, "batch", cfg.FrameBatchSize, "frames decoded ahead of the encoder")
	flags.BoolVar(&cfg.DebugOverlay, "debug", cfg.DebugOverlay, "outline blurred regions and log per-frame alpha")
	flags.BoolVar(&cfg.KeepAudio, "keep-audio", cfg.KeepAudio, "copy the input audio track into the output")
	flags.DurationVar(&cfg.JobTimeout, "timeout", cfg.JobTimeout, "abort after this long (0 = no limit)")
	for _, name := range []string{"in", "out", "tasks"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
