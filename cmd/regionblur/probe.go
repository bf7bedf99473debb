package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maauso/regionblur/internal/config"
	"github.com/maauso/regionblur/internal/media"
)

func newProbeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "probe VIDEO",
		Short: "Print the dimensions, frame rate and duration of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			processor := media.NewFFmpegProcessor(cfg.FFmpegPath, media.WithFFprobePath(cfg.FFprobePath))
			info, err := processor.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "size:     %dx%d\n", info.Width, info.Height)
			fmt.Fprintf(out, "rotation: %d\n", info.Rotation)
			fmt.Fprintf(out, "fps:      %.3f\n", info.FPS)
			fmt.Fprintf(out, "duration: %.3fs\n", info.Duration)
			fmt.Fprintf(out, "frames:   ~%d\n", int(info.Duration*info.FPS+0.5))
			fmt.Fprintf(out, "audio:    %t\n", info.HasAudio)
			return nil
		},
	}
}
