// Package main provides the regionblur command line tool for blurring regions
// of local video files.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/regionblur/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Flag defaults come from cfg, which is
// loaded from the environment, so flags override environment settings.
func newRootCmd(cfg *config.Config) *cobra.Command {
	var logger *slog.Logger

	root := &cobra.Command{
		Use:          "regionblur",
		Short:        "Blur rectangular regions of videos over time windows",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			// Logs go to stderr so stdout stays clean for command output.
			logger = cfg.NewLoggerTo(cmd.ErrOrStderr())
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text or json)")
	flags.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "path to the ffmpeg binary")
	flags.StringVar(&cfg.FFprobePath, "ffprobe", cfg.FFprobePath, "path to the ffprobe binary")

	loggerFn := func() *slog.Logger { return logger }
	root.AddCommand(
		newBlurCmd(cfg, loggerFn),
		newPreviewCmd(loggerFn),
		newProbeCmd(cfg),
	)
	return root
}
