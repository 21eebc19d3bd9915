package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/use-agent/uniassist/config"
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "uniassist",
	Short: "University news and events assistant",
	Long: `uniassist scrapes university news and event listings, keeps them in a
local content store, indexes them for semantic retrieval and answers
questions grounded on the indexed content.

Configuration comes from UNIASSIST_* environment variables; sources are
read from the YAML file named by UNIASSIST_SOURCES_FILE.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		cfg = config.Load()
		initLogger(cfg.Log, cmd.ErrOrStderr())
	},
}

// initLogger configures slog based on the LogConfig. Logs go to w so that
// command output on stdout stays machine-readable.
func initLogger(lc config.LogConfig, w io.Writer) {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if lc.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}
