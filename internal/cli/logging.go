package cli

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/formwalk/internal/config"
)

// setupLogging installs the default slog handler. Logs go to stderr, or
// to a rotating file when one is configured. JSON output mode logs JSON.
func setupLogging(opts *RootOptions, cfg *config.Config, stderr io.Writer) error {
	level := parseLevel(cfg.Log.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}

	w := stderr
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			return WrapExitError(ExitCommandError, "failed to create log directory", err)
		}
		w = &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}

	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, hopts)
	if opts.Format == "json" {
		h = slog.NewJSONHandler(w, hopts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
