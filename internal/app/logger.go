package app

import (
	"io"
	"log/slog"
	"strings"
)

// newLogger builds the process logger from the already-validated CLI
// settings. It does not touch the global logger, so tests and re-dispatched
// child processes keep isolated instances.
//
// Build logs are mostly read in CI job output, where the runner timestamps
// every line; the text handler therefore drops slog's own time attribute.
// The json handler keeps it for log shippers.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}

	if strings.EqualFold(formatStr, "json") {
		return slog.New(slog.NewJSONHandler(outW, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(slog.NewTextHandler(outW, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}))
}
