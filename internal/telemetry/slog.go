package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a configured level name to a slog.Level. Unknown names select Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogHandler builds the handler SetupLogger installs.
//
// format: "json" → JSONHandler (production); anything else → TextHandler.
// Source locations are attached only at debug level.
func NewLogHandler(w io.Writer, format, level string) slog.Handler {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetupLogger installs the process-wide default logger. output is "stdout" (default)
// or "stderr". All slog.Info/Warn/Error calls elsewhere use it without carrying a
// *slog.Logger around.
func SetupLogger(format, level, output string) {
	var w io.Writer = os.Stdout
	if strings.EqualFold(output, "stderr") {
		w = os.Stderr
	}
	slog.SetDefault(slog.New(NewLogHandler(w, format, level)))
	slog.Info("logger initialised", "format", format, "level", ParseLevel(level).String(), "output", output)
}
