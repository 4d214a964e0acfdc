package logging

import (
	"context"
	"log/slog"
	"strings"
)

// LevelFatal marks configuration faults that need an operator.
// It is logged, never acted on: the process keeps running.
const LevelFatal = slog.Level(12)

// ParseLevel maps a config string to a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "fatal":
		return LevelFatal
	default:
		return slog.LevelInfo
	}
}

// Fatal logs at LevelFatal
func Fatal(ctx context.Context, logger *slog.Logger, msg string, attrs ...slog.Attr) {
	logger.LogAttrs(ctx, LevelFatal, msg, attrs...)
}

// HandlerOptions returns JSON handler options that print LevelFatal as FATAL
func HandlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelFatal {
					return slog.String(slog.LevelKey, "FATAL")
				}
			}
			return a
		},
	}
}
