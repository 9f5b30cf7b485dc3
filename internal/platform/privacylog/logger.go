package privacylog

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds a sanitizing slog logger. format is "json" or "text";
// unknown levels fall back to info.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var base slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	return slog.New(WrapHandler(base))
}

func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
