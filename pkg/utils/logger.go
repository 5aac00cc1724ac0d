package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	loggerMu sync.RWMutex
	logger   = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// InitLogger replaces the process logger. level is debug|info|warn|error,
// format is text|json; unknown values fall back to info/text.
func InitLogger(level, format string) *slog.Logger {
	return InitLoggerTo(os.Stderr, level, format)
}

// InitLoggerTo is InitLogger with an explicit destination.
func InitLoggerTo(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
	slog.SetDefault(l)
	return l
}

// GetLogger returns the process logger.
func GetLogger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
