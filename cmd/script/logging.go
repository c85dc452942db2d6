package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "", "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit", "critical":
		return log.LevelCrit, nil
	default:
		return 0, errors.Errorf("unknown log level %q", s)
	}
}

// newLogger builds the process logger and installs it as the root logger.
func newLogger(w io.Writer, level, format string, color bool) (log.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "terminal", "text":
		h = log.NewTerminalHandlerWithLevel(w, lvl, color)
	case "json":
		h = log.JSONHandlerWithLevel(w, lvl)
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
	logger := log.NewLogger(h)
	log.SetDefault(logger)
	return logger, nil
}
