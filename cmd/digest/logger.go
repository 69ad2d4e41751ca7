package main

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogger builds the JSON logger. With a log file configured, output is
// also written to a size-rotated file; the returned func closes it.
func setupLogger(level, file string) (*slog.Logger, func() error) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() error { return nil }
	if file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closeFn = rotating.Close
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(out, opts)
	return slog.New(handler), closeFn
}
