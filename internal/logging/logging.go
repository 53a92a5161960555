// Package logging builds the application's *slog.Logger.
//
// Logs go to stdout as text by default, or as JSON with format "json".
// When a file is configured, every record is also appended to it; the file
// is rotated by lumberjack so a long-running server cannot fill the disk.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the log file.
const (
	maxSizeMB  = 50
	maxBackups = 5
	maxAgeDays = 28
)

// Options selects the logger's level, encoding and destinations.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	File   string // optional path of a rotated log file

	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// New returns a logger for opts and a Closer that releases the log file.
// The Closer is never nil.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stdout
	if opts.Stdout != nil {
		out = opts.Stdout
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(out, file)
		closer = file
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		handler = slog.NewTextHandler(out, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	return slog.New(handler), closer, nil
}

// ParseLevel parses a level name such as "debug" or "WARN". Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging: %w", err)
	}
	return level, nil
}

// Discard returns a logger that drops everything, for tests and quiet CLIs.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
