package log

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrUnknownFormat is returned by NewLogger for formats other than text
// and json.
var ErrUnknownFormat = errors.New("unknown log format")

// Options configures NewLogger.
type Options struct {
	// Writer receives log output. Defaults to os.Stderr.
	Writer io.Writer

	// Verbose lowers the level from Warn to Debug.
	Verbose bool

	// Format is FormatText (default) or FormatJSON.
	Format string

	// File, when set, additionally writes JSON logs to a rotated file.
	File string

	// MaxSizeMB, MaxBackups and MaxAgeDays control rotation of File.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger is a configured logger plus the file sink, if any, that must be
// closed on exit.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// NewLogger builds a secure logger. Every handler is wrapped in a
// SecureHandler.
func NewLogger(opts Options) (*Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	switch opts.Format {
	case "", FormatText:
		console = slog.NewTextHandler(w, hopts)
	case FormatJSON:
		console = slog.NewJSONHandler(w, hopts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}

	if opts.File == "" {
		return &Logger{Logger: slog.New(NewSecureHandler(console))}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    orDefault(opts.MaxSizeMB, 10),
		MaxBackups: orDefault(opts.MaxBackups, 3),
		MaxAge:     orDefault(opts.MaxAgeDays, 28),
		Compress:   true,
	}
	// The file always gets debug-level JSON.
	file := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: slog.LevelDebug})

	return &Logger{
		Logger: slog.New(NewSecureHandler(fanout{console, file})),
		closer: rotator,
	}, nil
}

// Close closes the file sink.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// NewSecureLogger returns a text logger on w, at Debug level when verbose
// and Warn otherwise.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	l, _ := NewLogger(Options{Writer: w, Verbose: verbose}) //nolint:errcheck // text format cannot fail
	return l.Logger
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
