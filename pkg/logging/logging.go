// Package logging configures the zerolog logger used by the hook.
//
// Diagnostics never go to stdout: stdout carries the final document path
// only. Log lines are appended to a file in the configured log directory and
// fall back to stderr whenever the file cannot be opened or written.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFileName is the log file the hook appends to, shared with the host
// application's own log.
const DefaultFileName = "paperless.log"

// Config holds logging configuration
type Config struct {
	Level      string // trace, debug, info, warn, error
	Format     string // text, json
	TimeFormat string // Go time layout
	Dir        string // log directory; empty logs to stderr only
	FileName   string // file inside Dir
	Name       string // logger name reported on every line
}

// DefaultConfig returns the hook's default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "debug",
		Format:     "text",
		TimeFormat: time.RFC3339,
		Dir:        "/opt/paperless/data/log",
		FileName:   DefaultFileName,
		Name:       "azure.ocr",
	}
}

// Setup builds a logger from config. The returned closer releases the log
// file and must be called on exit. Setup does not fail when the log file
// cannot be opened; it logs to stderr instead and reports the reason on the
// first line.
func Setup(config Config) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil || config.Level == "" {
		level = zerolog.DebugLevel
	}

	var (
		sink    io.Writer = os.Stderr
		closer  io.Closer = nopCloser{}
		openErr error
	)
	if config.Dir != "" {
		name := config.FileName
		if name == "" {
			name = DefaultFileName
		}
		file, err := os.OpenFile(filepath.Join(config.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			openErr = err
		} else {
			sink = &fallbackWriter{primary: file, fallback: os.Stderr}
			closer = file
		}
	}

	timeFormat := config.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	var output io.Writer
	switch strings.ToLower(config.Format) {
	case "json":
		output = sink
	default:
		output = zerolog.ConsoleWriter{
			Out:        sink,
			TimeFormat: timeFormat,
			NoColor:    true,
		}
	}

	ctx := zerolog.New(output).Level(level).With().Timestamp()
	if config.Name != "" {
		ctx = ctx.Str("logger", config.Name)
	}
	logger := ctx.Logger()

	if openErr != nil {
		logger.Warn().Err(openErr).Str("dir", config.Dir).Msg("Cannot open log file, logging to stderr")
	}
	return logger, closer
}

// WithComponent returns a child logger with a component field.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// fallbackWriter writes to primary and, if that fails, to fallback. It always
// reports success so a broken log sink never aborts the run.
type fallbackWriter struct {
	primary  io.Writer
	fallback io.Writer
}

func (w *fallbackWriter) Write(p []byte) (int, error) {
	if _, err := w.primary.Write(p); err != nil {
		_, _ = w.fallback.Write(p)
	}
	return len(p), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
