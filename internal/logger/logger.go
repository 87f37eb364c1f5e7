// Package logger builds the zerolog loggers used across dicomvol.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

// Config selects the log level and an optional rotating log file.
type Config struct {
	Level      string
	File       string
	MaxSizeMB  int // megabytes
	MaxAgeDays int // days
	Console    io.Writer
	NoColor    bool
}

// New returns a logger writing human-readable lines to the console (stderr
// by default) and, when File is set, JSON lines to a rotating file. The
// returned closer releases the file and is never nil.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	out := cfg.Console
	if out == nil {
		out = os.Stderr
	}
	console := zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly, NoColor: cfg.NoColor}

	if cfg.File == "" {
		return NewZerolog(console, level), nopCloser{}, nil
	}

	file := &lumberjack.Logger{
		Filename: cfg.File,
		MaxSize:  cfg.MaxSizeMB,  // megabytes
		MaxAge:   cfg.MaxAgeDays, // days
	}
	return NewZerolog(zerolog.MultiLevelWriter(console, file), level), file, nil
}

// NewZerolog returns a timestamped logger at level writing to w.
func NewZerolog(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Component tags every event of l with the emitting package.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
