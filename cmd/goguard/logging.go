package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls the process logger. With File set, output goes to a
// rotating file instead of stderr.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "console" or "json"
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// newLogger builds the process logger. The returned closer releases the
// log file, if any.
func newLogger(cfg LogConfig, stderr io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var (
		out    io.Writer = stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out, closer = rotating, rotating
	}

	switch cfg.Format {
	case "console":
		base := out
		out = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = base
			w.TimeFormat = time.RFC3339
			w.NoColor = cfg.File != ""
		})
	case "json", "":
	default:
		_ = closer.Close()
		return zerolog.Nop(), nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Str("service", "goguard").Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
