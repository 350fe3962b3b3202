// Package logging builds the slog loggers used by every stage. Records go to
// stderr, to a size-rotated file, or both.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	Console    bool   `yaml:"console" json:"console"`
	Filename   string `yaml:"filename" json:"filename"`
	Append     bool   `yaml:"append" json:"append"`
	MaxSize    int    `yaml:"max_size" json:"maxSize"`
	MaxBackups int    `yaml:"max_backups" json:"maxBackups"`
	MaxAge     int    `yaml:"max_age" json:"maxAge"`
	Compress   bool   `yaml:"compress" json:"compress"`
	// RotateSchedule is a cron expression, e.g. "@daily", that rotates the
	// log file on top of size-based rotation.
	RotateSchedule string `yaml:"rotate_schedule" json:"rotateSchedule"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "INFO",
		Format:     "text",
		Console:    true,
		Append:     true,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(name) {
	case "DEBUG", "TRACE":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: invalid level %q", name)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// scheduledFile stops its rotation schedule before closing the file.
type scheduledFile struct {
	lj   *lumberjack.Logger
	cron *cron.Cron
}

func (s *scheduledFile) Close() error {
	<-s.cron.Stop().Done()
	return s.lj.Close()
}

// New returns a logger for cfg and a closer for its file output, if any.
// Filename "-" logs to stdout.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	switch cfg.Filename {
	case "":
	case "-":
		writers = append(writers, os.Stdout)
	default:
		lj := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		if !cfg.Append {
			if err := lj.Rotate(); err != nil {
				return nil, nil, fmt.Errorf("logging: rotate %s: %w", cfg.Filename, err)
			}
		}
		writers = append(writers, lj)
		closer = lj
		if cfg.RotateSchedule != "" {
			c := cron.New()
			if _, err := c.AddFunc(cfg.RotateSchedule, func() { lj.Rotate() }); err != nil {
				lj.Close()
				return nil, nil, fmt.Errorf("logging: rotate schedule %q: %w", cfg.RotateSchedule, err)
			}
			c.Start()
			closer = &scheduledFile{lj: lj, cron: c}
		}
	}
	if cfg.Console {
		writers = append(writers, os.Stderr)
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		return Discard(), closer, nil
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("logging: invalid format %q", cfg.Format)
	}
	return slog.New(h), closer, nil
}

// Discard drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
