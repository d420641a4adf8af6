// Package logger wires log/slog for the daemon: one structured application
// logger plus an audit logger that records committed batches and role-gated
// router operations to a size-rotated file.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultService is attached to every record when Config.Service is empty.
const DefaultService = "openutrd"

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	// Service is emitted as the "service" attribute on every record.
	Service   string
	AddSource bool
	Audit     AuditConfig
}

// AuditConfig controls audit log output behaviour.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
	auditLogger   *slog.Logger
	closers       []io.Closer
)

// Init configures the global logger instances. Calling it again replaces the
// previous loggers and closes the files they held.
func Init(cfg Config) error {
	level := parseLevel(cfg.Level)
	service := cfg.Service
	if service == "" {
		service = DefaultService
	}

	var opened []io.Closer
	handler, err := buildHandler(cfg.Format, cfg.OutputPaths, &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}, &opened)
	if err != nil {
		closeAll(opened)
		return err
	}
	app := slog.New(handler).With(slog.String("service", service))

	audit := app.With(slog.Bool("audit", true))
	if cfg.Audit.Enabled {
		writer, err := buildAuditWriter(cfg.Audit)
		if err != nil {
			closeAll(opened)
			return err
		}
		opened = append(opened, writer)
		audit = slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})).
			With(slog.String("service", service))
	}

	mu.Lock()
	previous := closers
	defaultLogger, auditLogger, closers = app, audit, opened
	mu.Unlock()

	closeAll(previous)
	return nil
}

func buildHandler(format string, outputs []string, opts *slog.HandlerOptions, opened *[]io.Closer) (slog.Handler, error) {
	writers := make([]io.Writer, 0, len(outputs))
	for _, out := range outputs {
		writer, closer, err := openWriter(out)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			*opened = append(*opened, closer)
		}
		writers = append(writers, writer)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(writer, opts), nil
	}
	return slog.NewJSONHandler(writer, opts), nil
}

func buildAuditWriter(cfg AuditConfig) (*rotatingWriter, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	return newRotatingWriter(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
}

func openWriter(path string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		return file, file, nil
	}
}

func closeAll(cs []io.Closer) error {
	var err error
	for _, c := range cs {
		err = errors.Join(err, c.Close())
	}
	return err
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// L returns the structured logger instance, initialising a stdout JSON logger on first use.
func L() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		_ = Init(Config{})
		mu.Lock()
		l = defaultLogger
		mu.Unlock()
	}
	return l
}

// Audit returns the audit logger.
func Audit() *slog.Logger {
	mu.Lock()
	a := auditLogger
	mu.Unlock()
	if a == nil {
		L()
		mu.Lock()
		a = auditLogger
		mu.Unlock()
	}
	return a
}

// Sync closes the files held by the loggers. The loggers keep working but
// file outputs are reopened only by the next Init.
func Sync() error {
	mu.Lock()
	cs := closers
	closers = nil
	mu.Unlock()
	return closeAll(cs)
}

// Named returns a child logger tagged with the provided component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}
