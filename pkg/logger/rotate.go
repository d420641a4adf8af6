package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const backupTimeFormat = "20060102T150405.000000000"

// rotatingWriter appends to path and, once the file would exceed maxSize,
// renames it to path.<timestamp> and starts a new one. Backups beyond
// maxBackups or older than maxAge are removed after each rotation.
type rotatingWriter struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	maxSize    int64
	maxBackups int
	maxAge     time.Duration
	size       int64
	now        func() time.Time
}

func newRotatingWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) (*rotatingWriter, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	if maxBackups <= 0 {
		maxBackups = 7
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &rotatingWriter{
		path:       path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
		now:        time.Now,
	}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.open(); err != nil {
		return 0, err
	}
	// A single record larger than maxSize still goes to a fresh file.
	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.size = 0
	return err
}

func (w *rotatingWriter) open() error {
	if w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

func (w *rotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}
	w.file = nil
	w.size = 0

	backup := w.path + "." + w.now().UTC().Format(backupTimeFormat)
	if err := os.Rename(w.path, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	w.prune()
	return w.open()
}

// backups returns existing backup files, newest first.
func (w *rotatingWriter) backups() []string {
	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return nil
	}
	prefix := w.path + "."
	out := matches[:0]
	for _, m := range matches {
		if _, err := time.Parse(backupTimeFormat, strings.TrimPrefix(m, prefix)); err == nil {
			out = append(out, m)
		}
	}
	// The timestamp layout sorts lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

func (w *rotatingWriter) prune() {
	cutoff := w.now().Add(-w.maxAge)
	for i, path := range w.backups() {
		if i >= w.maxBackups {
			_ = os.Remove(path)
			continue
		}
		if info, err := os.Stat(path); err == nil && info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}
