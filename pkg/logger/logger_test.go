package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotatingWriterKeepsBoundedBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	w, err := newRotatingWriter(path, 1, 2, 1)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	w.maxSize = 16
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		if _, err := w.Write([]byte("0123456789\n")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	backups := w.backups()
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups, got %v", backups)
	}
	if backups[0] <= backups[1] {
		t.Fatalf("backups should be newest first: %v", backups)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read active file: %v", err)
	}
	if string(data) != "0123456789\n" {
		t.Fatalf("active file should hold only the last record, got %q", data)
	}
}

func TestRotatingWriterIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	if err := os.WriteFile(path+".keep", []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	w, err := newRotatingWriter(path, 1, 1, 1)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if got := w.backups(); len(got) != 0 {
		t.Fatalf("unexpected backups %v", got)
	}
	if _, err := newRotatingWriter("", 1, 1, 1); err == nil {
		t.Fatalf("empty path should be rejected")
	}
}

func TestInitTagsComponentAndAudit(t *testing.T) {
	dir := t.TempDir()
	appPath := filepath.Join(dir, "app.log")
	auditPath := filepath.Join(dir, "audit", "audit.log")

	if err := Init(Config{
		Level:       "debug",
		OutputPaths: []string{appPath},
		Service:     "test-svc",
		Audit:       AuditConfig{Enabled: true, Path: auditPath},
	}); err != nil {
		t.Fatalf("init: %v", err)
	}
	Named("router").Debug("batch start", "actions", 2)
	Audit().Info("batch committed", "batch_id", "b-1")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	app, err := os.ReadFile(appPath)
	if err != nil {
		t.Fatalf("read app log: %v", err)
	}
	for _, want := range []string{`"component":"router"`, `"service":"test-svc"`, `"actions":2`} {
		if !strings.Contains(string(app), want) {
			t.Fatalf("app log missing %s: %s", want, app)
		}
	}
	audit, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(audit), `"batch_id":"b-1"`) || strings.Contains(string(app), "batch committed") {
		t.Fatalf("audit records should only reach the audit file: app=%s audit=%s", app, audit)
	}

	if err := Init(Config{}); err != nil {
		t.Fatalf("reset: %v", err)
	}
}
