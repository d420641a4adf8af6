package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "OpenUTR/internal/errors"
)

type failingNotifier struct{}

func (failingNotifier) Channel() Channel { return "broken" }
func (failingNotifier) Notify(context.Context, Event) error { return errors.New("boom") }

func TestWebhookNotifierPostsEvent(t *testing.T) {
	t.Parallel()

	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL}
	event := Event{Code: "UNAUTHORIZED", Severity: xerrors.SeverityWarning, BatchID: "b-1", Attempts: 1, MaxRetries: 3, OccurredAt: time.Now()}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.BatchID != "b-1" || got.Code != "UNAUTHORIZED" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestWebhookNotifierReportsHTTPFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := (&WebhookNotifier{URL: srv.URL}).Notify(context.Background(), Event{}); err == nil {
		t.Fatalf("期望非 2xx 状态返回错误")
	}
	if err := (&WebhookNotifier{}).Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("unconfigured webhook should be skipped: %v", err)
	}
}

func TestFanoutJoinsErrorsAndLogs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logNotifier := &LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	fanout := NewFanout(logNotifier, failingNotifier{}, nil)

	err := fanout.Notify(context.Background(), Event{Code: "TASK_RETRIES_EXHAUSTED", Severity: xerrors.SeverityCritical, BatchID: "b-2", Metadata: map[string]string{"stage": "terminal"}})
	if err == nil || !strings.Contains(err.Error(), "channel broken") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !strings.Contains(buf.String(), `"batch_id":"b-2"`) || !strings.Contains(buf.String(), `"stage":"terminal"`) {
		t.Fatalf("log notifier output missing fields: %s", buf.String())
	}

	var nilFanout *FanoutDispatcher
	if err := nilFanout.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("nil dispatcher should be a no-op: %v", err)
	}
}
