package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveHTTPRequestCountsServerErrors(t *testing.T) {
	before := testutil.ToFloat64(httpErrors.WithLabelValues("batches_test", http.MethodPost))

	ObserveHTTPRequest("batches_test", http.MethodPost, http.StatusAccepted, 20*time.Millisecond)
	ObserveHTTPRequest("batches_test", http.MethodPost, http.StatusInternalServerError, 3*time.Second)

	if got := testutil.ToFloat64(httpRequests.WithLabelValues("batches_test", http.MethodPost, "202")); got < 1 {
		t.Fatalf("202 counter = %v", got)
	}
	if got := testutil.ToFloat64(httpErrors.WithLabelValues("batches_test", http.MethodPost)); got != before+1 {
		t.Fatalf("错误计数应只增加 1: before=%v after=%v", before, got)
	}
}

func TestObserveBatch(t *testing.T) {
	actions := testutil.ToFloat64(batchActions)
	reverted := testutil.ToFloat64(batches.WithLabelValues(OutcomeReverted, "NOT_CALLABLE"))

	ObserveBatch(OutcomeCommitted, "", 3, 2*time.Millisecond)
	ObserveBatch(OutcomeReverted, "NOT_CALLABLE", 1, time.Millisecond)

	if got := testutil.ToFloat64(batchActions); got != actions+4 {
		t.Fatalf("actions = %v, want %v", got, actions+4)
	}
	if got := testutil.ToFloat64(batches.WithLabelValues(OutcomeReverted, "NOT_CALLABLE")); got != reverted+1 {
		t.Fatalf("reverted = %v, want %v", got, reverted+1)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	ObserveTaskTransition("succeeded")
	ObserveBatch(OutcomeCommitted, "", 1, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	text := rec.Body.String()
	for _, want := range []string{
		`openutr_batch_tasks_total{status="succeeded"}`,
		`openutr_batches_total{code="",outcome="committed"}`,
		`openutr_batch_duration_seconds_bucket{outcome="committed",le="+Inf"}`,
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %s\n%s", want, text)
		}
	}
}
