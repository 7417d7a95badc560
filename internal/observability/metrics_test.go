package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ScanStarted()
	m.ScanFinished("complete", time.Second)
	m.QuotaDecision(false)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nil handler status %d", rec.Code)
	}
}

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.ScanStarted()
	m.ScanFinished("up_to_date", 3*time.Second)
	m.ObserveUpload("completed", 200*time.Millisecond)
	m.StoreResolved(true)

	if got := testutil.ToFloat64(m.scansFinished.WithLabelValues("up_to_date")); got != 1 {
		t.Fatalf("scans finished = %v", got)
	}
	if got := testutil.ToFloat64(m.activeScans); got != 0 {
		t.Fatalf("active scans = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"ingest_document_uploads_total", `ingest_store_resolves_total{result="existing"} 1`} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q", want)
		}
	}
}
