package monitoring

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()
	m.ObservePrediction("ok", "Fit", time.Millisecond)
	m.ObservePrediction("ok", "Fit", time.Millisecond)
	m.ObservePrediction("invalid", "", time.Millisecond)
	m.ObserveReload(errors.New("boom"))
	m.ObserveCache(true)
	m.SetBundle("run-1", "random_forest", "bmi")
	m.SetBundle("run-2", "random_forest", "bmi")

	if got := testutil.ToFloat64(m.predictions.WithLabelValues("ok", "Fit")); got != 2 {
		t.Fatalf("expected 2 ok predictions, got %v", got)
	}
	if got := testutil.ToFloat64(m.reloads.WithLabelValues("failure")); got != 1 {
		t.Fatalf("expected 1 failed reload, got %v", got)
	}
	if got := testutil.CollectAndCount(m.bundleInfo); got != 1 {
		t.Fatalf("expected a single bundle series, got %d", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveHTTP("POST", "/predict", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `bodytype_http_requests_total{code="200",method="POST",path="/predict"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObservePrediction("ok", "Fit", time.Millisecond)
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	m.SetBundle("run", "decision_tree", "dataset")
	m.ObserveReload(nil)
	m.ObserveCache(false)
	if m.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}
