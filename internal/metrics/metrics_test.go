package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	// None of these may panic.
	m.SetSubscriptions(1, 2)
	m.SubscriptionFailed("subscribe")
	m.RefreshCycle()
	m.StreamReconnected()
	m.FillsIngested(3)
	m.Delivery("ok")
	m.JournalRows("inserted", 4)

	if m.Registry() != nil {
		t.Error("nil Metrics should have nil registry")
	}
}

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.SetSubscriptions(3, 1)
	m.SubscriptionFailed("unsubscribe")
	m.SubscriptionFailed("unsubscribe")
	m.RefreshCycle()
	m.FillsIngested(5)
	m.Delivery("ok")
	m.Delivery("failed")

	if got := testutil.ToFloat64(m.subscriptions.WithLabelValues("active")); got != 3 {
		t.Errorf("active subscriptions = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.subscriptions.WithLabelValues("failed_pending_retry")); got != 1 {
		t.Errorf("failed subscriptions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.subscriptionFailures.WithLabelValues("unsubscribe")); got != 2 {
		t.Errorf("unsubscribe failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.refreshCycles); got != 1 {
		t.Errorf("refresh cycles = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.fillsIngested); got != 5 {
		t.Errorf("fills ingested = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed deliveries = %v, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RefreshCycle()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "relay_refresh_cycles_total 1") {
		t.Errorf("body missing relay_refresh_cycles_total:\n%s", rec.Body.String())
	}
}
