package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SweepDone("ok", 20*time.Millisecond)
	m.SweepDone("ok", 10*time.Millisecond)
	m.FetchFailed("vm_status")
	m.Notified("running", true)
	m.Notified("running", false)
	m.Ignored()
	m.SetTracked(3)

	if got := testutil.ToFloat64(m.sweeps.WithLabelValues("ok")); got != 2 {
		t.Errorf("sweeps{ok} = %v", got)
	}
	if got := testutil.ToFloat64(m.fetchFailures.WithLabelValues("vm_status")); got != 1 {
		t.Errorf("fetch_failures{vm_status} = %v", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("running", "failed")); got != 1 {
		t.Errorf("notifications{running,failed} = %v", got)
	}
	if got := testutil.ToFloat64(m.ignored); got != 1 {
		t.Errorf("ignored = %v", got)
	}
	if got := testutil.ToFloat64(m.tracked); got != 3 {
		t.Errorf("tracked = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SweepDone("ok", time.Second)
	m.FetchFailed("nodes")
	m.Notified("stopped", true)
	m.Ignored()
	m.SetTracked(1)
}
