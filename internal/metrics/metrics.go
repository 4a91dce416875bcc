// Package metrics exposes monitor activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/projecteru2/core/log"
)

const namespace = "pvewatch"

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	fetchFailures *prometheus.CounterVec
	notifications *prometheus.CounterVec
	ignored       prometheus.Counter
	tracked       prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed sweeps by result (ok, aborted, failed).",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Hypervisor API calls that returned no data, by endpoint kind.",
		}, []string{"endpoint"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications dispatched, by canonical state and delivery result.",
		}, []string{"state", "result"}),
		ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ignored_vms_total",
			Help:      "VMs skipped because their ID is in the ignored range.",
		}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_vms",
			Help:      "VM keys held in the last-state table.",
		}),
	}
	reg.MustRegister(m.sweeps, m.sweepDuration, m.fetchFailures, m.notifications, m.ignored, m.tracked)
	return m
}

func (m *Metrics) SweepDone(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(result).Inc()
	m.sweepDuration.Observe(took.Seconds())
}

func (m *Metrics) FetchFailed(endpoint string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) Notified(state string, delivered bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !delivered {
		result = "failed"
	}
	m.notifications.WithLabelValues(state, result).Inc()
}

func (m *Metrics) Ignored() {
	if m == nil {
		return
	}
	m.ignored.Inc()
}

func (m *Metrics) SetTracked(n int) {
	if m == nil {
		return
	}
	m.tracked.Set(float64(n))
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	logger := log.WithFunc("metrics.Serve")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof(ctx, "serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
