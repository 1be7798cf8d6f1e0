// Package metrics exposes Prometheus instruments for the import pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finance_import"

// Metrics holds the import pipeline collectors.
type Metrics struct {
	JobsProcessed   *prometheus.CounterVec
	Rows            *prometheus.CounterVec
	ImportDuration  *prometheus.HistogramVec
	JobsByStatus    *prometheus.GaugeVec
	OrphansRequeued prometheus.Counter
	QueueDepth      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Import jobs that reached a terminal state, by status.",
		}, []string{"status"}),
		Rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows seen by the importer, by handler and outcome.",
		}, []string{"handler", "outcome"}),
		ImportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Time spent importing one file, by handler.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
		JobsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Import jobs currently in a non-terminal status.",
		}, []string{"status"}),
		OrphansRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphans_requeued_total",
			Help:      "SENT jobs picked up again by the sweeper.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting in the in-process queue.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.JobsProcessed, m.Rows, m.ImportDuration, m.JobsByStatus, m.OrphansRequeued, m.QueueDepth,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// ObserveImport records the row outcomes and duration of one import.
func (m *Metrics) ObserveImport(handler string, imported, failed, skipped int, took time.Duration) {
	if m == nil {
		return
	}
	m.Rows.WithLabelValues(handler, "imported").Add(float64(imported))
	m.Rows.WithLabelValues(handler, "failed").Add(float64(failed))
	m.Rows.WithLabelValues(handler, "skipped").Add(float64(skipped))
	m.ImportDuration.WithLabelValues(handler).Observe(took.Seconds())
}

// JobFinished counts a job reaching status.
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.JobsProcessed.WithLabelValues(status).Inc()
}

// SetJobsByStatus updates the gauge for status.
func (m *Metrics) SetJobsByStatus(status string, count int) {
	if m == nil {
		return
	}
	m.JobsByStatus.WithLabelValues(status).Set(float64(count))
}

// OrphanRequeued counts one sweeper pickup.
func (m *Metrics) OrphanRequeued() {
	if m == nil {
		return
	}
	m.OrphansRequeued.Inc()
}

// SetQueueDepth reports the number of queued jobs.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// Serve exposes gatherer on /metrics until ctx is cancelled.
func Serve(ctx context.Context, port int, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}()

	logger.Info("metrics server listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
