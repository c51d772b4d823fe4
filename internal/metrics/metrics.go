// Package metrics exposes watcher counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "envcerts"

// Metrics holds the watcher collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal   prometheus.Counter
	outcomesTotal *prometheus.CounterVec
	pending       prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "events_total",
			Help:      "Environment creation events dispatched to the coordinator",
		}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Replacement outcomes by kind",
		}, []string{"kind"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_sequences",
			Help:      "Coordination sequences that have not reached a terminal outcome",
		}),
	}

	m.registry.MustRegister(m.eventsTotal, m.outcomesTotal, m.pending)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// EventObserved counts one dispatched event.
func (m *Metrics) EventObserved() {
	if m == nil {
		return
	}
	m.eventsTotal.Inc()
}

// SequenceStarted marks a coordination sequence as in flight.
func (m *Metrics) SequenceStarted() {
	if m == nil {
		return
	}
	m.pending.Inc()
}

// SequenceFinished marks a coordination sequence as done.
func (m *Metrics) SequenceFinished() {
	if m == nil {
		return
	}
	m.pending.Dec()
}

// OutcomeRecorded counts one outcome of the given kind.
func (m *Metrics) OutcomeRecorded(kind string) {
	if m == nil {
		return
	}
	m.outcomesTotal.With(prometheus.Labels{"kind": kind}).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
