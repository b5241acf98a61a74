// Package metrics exposes the bridge's own Prometheus counters: the
// per-batch statistics spec.md §4.I names (DDL/DML/insert/update/delete/
// bad-event/batch counts) plus apply latency, labeled by connector name
// and source kind. Grounded on the teacher's pkg/metrics/prom.go (the
// promauto registration style and the StartPrometheusServer/PromServerOpts
// shutdown plumbing are kept verbatim); the teacher's own pipeline-shaped
// counters (by pipeline/source/sink) were pipeline-fanout-specific and
// have moved to pkg/pipeline's own metrics.go, since that package is a
// distinct, optional concern from the bridge core this package now
// instruments.
package metrics

import (
	"cmp"
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DDLTotal counts applied DDL records (spec.md §4.I's DDL counter).
	DDLTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchdb_ddl_total",
			Help: "Total number of DDL records applied, by connector and source kind",
		},
		[]string{"connector", "kind"},
	)

	// DMLTotal counts applied DML records broken out by op (insert/
	// update/delete), matching spec.md §4.I's insert/update/delete
	// counters.
	DMLTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchdb_dml_total",
			Help: "Total number of DML records applied, by connector, source kind, and op",
		},
		[]string{"connector", "kind", "op"},
	)

	// BadEventTotal counts per-event failures recorded by
	// Connector.recordBadEvent (spec.md §7's "event counted as a bad
	// event" propagation policy).
	BadEventTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchdb_bad_event_total",
			Help: "Total number of events that failed parse/convert/apply, by connector and source kind",
		},
		[]string{"connector", "kind"},
	)

	// BatchTotal counts committed batches (spec.md §4.I's batch counter).
	BatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchdb_batch_total",
			Help: "Total number of batches committed, by connector and source kind",
		},
		[]string{"connector", "kind"},
	)

	// ApplyLatency observes the wall-clock duration of one batch's
	// convert+apply phase.
	ApplyLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synchdb_apply_batch_duration_seconds",
			Help:    "Duration of a batch's convert+apply phase",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"connector", "kind"},
	)
)

// BatchStats is the subset of lifecycle.Stats this package records;
// declared locally (rather than importing pkg/synchdb/lifecycle) so
// this package stays a leaf dependency any connector, including test
// doubles, can observe into without an import cycle.
type BatchStats struct {
	DDLCount      uint64
	InsertCount   uint64
	UpdateCount   uint64
	DeleteCount   uint64
	BadEventCount uint64
}

// ObserveBatch records one committed batch's counters. Called once per
// batch from pkg/synchdb/connector.Connector.processBatch, after commit
// succeeds, per spec.md §4.I's "flushed to shared state at batch commit"
// rule.
func ObserveBatch(connectorName, kind string, stats BatchStats) {
	if stats.DDLCount > 0 {
		DDLTotal.WithLabelValues(connectorName, kind).Add(float64(stats.DDLCount))
	}
	if stats.InsertCount > 0 {
		DMLTotal.WithLabelValues(connectorName, kind, "insert").Add(float64(stats.InsertCount))
	}
	if stats.UpdateCount > 0 {
		DMLTotal.WithLabelValues(connectorName, kind, "update").Add(float64(stats.UpdateCount))
	}
	if stats.DeleteCount > 0 {
		DMLTotal.WithLabelValues(connectorName, kind, "delete").Add(float64(stats.DeleteCount))
	}
	if stats.BadEventCount > 0 {
		BadEventTotal.WithLabelValues(connectorName, kind).Add(float64(stats.BadEventCount))
	}
	BatchTotal.WithLabelValues(connectorName, kind).Inc()
}

// TimeApply returns a function that, when called, observes the elapsed
// time since TimeApply was called into ApplyLatency. Use as:
//
//	stop := metrics.TimeApply(name, kind)
//	defer stop()
func TimeApply(connectorName, kind string) func() {
	timer := prometheus.NewTimer(ApplyLatency.WithLabelValues(connectorName, kind))
	return func() { timer.ObserveDuration() }
}

type PromServerOpts struct {
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// StartPrometheusServer starts a Prometheus metrics server exposing this
// package's synchdb_* counters. The server shuts down gracefully when
// ctx is canceled.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	// merge with defaults
	effectiveOpts := defaultPrometheusServerOptions()
	if opts != nil {
		effectiveOpts.Addr = cmp.Or(opts.Addr, effectiveOpts.Addr)
		effectiveOpts.Path = cmp.Or(opts.Path, effectiveOpts.Path)
		effectiveOpts.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effectiveOpts.ShutdownTimeout)
		effectiveOpts.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effectiveOpts.ReadHeaderTimeout)
	}

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})

	// Increment wait group
	wg.Add(1)

	// Start server
	go func() {
		defer wg.Done()
		log.Printf("Starting synchdb metrics server on %s", effectiveOpts.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
		close(serverClosed)
	}()

	// Monitor context cancellation in a separate goroutine
	go func() {
		<-ctx.Done()

		// Create a timeout context for shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
		defer shutdownCancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down metrics server: %v", err)
		}

		// Wait for server to close or timeout
		select {
		case <-serverClosed:
			log.Println("Metrics server shutdown complete")
		case <-shutdownCtx.Done():
			log.Println("Metrics server shutdown timed out")
		}
	}()
}
