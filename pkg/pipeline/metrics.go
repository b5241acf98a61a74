package pipeline

// Metrics for the optional CDC-event fanout-sink layer (pkg/pipeline):
// counters and a duration histogram for the source -> transform -> sink
// routing pkg/pipeline/process.go drives. Kept as their own metrics
// (rather than folded into pkg/metrics, which instruments the bridge's
// apply path) since this layer's pipeline/source/sink label shape
// doesn't match the bridge's connector/kind shape, and the two are
// wired from different call sites (pkg/synchdb/connector.SinkMirror for
// the bridge, pkg/pipeline/process.go's own pipeline routing here).

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransformationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgo_pipeline_transformation_errors_total",
			Help: "Total number of transformation errors by type and pipeline",
		},
		[]string{"error_type", "pipeline", "source", "sink"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgo_pipeline_publish_errors_total",
			Help: "Total number of publish errors by sink",
		},
		[]string{"sink"},
	)

	ProcessedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgo_pipeline_processed_events_total",
			Help: "Total number of events routed through the fanout-sink layer, by pipeline",
		},
		[]string{"pipeline", "source", "sink"},
	)

	EventProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgo_pipeline_event_processing_duration_seconds",
			Help:    "Duration of fanout-sink event processing",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline", "source", "sink"},
	)
)
