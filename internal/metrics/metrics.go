// Package metrics provides Prometheus metrics for the orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts total runs by final status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Total number of runs by final status",
		},
		[]string{"status"}, // "completed", "failed", "cancelled"
	)

	// RunsActive tracks currently executing runs.
	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "runs_active",
			Help:      "Number of currently running runs",
		},
	)

	// RunDuration tracks run execution duration.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "run_duration_seconds",
			Help:      "Run execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	// NodesTotal counts node completions by terminal status.
	NodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "nodes_total",
			Help:      "Total number of nodes executed by terminal status",
		},
		[]string{"status"}, // "done", "failed", "skipped"
	)

	// NodeDuration tracks skill invocation duration.
	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "node_duration_seconds",
			Help:      "Skill invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"skill"},
	)

	// EventsTotal counts events emitted by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "events_total",
			Help:      "Total number of events emitted",
		},
		[]string{"type"},
	)

	// TemplateInstantiations counts template instantiations by result.
	TemplateInstantiations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "template_instantiations_total",
			Help:      "Total number of template instantiations",
		},
		[]string{"result"}, // "ok", "missing_variable", "invalid"
	)

	// SkillsIndexed tracks the number of skills in the registry.
	SkillsIndexed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "skills_indexed",
			Help:      "Number of skills currently registered",
		},
	)

	// MatchRequests counts capability ranking requests.
	MatchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "match_requests_total",
			Help:      "Total number of skill match requests",
		},
		[]string{"ranker"}, // "keyword", "hybrid"
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SSEActiveConnections tracks open event stream connections.
	SSEActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "sse_active_connections",
			Help:      "Number of open SSE event stream connections",
		},
	)

	// ArtifactOffloads counts context outputs spilled to object storage.
	ArtifactOffloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillflow",
			Subsystem: "orchestrator",
			Name:      "artifact_offloads_total",
			Help:      "Total number of node outputs offloaded to object storage",
		},
		[]string{"result"}, // "ok", "error"
	)
)
