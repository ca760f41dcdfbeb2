// Package metrics exposes the service's Prometheus metrics on a custom
// registry. Counters live at package level so any component can record
// without wiring; cmd/server serves the registry on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for the application
var Registry = prometheus.NewRegistry()

// factory registers metrics to the custom Registry directly
var factory = promauto.With(Registry)

// DistributionRuns counts distribution previews by strategy
var DistributionRuns = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breakroster",
	Subsystem: "distribution",
	Name:      "runs_total",
	Help:      "Distribution previews computed, by strategy",
}, []string{"strategy"})

// DistributionAgents counts per-agent outcomes of distribution runs
var DistributionAgents = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breakroster",
	Subsystem: "distribution",
	Name:      "agents_total",
	Help:      "Agents handled by distribution runs, by outcome",
}, []string{"outcome"})

// DistributionViolations counts rule violations attached to previews
var DistributionViolations = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breakroster",
	Subsystem: "distribution",
	Name:      "violations_total",
	Help:      "Rule violations attached to distribution previews, by severity",
}, []string{"severity"})

// CommitWrites counts per-agent commit outcomes; conflicts are stale
// previews losing against the stored revision
var CommitWrites = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breakroster",
	Subsystem: "distribution",
	Name:      "commit_writes_total",
	Help:      "Break-schedule commit writes, by outcome",
}, []string{"outcome"})

// Transitions counts applied request transitions
var Transitions = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breakroster",
	Subsystem: "workflow",
	Name:      "transitions_total",
	Help:      "Applied request status transitions, by kind and target status",
}, []string{"kind", "to"})

// TransitionConflicts counts transitions lost to a concurrent writer
var TransitionConflicts = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "breakroster",
	Subsystem: "workflow",
	Name:      "transition_conflicts_total",
	Help:      "Request transitions that lost the status compare-and-swap",
})

// SwapExecutions counts swap executions by result
var SwapExecutions = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breakroster",
	Subsystem: "workflow",
	Name:      "swap_executions_total",
	Help:      "Approved swap executions, by result",
}, []string{"result"})

// WarningsRaised counts persisted scheduling advisories by kind
var WarningsRaised = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breakroster",
	Subsystem: "warnings",
	Name:      "raised_total",
	Help:      "Scheduling advisories recorded, by kind",
}, []string{"kind"})

// SweepDuration observes invalidation sweep pass durations
var SweepDuration = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "breakroster",
	Subsystem: "sweep",
	Name:      "duration_seconds",
	Help:      "Time taken by one invalidation sweep pass",
	Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
})

// HTTPRequests counts handled requests by route pattern and status
var HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breakroster",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests handled, by method, route and status",
}, []string{"method", "route", "status"})

// HTTPDuration observes request latency by route pattern
var HTTPDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "breakroster",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency, by method and route",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
}, []string{"method", "route"})
