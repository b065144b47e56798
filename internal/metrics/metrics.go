// Package metrics exposes Prometheus instrumentation for annealing runs.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantumflow/annealflow/internal/anneal"
	"github.com/quantumflow/annealflow/internal/models"
)

// Metrics holds all Prometheus metrics for annealflow
type Metrics struct {
	gatherer prometheus.Gatherer

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunQuality  *prometheus.HistogramVec
	RunDuration *prometheus.HistogramVec

	// Iteration metrics
	IterationsTotal    *prometheus.CounterVec
	Temperature        *prometheus.GaugeVec
	GenerationFailures *prometheus.CounterVec

	// System metrics
	AgentsTotal   prometheus.Gauge
	StoreErrors   *prometheus.CounterVec
	PoolQueue     prometheus.Gauge
	PoolInflight  prometheus.Gauge
	PoolCompleted *prometheus.CounterVec
}

var _ anneal.Recorder = (*Metrics)(nil)

// New creates the metrics and registers them with reg. A nil reg uses a
// fresh private registry, which keeps tests isolated.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annealflow_runs_total",
				Help: "Total number of task executions",
			},
			[]string{"category", "result"},
		),
		RunQuality: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "annealflow_run_quality",
				Help:    "Best quality reached per execution",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"category"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "annealflow_run_duration_seconds",
				Help:    "Duration of task executions in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~44min
			},
			[]string{"category"},
		),

		IterationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annealflow_iterations_total",
				Help: "Total number of annealing iterations",
			},
			[]string{"category", "accepted"},
		),
		Temperature: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "annealflow_temperature",
				Help: "Temperature after the most recent iteration",
			},
			[]string{"category"},
		),
		GenerationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annealflow_generation_failures_total",
				Help: "Candidate generations that fell back to the template",
			},
			[]string{"category"},
		),

		AgentsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "annealflow_agents_total",
				Help: "Number of loaded agent profiles",
			},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annealflow_store_errors_total",
				Help: "Failed agent store operations",
			},
			[]string{"op"},
		),
		PoolQueue: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "annealflow_pool_queue_length",
				Help: "Jobs waiting in the execution pool",
			},
		),
		PoolInflight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "annealflow_pool_inflight",
				Help: "Jobs currently executing in the pool",
			},
		),
		PoolCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annealflow_pool_jobs_total",
				Help: "Jobs finished by the execution pool",
			},
			[]string{"result"},
		),
	}
}

// ObserveIteration records one annealing step
func (m *Metrics) ObserveIteration(category models.AgentCategory, temperature float64, accepted bool) {
	m.IterationsTotal.WithLabelValues(string(category), strconv.FormatBool(accepted)).Inc()
	m.Temperature.WithLabelValues(string(category)).Set(temperature)
}

// ObserveGenerationFailure records a generator error
func (m *Metrics) ObserveGenerationFailure(category models.AgentCategory) {
	m.GenerationFailures.WithLabelValues(string(category)).Inc()
}

// ObserveRun records a finished execution
func (m *Metrics) ObserveRun(category models.AgentCategory, result *models.TaskResult) {
	m.RunsTotal.WithLabelValues(string(category), runResult(result)).Inc()
	m.RunQuality.WithLabelValues(string(category)).Observe(result.Quality)
	m.RunDuration.WithLabelValues(string(category)).Observe(result.Duration.Seconds())
}

func runResult(result *models.TaskResult) string {
	switch {
	case result.Cancelled:
		return "cancelled"
	case result.Success:
		return "success"
	default:
		return "failure"
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
