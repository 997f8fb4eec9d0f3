// Package metrics exposes Prometheus instrumentation for generation, sandbox runs,
// LLM calls and crawls. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "tool_crawler"

// Metrics holds the collectors.
type Metrics struct {
	StageDuration      *prometheus.HistogramVec
	GeneratorRuns      *prometheus.CounterVec
	SandboxExecutions  *prometheus.CounterVec
	LLMRequests        *prometheus.CounterVec
	LLMCircuitState    prometheus.Gauge
	Crawls             *prometheus.CounterVec
	ToolsDiscovered    prometheus.Counter
	CrawlDuration      prometheus.Histogram
}

// New creates and registers all collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initGeneratorMetrics(factory)
	m.initSandboxMetrics(factory)
	m.initLLMMetrics(factory)
	m.initCrawlMetrics(factory)

	return m
}

func (m *Metrics) initGeneratorMetrics(factory promauto.Factory) {
	m.StageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "generator",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each crawler generation stage",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"stage"},
	)

	m.GeneratorRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "generator",
			Name:      "runs_total",
			Help:      "Crawler generation runs by outcome",
		},
		[]string{"status"},
	)
}

func (m *Metrics) initSandboxMetrics(factory promauto.Factory) {
	m.SandboxExecutions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Sandbox executions by result (success or error kind)",
		},
		[]string{"result"},
	)
}

func (m *Metrics) initLLMMetrics(factory promauto.Factory) {
	m.LLMRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "LLM completion requests by status",
		},
		[]string{"status"},
	)

	m.LLMCircuitState = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "llm",
			Name:      "circuit_state",
			Help:      "LLM circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)
}

func (m *Metrics) initCrawlMetrics(factory promauto.Factory) {
	m.Crawls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "crawls_total",
			Help:      "Source crawls by status",
		},
		[]string{"status"},
	)

	m.ToolsDiscovered = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tools_discovered_total",
			Help:      "Tools discovered across all crawls",
		},
	)

	m.CrawlDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Duration of a single source crawl",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
}

// ObserveStage records how long a generator stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordGeneratorRun counts a finished pipeline run.
func (m *Metrics) RecordGeneratorRun(status string) {
	if m == nil {
		return
	}
	m.GeneratorRuns.WithLabelValues(status).Inc()
}

// RecordSandboxExecution counts a sandbox run; result is "success" or an error kind.
func (m *Metrics) RecordSandboxExecution(result string) {
	if m == nil {
		return
	}
	m.SandboxExecutions.WithLabelValues(result).Inc()
}

// RecordLLMRequest counts a completion call; status is "success" or a failure reason.
func (m *Metrics) RecordLLMRequest(status string) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(status).Inc()
}

// SetLLMCircuitState mirrors the breaker state.
func (m *Metrics) SetLLMCircuitState(state int) {
	if m == nil {
		return
	}
	m.LLMCircuitState.Set(float64(state))
}

// RecordCrawl counts a finished crawl and the tools it found.
func (m *Metrics) RecordCrawl(status string, tools int, d time.Duration) {
	if m == nil {
		return
	}
	m.Crawls.WithLabelValues(status).Inc()
	m.ToolsDiscovered.Add(float64(tools))
	m.CrawlDuration.Observe(d.Seconds())
}
