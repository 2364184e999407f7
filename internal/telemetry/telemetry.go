// Package telemetry tracks pipeline metrics and LLM spend.
package telemetry

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/scholar/config"
)

// Telemetry provides monitoring and cost tracking for research runs.
type Telemetry struct {
	config   config.TelemetryConfig
	logger   *log.Logger
	registry *prometheus.Registry

	tasksTotal      *prometheus.CounterVec
	revisionsTotal  prometheus.Counter
	taskDuration    prometheus.Histogram
	evidenceResults *prometheus.CounterVec
	llmTokens       *prometheus.CounterVec
	llmCost         *prometheus.CounterVec

	mu          sync.Mutex
	totalCost   float64
	totalTokens int64
}

// NewTelemetry creates a telemetry instance with its own metric registry.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config:   cfg,
		logger:   log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		registry: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholar_tasks_total",
			Help: "Research tasks by terminal status.",
		}, []string{"status"}),
		revisionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scholar_revisions_total",
			Help: "Revision cycles performed.",
		}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scholar_task_duration_seconds",
			Help:    "Wall time of a research run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		evidenceResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholar_evidence_results_total",
			Help: "Evidence items returned per source kind.",
		}, []string{"kind"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholar_llm_tokens_total",
			Help: "LLM tokens used per model and direction.",
		}, []string{"model", "direction"}),
		llmCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholar_llm_cost_usd_total",
			Help: "Estimated LLM spend per model in USD.",
		}, []string{"model"}),
	}
	t.registry.MustRegister(t.tasksTotal, t.revisionsTotal, t.taskDuration, t.evidenceResults, t.llmTokens, t.llmCost)
	return t
}

// Handler exposes the metric registry for the HTTP server.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// RecordTask records a finished task with its terminal status and duration.
func (t *Telemetry) RecordTask(status string, duration time.Duration) {
	if t == nil {
		return
	}
	t.tasksTotal.WithLabelValues(status).Inc()
	t.taskDuration.Observe(duration.Seconds())
}

// RecordRevision records one completed revision cycle.
func (t *Telemetry) RecordRevision() {
	if t == nil {
		return
	}
	t.revisionsTotal.Inc()
}

// RecordEvidence records the number of items one source kind returned.
func (t *Telemetry) RecordEvidence(kind string, count int) {
	if t == nil {
		return
	}
	t.evidenceResults.WithLabelValues(kind).Add(float64(count))
}

// RecordLLMUsage records token usage and estimated cost for one call.
func (t *Telemetry) RecordLLMUsage(model string, inputTokens, outputTokens int64, cost float64) {
	if t == nil {
		return
	}
	t.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	t.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	if t.config.CostTracking {
		t.llmCost.WithLabelValues(model).Add(cost)
		t.mu.Lock()
		t.totalCost += cost
		t.totalTokens += inputTokens + outputTokens
		t.mu.Unlock()
	}
}

// Totals returns cumulative cost and token counts since startup.
func (t *Telemetry) Totals() (float64, int64) {
	if t == nil {
		return 0, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCost, t.totalTokens
}
