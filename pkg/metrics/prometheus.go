// Package metrics exposes Prometheus metrics for model calls, pipelines and the dispatcher.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taskbot"

// Recorder owns every taskbot metric on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costTotal       *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	activeConversations prometheus.Gauge
	runningPipelines    prometheus.Gauge
	pipelineSteps       *prometheus.CounterVec
	dispatchEvents      *prometheus.CounterVec
}

// NewRecorder creates a Recorder with Go and process collectors registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Model calls by model, status and error type.",
		}, []string{"model", "status", "error_type"}),
		tokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by model and direction.",
		}, []string{"model", "type"}),
		costTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Model spend in USD.",
		}, []string{"model"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Model call latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1200},
		}, []string{"model"}),
		activeConversations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Conversations shown by the status multiplexer.",
		}),
		runningPipelines: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_pipelines",
			Help:      "Conversations whose status label is running.",
		}),
		pipelineSteps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_steps_total",
			Help:      "Pipeline steps by pipeline, step and outcome.",
		}, []string{"pipeline", "step", "outcome"}),
		dispatchEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_events_total",
			Help:      "Inbound events by dispatcher outcome.",
		}, []string{"outcome"}),
	}
}

// Registry is served by the /metrics handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRequest records one finished model call.
func (r *Recorder) ObserveRequest(model string, inputTokens, outputTokens int, costUSD float64, errorType string, duration time.Duration) {
	status := "success"
	if errorType != "" {
		status = "error"
	}
	r.requestsTotal.WithLabelValues(model, status, errorType).Inc()
	r.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
	if errorType == "" {
		r.tokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
		r.tokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
		r.costTotal.WithLabelValues(model).Add(costUSD)
	}
}

// SetConversations updates the status gauges.
func (r *Recorder) SetConversations(active, running int) {
	r.activeConversations.Set(float64(active))
	r.runningPipelines.Set(float64(running))
}

// IncStep counts a pipeline step outcome ("ok" or "error").
func (r *Recorder) IncStep(pipeline, step, outcome string) {
	r.pipelineSteps.WithLabelValues(pipeline, step, outcome).Inc()
}

// IncDispatch counts a dispatcher decision.
func (r *Recorder) IncDispatch(outcome string) {
	r.dispatchEvents.WithLabelValues(outcome).Inc()
}
