package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	laneWaitTime prometheus.Histogram

	activeSessions      prometheus.Gauge
	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram
	sessionsSwept       prometheus.Counter

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	turnTotal         *prometheus.CounterVec
	turnDuration      prometheus.Histogram
	roundsPerTurn     prometheus.Histogram
	llmCallTotal      *prometheus.CounterVec
	llmCallDuration   *prometheus.HistogramVec
	retryTotal        *prometheus.CounterVec
	guardrailTotal    *prometheus.CounterVec
	providerCooldown  *prometheus.GaugeVec
	runStoreSize      prometheus.Gauge
	streamEventsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "shopagent_queue_size",
					Help: "Current queued turns by lane.",
				},
				[]string{"lane"},
			),
			laneWaitTime: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "shopagent_lane_wait_seconds",
					Help:    "Time a turn waited for its session lane.",
					Buckets: prometheus.DefBuckets,
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "shopagent_active_sessions",
					Help: "Sessions held by the in-process store.",
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "shopagent_session_load_duration_seconds",
					Help:    "Session load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "shopagent_session_save_duration_seconds",
					Help:    "Session save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionsSwept: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "shopagent_sessions_swept_total",
					Help: "Expired sessions removed by the periodic sweep.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "shopagent_tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_tool_errors_total",
					Help: "Total tool execution errors by tool and code.",
				},
				[]string{"tool", "code"},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_turn_total",
					Help: "Total chat turns by outcome.",
				},
				[]string{"outcome"},
			),
			turnDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "shopagent_turn_duration_seconds",
					Help:    "Chat turn duration in seconds.",
					Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
				},
			),
			roundsPerTurn: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "shopagent_rounds_per_turn",
					Help:    "LLM rounds used per turn.",
					Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
				},
			),
			llmCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_llm_call_total",
					Help: "Total LLM calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			llmCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "shopagent_llm_call_duration_seconds",
					Help:    "LLM call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			retryTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_retry_total",
					Help: "Retry attempts by scope.",
				},
				[]string{"scope"},
			),
			guardrailTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_guardrail_decision_total",
					Help: "Guardrail decisions by guardrail and decision.",
				},
				[]string{"guardrail", "decision"},
			),
			providerCooldown: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "shopagent_provider_cooldown_active",
					Help: "Provider cooldown active state (1 active, 0 inactive).",
				},
				[]string{"provider"},
			),
			runStoreSize: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "shopagent_run_store_size",
					Help: "Diagnostic run records currently held.",
				},
			),
			streamEventsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_stream_events_total",
					Help: "Stream events emitted by type.",
				},
				[]string{"type"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.laneWaitTime,
			m.activeSessions,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.sessionsSwept,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.turnTotal,
			m.turnDuration,
			m.roundsPerTurn,
			m.llmCallTotal,
			m.llmCallDuration,
			m.retryTotal,
			m.guardrailTotal,
			m.providerCooldown,
			m.runStoreSize,
			m.streamEventsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func DeleteQueue(lane string) {
	m := getMetrics()
	m.queueSize.DeleteLabelValues(lane)
}

func RecordLaneWait(wait time.Duration) {
	m := getMetrics()
	m.laneWaitTime.Observe(wait.Seconds())
}

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordSessionLoad(duration time.Duration) {
	m := getMetrics()
	m.sessionLoadDuration.Observe(duration.Seconds())
}

func RecordSessionSave(duration time.Duration) {
	m := getMetrics()
	m.sessionSaveDuration.Observe(duration.Seconds())
}

func RecordSessionsSwept(count int) {
	m := getMetrics()
	m.sessionsSwept.Add(float64(count))
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordToolError(tool, code string) {
	m := getMetrics()
	m.toolErrorsTotal.WithLabelValues(tool, code).Inc()
}

func RecordTurn(outcome string, duration time.Duration, rounds int) {
	m := getMetrics()
	m.turnTotal.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(duration.Seconds())
	m.roundsPerTurn.Observe(float64(rounds))
}

func RecordLLMCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.llmCallTotal.WithLabelValues(provider, status).Inc()
	m.llmCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordRetry(scope string) {
	m := getMetrics()
	m.retryTotal.WithLabelValues(scope).Inc()
}

func RecordGuardrail(guardrail, decision string) {
	m := getMetrics()
	m.guardrailTotal.WithLabelValues(guardrail, decision).Inc()
}

func SetProviderCooldown(provider string, active bool) {
	m := getMetrics()
	value := 0.0
	if active {
		value = 1
	}
	m.providerCooldown.WithLabelValues(provider).Set(value)
}

func SetRunStoreSize(size int) {
	m := getMetrics()
	m.runStoreSize.Set(float64(size))
}

func RecordStreamEvent(eventType string) {
	m := getMetrics()
	m.streamEventsTotal.WithLabelValues(eventType).Inc()
}
