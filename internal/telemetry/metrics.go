package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. Each server instance
// owns its own registry so tests never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	MissionsTotal    *prometheus.CounterVec
	MissionDuration  prometheus.Histogram
	ToolCallsTotal   *prometheus.CounterVec
	TokensTotal      *prometheus.CounterVec
	RateLimitRejects prometheus.Counter
	ActiveMissions   prometheus.Gauge
}

// NewMetrics creates a Metrics set backed by a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	factory := promauto.With(reg)

	m.RequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "missiongate_http_requests_total",
		Help: "HTTP requests by path and status code.",
	}, []string{"path", "code"})

	m.MissionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "missiongate_missions_total",
		Help: "Completed missions by terminal status.",
	}, []string{"status"})

	m.MissionDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "missiongate_mission_duration_seconds",
		Help:    "Wall-clock duration of completed missions.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	m.ToolCallsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "missiongate_tool_calls_total",
		Help: "Tool invocations by tool name and outcome.",
	}, []string{"tool", "status"})

	m.TokensTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "missiongate_llm_tokens_total",
		Help: "LLM tokens consumed by direction.",
	}, []string{"direction"})

	m.RateLimitRejects = factory.NewCounter(prometheus.CounterOpts{
		Name: "missiongate_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter.",
	})

	m.ActiveMissions = factory.NewGauge(prometheus.GaugeOpts{
		Name: "missiongate_active_missions",
		Help: "Missions currently streaming.",
	})

	return m
}

// ObserveMission records one completed mission.
func (m *Metrics) ObserveMission(status string, duration time.Duration, inputTokens, outputTokens int) {
	m.MissionsTotal.WithLabelValues(status).Inc()
	m.MissionDuration.Observe(duration.Seconds())
	m.TokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	m.TokensTotal.WithLabelValues("output").Add(float64(outputTokens))
}

// ObserveToolCall records one tool invocation.
func (m *Metrics) ObserveToolCall(tool string, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the registry for tests.
func (m *Metrics) Gather() prometheus.Gatherer {
	return m.registry
}
