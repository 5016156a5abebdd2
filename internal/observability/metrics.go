package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ent0n29/scamguard/internal/reliability"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	WSWriteErrors     *prometheus.CounterVec
	CapabilityErrors  *prometheus.CounterVec
	CapabilityLatency *prometheus.HistogramVec
	Verdicts          *prometheus.CounterVec
	Escalations       prometheus.Counter
	TextChecks        *prometheus.CounterVec

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active analysis sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write failures by operation.",
		}, []string{"op"}),
		CapabilityErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_errors_total",
			Help:      "Capability failures by capability and error kind.",
		}, []string{"capability", "kind"}),
		CapabilityLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_latency_ms",
			Help:      "Capability call latency in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}, []string{"capability"}),
		Verdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Classified caller turns by verdict.",
		}, []string{"status"}),
		Escalations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_warnings_total",
			Help:      "Escalation warnings emitted.",
		}),
		TextChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "text_checks_total",
			Help:      "Synchronous text checks by verdict.",
		}, []string{"status"}),
		stages: newStageWindow(256),
	}
}

// ObserveCapability records one capability call. The latency also feeds the
// stage window under the same name.
func (m *Metrics) ObserveCapability(capability string, d time.Duration, err error) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.CapabilityLatency.WithLabelValues(capability).Observe(ms)
	m.stages.Observe(capability, ms)
	if err != nil {
		m.CapabilityErrors.WithLabelValues(capability, string(reliability.KindOf(err))).Inc()
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) ObserveVerdict(status string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.Escalations.Inc()
	m.stages.ObserveIndicator(IndicatorWarningSent)
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	return m.stages.Snapshot()
}

func (m *Metrics) ResetStages() {
	m.stages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
