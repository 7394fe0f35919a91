package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type relayMetrics struct {
	activeSessions prometheus.Gauge
	connectedConns *prometheus.GaugeVec

	registrationsTotal prometheus.Counter
	joinsTotal         prometheus.Counter
	heartbeatsTotal    prometheus.Counter

	commandsForwardedTotal *prometheus.CounterVec
	rejectedTotal          *prometheus.CounterVec
	expiredSessionsTotal   prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *relayMetrics
)

func getMetrics() *relayMetrics {
	metricsOnce.Do(func() {
		m := &relayMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "relay_active_sessions",
					Help: "Current number of live sessions.",
				},
			),
			connectedConns: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "relay_connected_connections",
					Help: "Current open connections by role.",
				},
				[]string{"role"},
			),
			registrationsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "relay_agent_registrations_total",
					Help: "Total successful agent registrations.",
				},
			),
			joinsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "relay_controller_joins_total",
					Help: "Total successful controller joins.",
				},
			),
			heartbeatsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "relay_agent_heartbeats_total",
					Help: "Total agent heartbeats received.",
				},
			),
			commandsForwardedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_commands_forwarded_total",
					Help: "Total commands forwarded to agents by command.",
				},
				[]string{"command"},
			),
			rejectedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_messages_rejected_total",
					Help: "Total rejected messages by reason.",
				},
				[]string{"reason"},
			),
			expiredSessionsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "relay_expired_sessions_total",
					Help: "Total sessions removed by TTL expiry.",
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.connectedConns,
			m.registrationsTotal,
			m.joinsTotal,
			m.heartbeatsTotal,
			m.commandsForwardedTotal,
			m.rejectedTotal,
			m.expiredSessionsTotal,
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

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func ConnOpened(role string) {
	m := getMetrics()
	m.connectedConns.WithLabelValues(role).Inc()
}

func ConnClosed(role string) {
	m := getMetrics()
	m.connectedConns.WithLabelValues(role).Dec()
}

func RecordRegistration() {
	m := getMetrics()
	m.registrationsTotal.Inc()
}

func RecordJoin() {
	m := getMetrics()
	m.joinsTotal.Inc()
}

func RecordHeartbeat() {
	m := getMetrics()
	m.heartbeatsTotal.Inc()
}

func RecordCommandForwarded(command string) {
	m := getMetrics()
	m.commandsForwardedTotal.WithLabelValues(command).Inc()
}

func RecordRejected(reason string) {
	m := getMetrics()
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

func RecordExpiredSessions(count int) {
	m := getMetrics()
	m.expiredSessionsTotal.Add(float64(count))
}
