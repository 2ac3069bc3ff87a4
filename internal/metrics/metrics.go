package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the assistant core.
type Metrics struct {
	registry *prometheus.Registry

	// Tool dispatch metrics
	ToolDispatchesTotal   *prometheus.CounterVec
	ToolDispatchDuration  *prometheus.HistogramVec
	UnknownToolsTotal     prometheus.Counter
	DispatchTimeoutsTotal prometheus.Counter

	// Session metrics
	SessionsActive      prometheus.Gauge
	ConnectionsTotal    *prometheus.CounterVec
	ToolCallsInFlight   prometheus.Gauge
	QuotaExhaustedTotal prometheus.Counter

	// Gateway metrics
	GatewayClientsActive     prometheus.Gauge
	GatewayMessagesTotal     *prometheus.CounterVec
	GatewayAuthFailuresTotal prometheus.Counter
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolDispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iasted_tool_dispatches_total",
				Help: "Total number of tool dispatches",
			},
			[]string{"tool", "status"},
		),
		ToolDispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iasted_tool_dispatch_duration_seconds",
				Help:    "Duration of tool dispatches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		UnknownToolsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "iasted_unknown_tools_total",
				Help: "Tool calls routed to the external fallback handler",
			},
		),
		DispatchTimeoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "iasted_dispatch_timeouts_total",
				Help: "Tool dispatches that exceeded the per-call timeout",
			},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "iasted_sessions_active",
				Help: "Number of live assistant sessions",
			},
		),
		ConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iasted_connections_total",
				Help: "Realtime connection attempts by outcome",
			},
			[]string{"outcome"},
		),
		ToolCallsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "iasted_tool_calls_in_flight",
				Help: "Tool calls currently being dispatched",
			},
		),
		QuotaExhaustedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "iasted_quota_exhausted_total",
				Help: "Anonymous sessions that consumed their question quota",
			},
		),

		GatewayClientsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "iasted_gateway_clients_active",
				Help: "Connected gateway websocket clients",
			},
		),
		GatewayMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iasted_gateway_messages_total",
				Help: "Gateway messages by direction",
			},
			[]string{"direction"},
		),
		GatewayAuthFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "iasted_gateway_auth_failures_total",
				Help: "Gateway connections rejected for bad credentials",
			},
		),
	}

	registry.MustRegister(
		m.ToolDispatchesTotal,
		m.ToolDispatchDuration,
		m.UnknownToolsTotal,
		m.DispatchTimeoutsTotal,
		m.SessionsActive,
		m.ConnectionsTotal,
		m.ToolCallsInFlight,
		m.QuotaExhaustedTotal,
		m.GatewayClientsActive,
		m.GatewayMessagesTotal,
		m.GatewayAuthFailuresTotal,
	)

	return m
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
