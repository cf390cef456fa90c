// Package metrics provides Prometheus metrics for wallet connections.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects connection, bridge and telemetry metrics.
type Metrics struct {
	registry *prometheus.Registry

	ConnectsTotal   *prometheus.CounterVec
	ConnectDuration *prometheus.HistogramVec
	ActiveWallets   prometheus.Gauge

	BridgeSessions *prometheus.CounterVec
	BridgeRetries  *prometheus.CounterVec

	UserOpsTotal *prometheus.CounterVec

	TelemetryEvents *prometheus.CounterVec
}

// New creates a collector with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ConnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "w3link_wallet_connects_total",
				Help: "Wallet connection attempts",
			},
			[]string{"wallet_type", "status"},
		),
		ConnectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "w3link_wallet_connect_duration_seconds",
				Help:    "Time to build, authenticate and register a wallet",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~160s
			},
			[]string{"wallet_type"},
		),
		ActiveWallets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "w3link_registered_wallets",
				Help: "Wallets currently held in the registry",
			},
		),
		BridgeSessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "w3link_bridge_sessions_total",
				Help: "Bridge sessions by outcome",
			},
			[]string{"outcome"}, // new | resumed | failed | disconnected
		),
		BridgeRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "w3link_bridge_retries_total",
				Help: "Bridge connection retries by reason",
			},
			[]string{"reason"}, // timeout | transport
		),
		UserOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "w3link_user_operations_total",
				Help: "Smart account user operations submitted",
			},
			[]string{"chain_id", "status"},
		),
		TelemetryEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "w3link_telemetry_events_total",
				Help: "Usage events by delivery status",
			},
			[]string{"status"}, // sent | failed | dropped
		),
	}

	m.registry.MustRegister(
		m.ConnectsTotal,
		m.ConnectDuration,
		m.ActiveWallets,
		m.BridgeSessions,
		m.BridgeRetries,
		m.UserOpsTotal,
		m.TelemetryEvents,
	)
	return m
}

// Registry returns the prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// --- Helper methods for recording metrics ---

// RecordConnect records a finished Connect call.
func (m *Metrics) RecordConnect(walletType string, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.ConnectsTotal.WithLabelValues(walletType, status(err)).Inc()
	if err == nil {
		m.ConnectDuration.WithLabelValues(walletType).Observe(took.Seconds())
	}
}

// SetRegistered sets the registry size.
func (m *Metrics) SetRegistered(n int) {
	if m == nil {
		return
	}
	m.ActiveWallets.Set(float64(n))
}

// RecordBridgeSession records a bridge session outcome.
func (m *Metrics) RecordBridgeSession(outcome string) {
	if m == nil {
		return
	}
	m.BridgeSessions.WithLabelValues(outcome).Inc()
}

// RecordBridgeRetry records one bridge retry.
func (m *Metrics) RecordBridgeRetry(reason string) {
	if m == nil {
		return
	}
	m.BridgeRetries.WithLabelValues(reason).Inc()
}

// RecordUserOp records a submitted user operation.
func (m *Metrics) RecordUserOp(chainID string, err error) {
	if m == nil {
		return
	}
	m.UserOpsTotal.WithLabelValues(chainID, status(err)).Inc()
}

// RecordTelemetry records a usage event delivery status.
func (m *Metrics) RecordTelemetry(status string) {
	if m == nil {
		return
	}
	m.TelemetryEvents.WithLabelValues(status).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
