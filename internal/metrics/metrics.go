package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Currently open WebSocket connections",
		},
	)

	HandshakeRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_handshake_rejections_total",
			Help: "Rejected connection attempts by reason",
		},
		[]string{"reason"}, // "unauthenticated", "invalid_credential", "identity_not_found"
	)

	// Relay metrics
	MessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_relayed_total",
			Help: "Messages persisted and broadcast",
		},
	)

	CommandErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_command_errors_total",
			Help: "Command handler failures by command",
		},
		[]string{"command"},
	)

	// Fanout metrics
	FanoutPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_fanout_published_total",
			Help: "Envelopes published to the cross-process adapter",
		},
	)

	FanoutReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_fanout_received_total",
			Help: "Envelopes received from other process instances",
		},
	)
)
