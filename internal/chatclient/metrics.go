package chatclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ConnectionState prometheus.Gauge
	Reconnects      prometheus.Counter
	FramesReceived  prometheus.Counter
	FramesDropped   prometheus.Counter
	HistoryFailures prometheus.Counter
}

// NewMetrics creates the client collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat_client",
			Name:      "connection_state",
			Help:      "Current transport state: 0 disconnected, 1 connecting, 2 open, 3 closing.",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_client",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after an abnormal close.",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_client",
			Name:      "frames_received_total",
			Help:      "Frames read from the transport.",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_client",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped because they could not be decoded.",
		}),
		HistoryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_client",
			Name:      "history_failures_total",
			Help:      "Conversation history fetches that failed.",
		}),
	}
}
