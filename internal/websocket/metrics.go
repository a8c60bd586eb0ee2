package chatws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Connections   prometheus.Gauge
	Relayed       prometheus.Counter
	Rejected      *prometheus.CounterVec
	SlowConsumers prometheus.Counter
}

// NewMetrics registers the relay collectors with reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat_relay",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		Relayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "messages_relayed_total",
			Help:      "Stored messages broadcast to their participants.",
		}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "frames_rejected_total",
			Help:      "Inbound frames answered with an error frame.",
		}, []string{"reason"}),
		SlowConsumers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "slow_consumers_total",
			Help:      "Connections dropped because their send buffer was full.",
		}),
	}
}
