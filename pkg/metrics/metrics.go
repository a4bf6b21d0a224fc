// Package metrics holds the prometheus collectors exported by the hub and its transport.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "noteboard"

// Hub groups the collectors updated by the broadcast hub.
type Hub struct {
	Peers      prometheus.Gauge
	Commands   *prometheus.CounterVec
	Rejected   *prometheus.CounterVec
	Broadcasts prometheus.Counter
	Dropped    prometheus.Counter
}

// NewHub registers the hub collectors with reg.
func NewHub(reg prometheus.Registerer) *Hub {
	f := promauto.With(reg)
	return &Hub{
		Peers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "peers",
			Help:      "Number of connected peers",
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "commands_total",
			Help:      "Commands applied to the canonical state, by event",
		}, []string{"event"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "commands_rejected_total",
			Help:      "Commands dropped because they were unknown or malformed, by event",
		}, []string{"event"}),
		Broadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Full state broadcasts sent",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "messages_dropped_total",
			Help:      "Outbound messages dropped because a peer queue was full",
		}),
	}
}
