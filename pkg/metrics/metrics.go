package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftroom_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	RoomsDestroyed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftroom_rooms_destroyed_total",
			Help: "Total rooms destroyed early via the destroy endpoint",
		},
	)

	MessagesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftroom_messages_stored_total",
			Help: "Total messages appended to room histories",
		},
	)

	FanoutFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftroom_fanout_failures_total",
			Help: "Total realtime publishes that failed after a successful append",
		},
	)

	EventsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftroom_events_delivered_total",
			Help: "Total events written to websocket subscribers",
		},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftroom_ws_connections",
			Help: "Currently connected websocket subscribers",
		},
	)
)
