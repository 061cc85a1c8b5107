package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's instrumentation. Constructed against an
// explicit registerer so tests can use isolated registries.
type Metrics struct {
	EventsAccepted      prometheus.Counter
	EventsRejected      prometheus.Counter
	EventsSwept         prometheus.Counter
	FanoutDeliveries    prometheus.Counter
	SubscriptionsActive prometheus.Gauge
}

// NewMetrics registers the relay metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "murmur_events_accepted_total",
			Help: "Events accepted into the store or forwarded as ephemeral.",
		}),
		EventsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "murmur_events_rejected_total",
			Help: "Event submissions acknowledged as not accepted.",
		}),
		EventsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "murmur_events_swept_total",
			Help: "Expired events deleted by the sweeper.",
		}),
		FanoutDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "murmur_fanout_deliveries_total",
			Help: "Live events pushed to matched subscriptions.",
		}),
		SubscriptionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "murmur_subscriptions_active",
			Help: "Currently registered subscriptions.",
		}),
	}
}
