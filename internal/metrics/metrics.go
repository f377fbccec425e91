// Package metrics holds the prometheus collectors of a node.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "exchange"

type Metrics struct {
	OrdersSubmitted   prometheus.Counter
	OrdersRejected    prometheus.Counter
	OrdersCancelled   prometheus.Counter
	OrdersExpired     prometheus.Counter
	Trades            prometheus.Counter
	Blocks            prometheus.Counter
	DuplicatesDropped prometheus.Counter
	PendingOrders     prometheus.Gauge
	RestingOrders     *prometheus.GaugeVec
}

// New builds the collectors and registers them on reg. A nil reg yields
// working but unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "orders_submitted_total",
			Help:      "Orders admitted to the pending queue.",
		}),
		OrdersRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "orders_rejected_total",
			Help:      "Orders that failed validation.",
		}),
		OrdersCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "orders_cancelled_total",
			Help:      "Orders cancelled by request or by IOC.",
		}),
		OrdersExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "orders_expired_total",
			Help:      "GFD/GTD orders that timed out.",
		}),
		Trades: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "trades_total",
			Help:      "Trades appended to the ledger.",
		}),
		Blocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "blocks_total",
			Help:      "Blocks executed.",
		}),
		DuplicatesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "duplicates_dropped_total",
			Help:      "Block orders dropped by the duplicate guard.",
		}),
		PendingOrders: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "pending_orders",
			Help:      "Orders waiting in the pending queue.",
		}),
		RestingOrders: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "resting_orders",
			Help:      "Orders resting in the book.",
		}, []string{"symbol"}),
	}
}

func Nop() *Metrics { return New(nil) }
