// Package metrics exposes Prometheus instruments for the inventory
// core.  They are registered on the default registry via promauto and
// served by the ops endpoint in cmd/server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersCreated counts orders persisted by the creation pipeline.
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boxoffice_orders_created_total",
		Help: "Total number of orders created",
	})

	// OrdersRejected counts order attempts aborted because a quota
	// was exhausted at confirmation time.
	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boxoffice_orders_rejected_total",
		Help: "Total number of order attempts rejected for insufficient quota",
	})

	// LockTimeouts counts event lock acquisitions that failed due to
	// contention.
	LockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boxoffice_lock_timeouts_total",
		Help: "Total number of event lock acquisitions that timed out",
	})

	// CartReservations counts cart positions created.
	CartReservations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boxoffice_cart_reservations_total",
		Help: "Total number of cart positions reserved",
	})

	// SweepReleased counts rows (cart positions and pending orders)
	// released by the expiry sweeper.
	SweepReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boxoffice_sweep_released_total",
		Help: "Total number of expired cart positions and orders released",
	})

	// SweepDuration tracks how long the last sweep took.
	SweepDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boxoffice_sweep_duration_seconds",
		Help: "Duration of the last expiry sweep in seconds",
	})
)
