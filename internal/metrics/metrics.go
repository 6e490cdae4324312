// Package metrics provides Prometheus observability metrics for the
// shelter engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for the application.
var Registry = prometheus.NewRegistry()

// factory registers metrics to the custom Registry directly.
var factory = promauto.With(Registry)

// BedsByStatus tracks the current bed counts per status. The three series
// always sum to 108.
var BedsByStatus = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "shelter",
	Name:      "beds_by_status",
	Help:      "Current number of beds in each status",
}, []string{"status"})

// ReservationsCreated counts successful allocations.
var ReservationsCreated = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "shelter",
	Name:      "reservations_created_total",
	Help:      "Reservations successfully created",
})

// AllocationNoCapacity counts allocation attempts rejected because no bed
// was available.
var AllocationNoCapacity = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "shelter",
	Name:      "allocation_no_capacity_total",
	Help:      "Allocation attempts that found no available bed",
})

// AllocationConflicts counts compare-and-set losses during allocation,
// including those later recovered by retry.
var AllocationConflicts = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "shelter",
	Name:      "allocation_conflicts_total",
	Help:      "Bed transition conflicts observed during allocation",
})

// ReservationsExpired counts holds released by the expiration sweep.
var ReservationsExpired = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "shelter",
	Name:      "reservations_expired_total",
	Help:      "Reservations expired by the sweep",
})

// ExpirationSweeps counts completed sweep runs.
var ExpirationSweeps = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "shelter",
	Name:      "expiration_sweeps_total",
	Help:      "Expiration sweep runs completed",
})

// ExpirationSweepsSkipped counts ticks skipped because the previous sweep
// was still running.
var ExpirationSweepsSkipped = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "shelter",
	Name:      "expiration_sweeps_skipped_total",
	Help:      "Expiration ticks skipped due to an in-flight sweep",
})

// WebsocketClients tracks currently connected dashboard subscribers.
var WebsocketClients = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "shelter",
	Name:      "websocket_clients",
	Help:      "Currently connected websocket subscribers",
})

// EventsDropped counts events dropped for slow subscribers.
var EventsDropped = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "shelter",
	Name:      "events_dropped_total",
	Help:      "Broadcast events dropped because a subscriber queue was full",
})

// CallSessions counts voice call sessions by final state.
var CallSessions = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shelter",
	Name:      "call_sessions_total",
	Help:      "Voice call sessions by outcome",
}, []string{"outcome"})

// SetBedSummary updates the per-status bed gauges in one shot.
func SetBedSummary(available, held, occupied int) {
	BedsByStatus.WithLabelValues("available").Set(float64(available))
	BedsByStatus.WithLabelValues("held").Set(float64(held))
	BedsByStatus.WithLabelValues("occupied").Set(float64(occupied))
}
