package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LaunchTotal counts dispatch attempts by outcome.
	// outcome: launched / no_vehicle / rejected / rolled_back
	LaunchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyc_dispatch_launch_total",
			Help: "Total number of order launch attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// ActiveMissions tracks vehicles currently flying a delivery or return leg.
	ActiveMissions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skyc_dispatch_active_missions",
			Help: "Number of vehicles currently outbound or returning.",
		},
	)

	// ConnectedVehicles tracks vehicles with a live control link.
	ConnectedVehicles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skyc_fleet_connected_vehicles",
			Help: "Number of vehicles with linkState=Connected.",
		},
	)

	// TelemetryPollErrors counts failed telemetry polls per vehicle.
	TelemetryPollErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyc_telemetry_poll_errors_total",
			Help: "Total number of failed telemetry polls.",
		},
		[]string{"vehicle"},
	)

	// BroadcastDropped counts events dropped from slow subscriber queues.
	BroadcastDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skyc_broadcast_dropped_events_total",
			Help: "Total number of events dropped because a subscriber queue was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		LaunchTotal,
		ActiveMissions,
		ConnectedVehicles,
		TelemetryPollErrors,
		BroadcastDropped,
	)
}
