package projection

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeApplied      = "applied"
	outcomeDuplicate    = "duplicate"
	outcomeUnregistered = "unregistered"
	outcomeIntegrity    = "integrity"
	outcomeError        = "error"
)

var projectedEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docstore_projection_events_total",
		Help: "Total number of events routed by the projection engine, partitioned by outcome.",
	},
	[]string{"event_type", "outcome"},
)

func init() {
	prometheus.MustRegister(projectedEvents)
}
