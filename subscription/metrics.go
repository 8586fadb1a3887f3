package subscription

import "github.com/prometheus/client_golang/prometheus"

var (
	processedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_subscription_events_total",
			Help: "Total number of events processed and committed per consumer.",
		},
		[]string{"consumer", "event_type"},
	)

	lastPosition = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docstore_subscription_last_position",
			Help: "Last committed global stream position per consumer.",
		},
		[]string{"consumer"},
	)

	readFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_subscription_read_failures_total",
			Help: "Total number of failed event stream reads per consumer.",
		},
		[]string{"consumer"},
	)

	skippedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_subscription_skipped_events_total",
			Help: "Total number of events committed past a permanently failed sink.",
		},
		[]string{"consumer", "event_type"},
	)
)

func init() {
	prometheus.MustRegister(processedEvents, lastPosition, readFailures, skippedEvents)
}
