package dispatch

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeStarted   = "started"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

var dispatchedWorkflows = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docstore_dispatch_workflows_total",
		Help: "Total number of workflow start attempts, partitioned by outcome.",
	},
	[]string{"workflow", "outcome"},
)

func init() {
	prometheus.MustRegister(dispatchedWorkflows)
}
