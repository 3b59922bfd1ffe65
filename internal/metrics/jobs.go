package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsFinishedTotal, jobsInFlight) }

var jobsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storyreel_jobs_finished_total",
		Help: "Total number of video jobs finished, labeled by workflow and status.",
	},
	[]string{"workflow", "status"}, // status: 'completed', 'failed'
)

var jobsInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "storyreel_jobs_in_flight",
		Help: "Number of video jobs currently being processed by workers.",
	},
)

func IncJobFinished(workflow, status string) {
	jobsFinishedTotal.WithLabelValues(norm(workflow), norm(status)).Inc()
}

// JobStarted bumps the in-flight gauge; call the returned func when the job ends.
func JobStarted() func() {
	jobsInFlight.Inc()
	return jobsInFlight.Dec
}
