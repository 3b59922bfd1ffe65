package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(statusLockTimeoutsTotal) }

var statusLockTimeoutsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storyreel_status_lock_timeouts_total",
		Help: "Status store lock acquisitions that timed out, labeled by backend.",
	},
	[]string{"backend"},
)

func IncLockTimeout(backend string) {
	statusLockTimeoutsTotal.WithLabelValues(norm(backend)).Inc()
}
